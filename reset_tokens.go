package accounts

import (
	"context"
	"sync"
	"time"
)

// DefaultResetTokenTTL is how long a password-reset token stays valid.
const DefaultResetTokenTTL = 15 * time.Minute

// ResetTokenInfo is the payload stored behind a reset token.
type ResetTokenInfo struct {
	Email     string
	ExpiresAt time.Time
}

// ResetTokens is an expiry-aware store mapping opaque reset tokens to the
// email they were issued for. Implementations must be safe for concurrent
// use; validity checks delete expired entries lazily.
type ResetTokens interface {
	// Issue generates a fresh token for the email and stores it with the
	// given TTL. A colliding token value overwrites the prior entry:
	// collisions are astronomically rare, not an error.
	Issue(ctx context.Context, email string, ttl time.Duration) (string, error)
	// IsValid reports whether the token exists and has not expired. An
	// expired entry is removed as a side effect.
	IsValid(ctx context.Context, token string) bool
	// GetInfo returns the stored payload, if any.
	GetInfo(ctx context.Context, token string) (ResetTokenInfo, bool)
	// Remove deletes the entry. Idempotent.
	Remove(ctx context.Context, token string)
	// CleanupExpired removes every expired entry and reports how many.
	CleanupExpired(ctx context.Context) int
}

// MemoryResetTokens is the single-process reference implementation: a
// mutex-guarded map whose lifetime is the process lifetime. A restart
// invalidates all outstanding tokens, which is acceptable for a 15 minute
// TTL but is a deployment constraint, not an accident.
type MemoryResetTokens struct {
	mu      sync.Mutex
	entries map[string]ResetTokenInfo
	now     func() time.Time
	logger  Logger
}

// ResetTokensOption customizes the in-memory store.
type ResetTokensOption func(*MemoryResetTokens)

// WithResetTokensClock injects a custom clock (useful for tests).
func WithResetTokensClock(clock func() time.Time) ResetTokensOption {
	return func(s *MemoryResetTokens) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithResetTokensLogger overrides the store logger.
func WithResetTokensLogger(logger Logger) ResetTokensOption {
	return func(s *MemoryResetTokens) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewMemoryResetTokens creates an empty in-memory store.
func NewMemoryResetTokens(opts ...ResetTokensOption) *MemoryResetTokens {
	s := &MemoryResetTokens{
		entries: map[string]ResetTokenInfo{},
		now:     time.Now,
		logger:  defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

var _ ResetTokens = (*MemoryResetTokens)(nil)

func (s *MemoryResetTokens) Issue(_ context.Context, email string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}

	token := GenerateToken(VerificationTokenLength)

	s.mu.Lock()
	s.entries[token] = ResetTokenInfo{
		Email:     NormalizeEmail(email),
		ExpiresAt: s.now().Add(ttl),
	}
	s.mu.Unlock()

	s.logger.Debug("reset token issued for %s, expires in %s", email, ttl)

	return token, nil
}

func (s *MemoryResetTokens) IsValid(_ context.Context, token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.entries[token]
	if !ok {
		return false
	}

	if s.now().After(info.ExpiresAt) {
		delete(s.entries, token)
		s.logger.Debug("reset token expired: %s", token)
		return false
	}

	return true
}

func (s *MemoryResetTokens) GetInfo(_ context.Context, token string) (ResetTokenInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.entries[token]
	return info, ok
}

func (s *MemoryResetTokens) Remove(_ context.Context, token string) {
	s.mu.Lock()
	delete(s.entries, token)
	s.mu.Unlock()
}

func (s *MemoryResetTokens) CleanupExpired(_ context.Context) int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, info := range s.entries {
		if now.After(info.ExpiresAt) {
			delete(s.entries, token)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Info("removed %d expired reset tokens", removed)
	}

	return removed
}

// Len reports how many entries are stored, expired or not.
func (s *MemoryResetTokens) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartSweeper runs CleanupExpired on the given interval until the context
// is cancelled. Lazy expiry in IsValid keeps the store correct without it;
// the sweeper is bulk hygiene for tokens nobody checks again.
func (s *MemoryResetTokens) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupExpired(ctx)
			}
		}
	}()
}
