package accounts

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisResetKeyPrefix = "pwdreset:"

// RedisResetTokens stores reset tokens in Redis so multiple service
// instances share one token space. Expiry is delegated to Redis TTLs, which
// also survive a service restart.
type RedisResetTokens struct {
	client *redis.Client
	prefix string
	logger Logger
}

// NewRedisResetTokens wraps an existing Redis client.
func NewRedisResetTokens(client *redis.Client, opts ...RedisResetTokensOption) *RedisResetTokens {
	s := &RedisResetTokens{
		client: client,
		prefix: redisResetKeyPrefix,
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// RedisResetTokensOption customizes the Redis-backed store.
type RedisResetTokensOption func(*RedisResetTokens)

// WithRedisResetTokensLogger overrides the store logger.
func WithRedisResetTokensLogger(logger Logger) RedisResetTokensOption {
	return func(s *RedisResetTokens) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRedisResetTokensPrefix overrides the key prefix, e.g. per tenant.
func WithRedisResetTokensPrefix(prefix string) RedisResetTokensOption {
	return func(s *RedisResetTokens) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

var _ ResetTokens = (*RedisResetTokens)(nil)

func (s *RedisResetTokens) key(token string) string {
	return s.prefix + token
}

func (s *RedisResetTokens) Issue(ctx context.Context, email string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}

	token := GenerateToken(VerificationTokenLength)

	// SET overwrites a colliding token value, matching the in-memory store.
	if err := s.client.Set(ctx, s.key(token), NormalizeEmail(email), ttl).Err(); err != nil {
		return "", err
	}

	return token, nil
}

func (s *RedisResetTokens) IsValid(ctx context.Context, token string) bool {
	n, err := s.client.Exists(ctx, s.key(token)).Result()
	if err != nil {
		s.logger.Error("reset token store unavailable: %v", err)
		return false
	}
	return n > 0
}

func (s *RedisResetTokens) GetInfo(ctx context.Context, token string) (ResetTokenInfo, bool) {
	key := s.key(token)

	email, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Error("reset token store unavailable: %v", err)
		}
		return ResetTokenInfo{}, false
	}

	info := ResetTokenInfo{Email: email}
	if ttl, err := s.client.PTTL(ctx, key).Result(); err == nil && ttl > 0 {
		info.ExpiresAt = time.Now().Add(ttl)
	}

	return info, true
}

func (s *RedisResetTokens) Remove(ctx context.Context, token string) {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		s.logger.Error("failed to remove reset token: %v", err)
	}
}

// CleanupExpired is a no-op: Redis evicts expired keys natively.
func (s *RedisResetTokens) CleanupExpired(context.Context) int {
	return 0
}
