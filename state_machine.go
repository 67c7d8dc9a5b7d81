package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidTransition = "INVALID_ACCOUNT_STATE_TRANSITION"
	textCodeTerminalState     = "TERMINAL_ACCOUNT_STATE"
)

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid account state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrTerminalState is returned when attempting to move away from a terminal
// status (suspended accounts cannot self-reactivate).
var ErrTerminalState = goerrors.New("account state is terminal", goerrors.CategoryConflict).
	WithTextCode(textCodeTerminalState).
	WithCode(goerrors.CodeConflict)

// AccountStateMachine defines lifecycle operations for accounts. Transitions
// mutate the in-memory record; persisting the change is the caller's job so
// it can happen inside the caller's transaction.
type AccountStateMachine interface {
	Transition(ctx context.Context, actor ActorRef, user *User, target UserStatus) error
	TransitionToVerified(ctx context.Context, actor ActorRef, user *User) error
	CurrentStatus(user *User) UserStatus
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*accountStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *accountStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *accountStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *accountStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// NewAccountStateMachine returns the default implementation.
func NewAccountStateMachine(opts ...StateMachineOption) AccountStateMachine {
	sm := &accountStateMachine{
		transitions: map[UserStatus]map[UserStatus]struct{}{
			UserStatusUnverified: {
				UserStatusVerified:  {},
				UserStatusSuspended: {},
			},
			UserStatusVerified: {
				UserStatusSuspended: {},
			},
			// suspended is terminal from the account holder's perspective
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type accountStateMachine struct {
	transitions  map[UserStatus]map[UserStatus]struct{}
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
}

func (sm *accountStateMachine) Transition(ctx context.Context, actor ActorRef, user *User, target UserStatus) error {
	if user == nil {
		return ErrInvalidTransition.WithMetadata(map[string]any{
			"target": target,
			"reason": "user is nil",
		})
	}

	user.EnsureStatus()
	from := user.Status

	if !target.IsValid() {
		return ErrStateNotFound.WithMetadata(map[string]any{
			"status": string(target),
		})
	}

	if from == target {
		return nil
	}

	if from == UserStatusSuspended {
		return ErrTerminalState.WithMetadata(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	if !sm.canTransition(from, target) {
		return ErrInvalidTransition.WithMetadata(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	user.Status = target
	if target == UserStatusSuspended {
		now := sm.now()
		user.SuspendedAt = &now
	}
	if target == UserStatusVerified {
		// a verified account has no pending verification
		user.EmailVerificationToken = nil
	}

	sm.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventUserStatusChanged,
		Actor:      actor,
		UserID:     user.ID.String(),
		FromStatus: from,
		ToStatus:   target,
	})

	return nil
}

// TransitionToVerified moves an account out of the unverified state,
// clearing any pending verification token.
func (sm *accountStateMachine) TransitionToVerified(ctx context.Context, actor ActorRef, user *User) error {
	return sm.Transition(ctx, actor, user, UserStatusVerified)
}

func (sm *accountStateMachine) CurrentStatus(user *User) UserStatus {
	if user == nil {
		return ""
	}
	user.EnsureStatus()
	return user.Status
}

func (sm *accountStateMachine) canTransition(from, to UserStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *accountStateMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "system"}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = sm.now()
	}

	if err := normalizeActivitySink(sm.activitySink).Record(ctx, event); err != nil {
		sm.logger.Warn("state machine activity sink error: %v", err)
	}
}
