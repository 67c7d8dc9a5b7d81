package accounts

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole = string

const (
	// RoleGuest is a guest role (ie. view)
	RoleGuest UserRole = "guest"
	// RoleMember is a member (i.e. view, edit)
	RoleMember UserRole = "member"
	// RoleAdmin is an admin role (i.e. view, edit, create)
	RoleAdmin UserRole = "admin"
	// RoleOwner is an owner role (i.e. view, edit, create, delete)
	RoleOwner UserRole = "owner"
)

// UserStatus is the account lifecycle state.
type UserStatus string

const (
	// UserStatusUnverified is the state a user is created in; the account
	// cannot log in until the email verification flow succeeds.
	UserStatusUnverified UserStatus = "unverified"
	// UserStatusVerified means the email verification flow completed.
	UserStatusVerified UserStatus = "verified"
	// UserStatusSuspended is set by an admin action; terminal from the
	// account holder's perspective.
	UserStatusSuspended UserStatus = "suspended"
)

// IsValid checks the status against the known lifecycle states.
func (s UserStatus) IsValid() bool {
	switch s {
	case UserStatusUnverified, UserStatusVerified, UserStatusSuspended:
		return true
	default:
		return false
	}
}

// ParseUserStatus maps a stored status string onto a UserStatus. An unknown
// value is a broken deployment, not user input, and returns ErrStateNotFound.
func ParseUserStatus(raw string) (UserStatus, error) {
	status := UserStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.IsValid() {
		return "", ErrStateNotFound.WithMetadata(map[string]any{
			"status": raw,
		})
	}
	return status, nil
}

// User is the account model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID           uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role         UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	Name         string     `bun:"name,notnull" json:"name,omitempty"`
	Email        string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone        string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash string     `bun:"password_hash" json:"-"`
	Status       UserStatus `bun:"status,notnull" json:"status,omitempty"`

	// EmailVerificationToken is present while the account awaits email
	// confirmation. PasswordResetToken mirrors the live entry in the
	// reset-token store. Two separate columns so one flow can never
	// invalidate the other's in-flight token.
	EmailVerificationToken *string `bun:"email_verification_token,nullzero" json:"-"`
	PasswordResetToken     *string `bun:"password_reset_token,nullzero" json:"-"`

	SuspendedAt *time.Time `bun:"suspended_at,nullzero" json:"suspended_at,omitempty"`
	CreatedAt   *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt   *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt   *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus backfills the zero value for rows created before the status
// column existed.
func (u *User) EnsureStatus() {
	if u.Status == "" {
		u.Status = UserStatusUnverified
	}
}

// IsUnverified reports whether the account still awaits email verification.
func (u *User) IsUnverified() bool {
	u.EnsureStatus()
	return u.Status == UserStatusUnverified
}

// IsVerified reports whether the account completed email verification.
func (u *User) IsVerified() bool {
	u.EnsureStatus()
	return u.Status == UserStatusVerified
}

// IsSuspended reports whether the account was suspended by an admin.
func (u *User) IsSuspended() bool {
	u.EnsureStatus()
	return u.Status == UserStatusSuspended
}

// NormalizeEmail lowercases and trims an email address. Emails are unique
// case-normalized, so every lookup and write goes through this.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Session is an opaque-token auth session. A token, once issued,
// authenticates its owner until explicitly deleted; there is no built-in
// expiry.
type Session struct {
	bun.BaseModel `bun:"table:user_sessions,alias:sess"`

	ID        uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID    uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User      *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Token     string     `bun:"session_token,notnull,unique" json:"-"`
	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Device is a push-notification registration, upserted during login when the
// client supplies a push token. Not deleted on logout.
type Device struct {
	bun.BaseModel `bun:"table:user_devices,alias:dev"`

	ID        uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID    uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	PushToken string     `bun:"push_token,notnull,unique" json:"push_token,omitempty"`
	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// UserPatch is a typed partial update for User. Nil fields are left alone;
// the Clear flags set their token column to NULL. No reflection involved:
// Columns lists what changed and Apply copies the values.
type UserPatch struct {
	Name         *string
	Phone        *string
	PasswordHash *string
	Status       *UserStatus
	SuspendedAt  *time.Time

	EmailVerificationToken      *string
	ClearEmailVerificationToken bool
	PasswordResetToken          *string
	ClearPasswordResetToken     bool
}

// IsZero reports whether the patch would change nothing.
func (p UserPatch) IsZero() bool {
	return len(p.Columns()) == 0
}

// Columns returns the database columns the patch touches.
func (p UserPatch) Columns() []string {
	cols := []string{}
	if p.Name != nil {
		cols = append(cols, "name")
	}
	if p.Phone != nil {
		cols = append(cols, "phone_number")
	}
	if p.PasswordHash != nil {
		cols = append(cols, "password_hash")
	}
	if p.Status != nil {
		cols = append(cols, "status")
	}
	if p.SuspendedAt != nil {
		cols = append(cols, "suspended_at")
	}
	if p.EmailVerificationToken != nil || p.ClearEmailVerificationToken {
		cols = append(cols, "email_verification_token")
	}
	if p.PasswordResetToken != nil || p.ClearPasswordResetToken {
		cols = append(cols, "password_reset_token")
	}
	return cols
}

// Apply copies the patch onto a user record, field by field.
func (p UserPatch) Apply(u *User) {
	if u == nil {
		return
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.Status != nil {
		u.Status = *p.Status
	}
	if p.SuspendedAt != nil {
		u.SuspendedAt = p.SuspendedAt
	}
	if p.ClearEmailVerificationToken {
		u.EmailVerificationToken = nil
	} else if p.EmailVerificationToken != nil {
		u.EmailVerificationToken = p.EmailVerificationToken
	}
	if p.ClearPasswordResetToken {
		u.PasswordResetToken = nil
	} else if p.PasswordResetToken != nil {
		u.PasswordResetToken = p.PasswordResetToken
	}
}
