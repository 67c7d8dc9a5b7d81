package accounts

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the account repository.
type Users interface {
	repository.Repository[*User]

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)

	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	GetByVerificationToken(ctx context.Context, token string) (*User, error)
	GetByVerificationTokenTx(ctx context.Context, tx bun.IDB, token string) (*User, error)
	GetByResetToken(ctx context.Context, token string) (*User, error)
	GetByResetTokenTx(ctx context.Context, tx bun.IDB, token string) (*User, error)

	ApplyPatch(ctx context.Context, id uuid.UUID, patch UserPatch) (*User, error)
	ApplyPatchTx(ctx context.Context, tx bun.IDB, id uuid.UUID, patch UserPatch) (*User, error)

	DeleteAccountTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

// NewUsersRepository builds the bun-backed Users repository.
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)
	return a.Repository.CreateTx(ctx, tx, user)
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	return a.getByColumnTx(ctx, tx, "email", NormalizeEmail(email))
}

func (a *users) GetByVerificationToken(ctx context.Context, token string) (*User, error) {
	return a.GetByVerificationTokenTx(ctx, a.db, token)
}

func (a *users) GetByVerificationTokenTx(ctx context.Context, tx bun.IDB, token string) (*User, error) {
	return a.getByColumnTx(ctx, tx, "email_verification_token", token)
}

func (a *users) GetByResetToken(ctx context.Context, token string) (*User, error) {
	return a.GetByResetTokenTx(ctx, a.db, token)
}

func (a *users) GetByResetTokenTx(ctx context.Context, tx bun.IDB, token string) (*User, error) {
	return a.getByColumnTx(ctx, tx, "password_reset_token", token)
}

func (a *users) getByColumnTx(ctx context.Context, tx bun.IDB, column, value string) (*User, error) {
	if value == "" {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{column: value})
	}

	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias."+column+" = ?", value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{column: value})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) ApplyPatch(ctx context.Context, id uuid.UUID, patch UserPatch) (*User, error) {
	return a.ApplyPatchTx(ctx, a.db, id, patch)
}

// ApplyPatchTx applies a typed partial update: only the columns the patch
// names are written, and the Clear flags null their token columns out.
func (a *users) ApplyPatchTx(ctx context.Context, tx bun.IDB, id uuid.UUID, patch UserPatch) (*User, error) {
	cols := patch.Columns()
	if len(cols) == 0 {
		return a.getByColumnTx(ctx, tx, "id", id.String())
	}

	record := &User{ID: id}
	patch.Apply(record)

	res, err := tx.NewUpdate().
		Model(record).
		Column(cols...).
		Where("?TableAlias.id = ?", id).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return record, nil
}

// DeleteAccountTx destroys the account row and cascades to its sessions and
// device registrations. The user row is hard-deleted: account deletion is an
// explicit request from the owner, not an archive.
func (a *users) DeleteAccountTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	if _, err := tx.NewDelete().
		Model((*Session)(nil)).
		Where("?TableAlias.user_id = ?", id).
		Exec(ctx); err != nil {
		return err
	}

	if _, err := tx.NewDelete().
		Model((*Device)(nil)).
		Where("?TableAlias.user_id = ?", id).
		Exec(ctx); err != nil {
		return err
	}

	res, err := tx.NewDelete().
		Model((*User)(nil)).
		Where("?TableAlias.id = ?", id).
		ForceDelete().
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleGuest
	}

	record.EnsureStatus()
	record.Email = NormalizeEmail(record.Email)

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
