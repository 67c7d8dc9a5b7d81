package accounts

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Sessions is the auth-session repository. Tokens are matched exactly; a
// missing row is the only failure mode callers get to see.
type Sessions interface {
	repository.Repository[*Session]

	GetByToken(ctx context.Context, token string) (*Session, error)
	GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*Session, error)

	DeleteByToken(ctx context.Context, token string) (bool, error)
	DeleteByTokenTx(ctx context.Context, tx bun.IDB, token string) (bool, error)
	DeleteForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error
}

type sessions struct {
	repository.Repository[*Session]
	db *bun.DB
}

var (
	_ Sessions                        = (*sessions)(nil)
	_ repository.Repository[*Session] = (*sessions)(nil)
)

// NewSessionsRepository builds the bun-backed Sessions repository.
func NewSessionsRepository(db *bun.DB) Sessions {
	repo := repository.NewRepository[*Session](db, repository.ModelHandlers[*Session]{
		NewRecord: func() *Session { return &Session{} },
		GetID: func(s *Session) uuid.UUID {
			if s == nil {
				return uuid.Nil
			}
			return s.ID
		},
		SetID: func(s *Session, id uuid.UUID) {
			if s != nil {
				s.ID = id
			}
		},
		GetIdentifier: func() string {
			return "session_token"
		},
	})

	return &sessions{
		Repository: repo,
		db:         db,
	}
}

func (a *sessions) GetByToken(ctx context.Context, token string) (*Session, error) {
	return a.GetByTokenTx(ctx, a.db, token)
}

// GetByTokenTx joins the owning account so callers get the authenticated
// user in one round trip.
func (a *sessions) GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*Session, error) {
	if token == "" {
		return nil, repository.NewRecordNotFound()
	}

	record := &Session{}
	err := tx.NewSelect().
		Model(record).
		Relation("User").
		Where("?TableAlias.session_token = ?", token).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return record, nil
}

func (a *sessions) DeleteByToken(ctx context.Context, token string) (bool, error) {
	return a.DeleteByTokenTx(ctx, a.db, token)
}

// DeleteByTokenTx removes the session row if present. The bool reports
// whether anything was deleted; deleting an absent token is not an error.
func (a *sessions) DeleteByTokenTx(ctx context.Context, tx bun.IDB, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	res, err := tx.NewDelete().
		Model((*Session)(nil)).
		Where("?TableAlias.session_token = ?", token).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func (a *sessions) DeleteForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*Session)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Exec(ctx)
	return err
}
