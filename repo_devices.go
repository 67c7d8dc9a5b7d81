package accounts

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Devices is the push-registration repository.
type Devices interface {
	repository.Repository[*Device]

	UpsertByPushToken(ctx context.Context, userID uuid.UUID, pushToken string) (*Device, error)
	UpsertByPushTokenTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, pushToken string) (*Device, error)
	DeleteForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error
}

type devices struct {
	repository.Repository[*Device]
	db *bun.DB
}

var (
	_ Devices                        = (*devices)(nil)
	_ repository.Repository[*Device] = (*devices)(nil)
)

// NewDevicesRepository builds the bun-backed Devices repository.
func NewDevicesRepository(db *bun.DB) Devices {
	repo := repository.NewRepository[*Device](db, repository.ModelHandlers[*Device]{
		NewRecord: func() *Device { return &Device{} },
		GetID: func(d *Device) uuid.UUID {
			if d == nil {
				return uuid.Nil
			}
			return d.ID
		},
		SetID: func(d *Device, id uuid.UUID) {
			if d != nil {
				d.ID = id
			}
		},
		GetIdentifier: func() string {
			return "push_token"
		},
	})

	return &devices{
		Repository: repo,
		db:         db,
	}
}

func (a *devices) UpsertByPushToken(ctx context.Context, userID uuid.UUID, pushToken string) (*Device, error) {
	return a.UpsertByPushTokenTx(ctx, a.db, userID, pushToken)
}

// UpsertByPushTokenTx re-homes a push token to the logging-in account. Push
// tokens are device-scoped, so a token previously registered to another
// account simply moves.
func (a *devices) UpsertByPushTokenTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, pushToken string) (*Device, error) {
	record := &Device{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.push_token = ?", pushToken).
		Limit(1).
		Scan(ctx)

	if err == nil {
		if record.UserID == userID {
			return record, nil
		}
		record.UserID = userID
		if _, err := tx.NewUpdate().
			Model(record).
			Column("user_id").
			Where("?TableAlias.id = ?", record.ID).
			Exec(ctx); err != nil {
			return nil, err
		}
		return record, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	record = &Device{
		ID:        uuid.New(),
		UserID:    userID,
		PushToken: pushToken,
	}

	return a.Repository.CreateTx(ctx, tx, record)
}

func (a *devices) DeleteForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*Device)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Exec(ctx)
	return err
}
