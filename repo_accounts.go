package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ResetAccountPasswordSQL replaces the credential and confirms the email in
// one statement. Redeeming a reset token proves control of the inbox, so the
// confirmed flag rides along.
var ResetAccountPasswordSQL = `UPDATE "accounts" AS "acc"
SET
	"is_email_confirmed" = TRUE,
	"password_hash" = ?
WHERE
	"acc"."deleted_at" IS NULL
AND (
	"acc"."id" = ?
) RETURNING *;`

type Accounts interface {
	repository.Repository[*Account]

	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error)

	TrackAttemptedLogin(ctx context.Context, account *Account, lockoutUntil *time.Time) error
	TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, account *Account, lockoutUntil *time.Time) error
	TrackSuccessfulLogin(ctx context.Context, account *Account) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, account *Account) error

	Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error)

	ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
}

type accounts struct {
	repository.Repository[*Account]
	db *bun.DB
}

var (
	_ Accounts                        = (*accounts)(nil)
	_ repository.Repository[*Account] = (*accounts)(nil)
)

func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &accounts{
		Repository: repo,
		db:         db,
	}
}

func (a *accounts) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *accounts) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where("LOWER(?TableAlias.email) = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": NormalizeEmail(email),
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *accounts) Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *accounts) CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	prepareAccountDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *accounts) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.ResetPasswordTx(ctx, a.db, id, passwordHash)
}

func (a *accounts) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := a.Repository.RawTx(ctx, tx, ResetAccountPasswordSQL, passwordHash, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func (a *accounts) TrackSuccessfulLogin(ctx context.Context, account *Account) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, account)
}

func (a *accounts) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, account *Account) error {
	// NOTE: the ORM skips zero values on update, so clearing the counters
	// needs raw SQL.
	loggedInAt := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "accounts" AS "acc"
		SET
			"loggedin_at" = ?,
			"login_attempt_at" = NULL,
			"login_attempts" = 0,
			"lockout_until" = NULL
		WHERE
			("acc".id = ?)
			AND "acc"."deleted_at" IS NULL;
	`, loggedInAt, account.ID).Exec(ctx)

	return err
}

func (a *accounts) TrackAttemptedLogin(ctx context.Context, account *Account, lockoutUntil *time.Time) error {
	return a.TrackAttemptedLoginTx(ctx, a.db, account, lockoutUntil)
}

func (a *accounts) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, account *Account, lockoutUntil *time.Time) error {
	criteria := []repository.UpdateCriteria{
		repository.UpdateByID(account.ID.String()),
	}

	record := &Account{}
	record.ID = account.ID
	record.LoginAttempts = account.LoginAttempts + 1
	now := time.Now()
	record.LoginAttemptAt = &now
	record.LockoutUntil = lockoutUntil

	_, err := a.Repository.UpdateTx(ctx, tx, record, criteria...)

	return err
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)

	if record.Role == "" {
		record.Role = RoleClient
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
