package identity

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ConsumeSecurityTokenSQL flips consumed_at only while it is still unset, so
// two racing redemptions of the same token cannot both succeed.
var ConsumeSecurityTokenSQL = `UPDATE "security_tokens" AS "sect"
SET
	"consumed_at" = CURRENT_TIMESTAMP
WHERE
	"sect"."deleted_at" IS NULL
AND	"sect"."consumed_at" IS NULL
AND (
	"sect"."id" = ?
) RETURNING *;`

type SecurityTokens interface {
	repository.Repository[*SecurityToken]

	GetTokenByID(ctx context.Context, id uuid.UUID) (*SecurityToken, error)
	GetTokenByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*SecurityToken, error)

	Consume(ctx context.Context, id uuid.UUID) (bool, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (bool, error)
}

type securityTokens struct {
	repository.Repository[*SecurityToken]
	db *bun.DB
}

var _ SecurityTokens = (*securityTokens)(nil)

func NewSecurityTokensRepository(db *bun.DB) SecurityTokens {
	repo := repository.NewRepository[*SecurityToken](db, repository.ModelHandlers[*SecurityToken]{
		NewRecord: func() *SecurityToken {
			return &SecurityToken{}
		},
		GetID: func(record *SecurityToken) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *SecurityToken, id uuid.UUID) {
			record.ID = id
		},
	})

	return &securityTokens{
		Repository: repo,
		db:         db,
	}
}

func (a *securityTokens) GetTokenByID(ctx context.Context, id uuid.UUID) (*SecurityToken, error) {
	return a.GetTokenByIDTx(ctx, a.db, id)
}

func (a *securityTokens) GetTokenByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*SecurityToken, error) {
	record := &SecurityToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id.String()).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"id": id.String(),
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *securityTokens) Consume(ctx context.Context, id uuid.UUID) (bool, error) {
	return a.ConsumeTx(ctx, a.db, id)
}

// ConsumeTx reports whether this call redeemed the token. False means some
// other redemption got there first or the token never existed.
func (a *securityTokens) ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (bool, error) {
	res, err := a.Repository.RawTx(ctx, tx, ConsumeSecurityTokenSQL, id.String())
	if err != nil {
		return false, err
	}

	return len(res) > 0, nil
}
