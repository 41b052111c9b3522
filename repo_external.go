package identity

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ExternalLogins interface {
	repository.Repository[*ExternalLogin]

	GetByProviderKey(ctx context.Context, provider, providerKey string) (*ExternalLogin, error)
	GetByProviderKeyTx(ctx context.Context, tx bun.IDB, provider, providerKey string) (*ExternalLogin, error)
	GetByAccountProvider(ctx context.Context, accountID uuid.UUID, provider string) (*ExternalLogin, error)
}

type externalLogins struct {
	repository.Repository[*ExternalLogin]
	db *bun.DB
}

var _ ExternalLogins = (*externalLogins)(nil)

func NewExternalLoginsRepository(db *bun.DB) ExternalLogins {
	repo := repository.NewRepository[*ExternalLogin](db, repository.ModelHandlers[*ExternalLogin]{
		NewRecord: func() *ExternalLogin { return &ExternalLogin{} },
		GetID: func(l *ExternalLogin) uuid.UUID {
			if l == nil {
				return uuid.Nil
			}
			return l.ID
		},
		SetID: func(l *ExternalLogin, id uuid.UUID) {
			if l != nil {
				l.ID = id
			}
		},
	})

	return &externalLogins{
		Repository: repo,
		db:         db,
	}
}

func (r *externalLogins) GetByProviderKey(ctx context.Context, provider, providerKey string) (*ExternalLogin, error) {
	return r.GetByProviderKeyTx(ctx, r.db, provider, providerKey)
}

func (r *externalLogins) GetByProviderKeyTx(ctx context.Context, tx bun.IDB, provider, providerKey string) (*ExternalLogin, error) {
	record := &ExternalLogin{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.provider = ? AND ?TableAlias.provider_key = ?", provider, providerKey).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"provider":     provider,
					"provider_key": providerKey,
				})
		}
		return nil, err
	}

	return record, nil
}

func (r *externalLogins) GetByAccountProvider(ctx context.Context, accountID uuid.UUID, provider string) (*ExternalLogin, error) {
	record := &ExternalLogin{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.account_id = ? AND ?TableAlias.provider = ?", accountID, provider).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"account_id": accountID.String(),
					"provider":   provider,
				})
		}
		return nil, err
	}

	return record, nil
}
