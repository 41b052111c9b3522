package identity

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Accounts() Accounts
	SecurityTokens() SecurityTokens
	ExternalLogins() ExternalLogins
	Roles() repository.Repository[*Role]
}

func NewRolesRepository(db *bun.DB) repository.Repository[*Role] {
	handlers := repository.ModelHandlers[*Role]{
		NewRecord: func() *Role {
			return &Role{}
		},
		GetID: func(record *Role) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *Role, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "name"
		},
	}
	return repository.NewRepository(db, handlers)
}

type mngr struct {
	db             *bun.DB
	accounts       Accounts
	securityTokens SecurityTokens
	externalLogins ExternalLogins
	roles          repository.Repository[*Role]
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:             db,
		accounts:       NewAccountsRepository(db),
		securityTokens: NewSecurityTokensRepository(db),
		externalLogins: NewExternalLoginsRepository(db),
		roles:          NewRolesRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	if m.securityTokens == nil {
		return errors.New("repository securityTokens should be initialized")
	}

	if m.externalLogins == nil {
		return errors.New("repository externalLogins should be initialized")
	}

	if m.roles == nil {
		return errors.New("repository roles should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Accounts() Accounts {
	return m.accounts
}

func (m mngr) SecurityTokens() SecurityTokens {
	return m.securityTokens
}

func (m mngr) ExternalLogins() ExternalLogins {
	return m.externalLogins
}

func (m mngr) Roles() repository.Repository[*Role] {
	return m.roles
}
