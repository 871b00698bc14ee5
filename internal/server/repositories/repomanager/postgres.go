package repomanager

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/teamvault/escrow/internal/dbx"
	"github.com/teamvault/escrow/internal/server/migrations"
	"github.com/teamvault/escrow/internal/server/repositories/keypasswords"
	"github.com/teamvault/escrow/internal/server/repositories/orgkeys"
	"github.com/teamvault/escrow/internal/server/repositories/policies"
	"github.com/teamvault/escrow/internal/server/repositories/privatekeys"
	"github.com/teamvault/escrow/internal/server/repositories/requests"
	"github.com/teamvault/escrow/internal/server/repositories/usersettings"
)

// PostgresRepositoryManager builds PostgreSQL repositories.
type PostgresRepositoryManager struct {
}

// NewPostgresRepositoryManager constructs the manager.
func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}

func (m *PostgresRepositoryManager) Policies(db dbx.DBTX) policies.Repository {
	return policies.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) OrgKeys(db dbx.DBTX) orgkeys.Repository {
	return orgkeys.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) PrivateKeys(db dbx.DBTX) privatekeys.Repository {
	return privatekeys.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) KeyPasswords(db dbx.DBTX) keypasswords.Repository {
	return keypasswords.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) UserSettings(db dbx.DBTX) usersettings.Repository {
	return usersettings.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Requests(db dbx.DBTX) requests.Repository {
	return requests.NewPostgresRepository(db)
}

// RunMigrations applies the embedded goose migrations.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return err
	}

	return nil
}

var _ RepositoryManager = (*PostgresRepositoryManager)(nil)
