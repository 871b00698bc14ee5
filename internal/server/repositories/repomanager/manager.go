// Package repomanager hands out entity repositories bound to a database
// handle, so services can run several repositories inside one transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/teamvault/escrow/internal/dbx"
	"github.com/teamvault/escrow/internal/server/repositories/keypasswords"
	"github.com/teamvault/escrow/internal/server/repositories/orgkeys"
	"github.com/teamvault/escrow/internal/server/repositories/policies"
	"github.com/teamvault/escrow/internal/server/repositories/privatekeys"
	"github.com/teamvault/escrow/internal/server/repositories/requests"
	"github.com/teamvault/escrow/internal/server/repositories/usersettings"
)

// RepositoryManager builds repositories bound to the given DBTX, which may be
// a plain *sql.DB or a *sql.Tx obtained from dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Policies(db dbx.DBTX) policies.Repository
	OrgKeys(db dbx.DBTX) orgkeys.Repository
	PrivateKeys(db dbx.DBTX) privatekeys.Repository
	KeyPasswords(db dbx.DBTX) keypasswords.Repository
	UserSettings(db dbx.DBTX) usersettings.Repository
	Requests(db dbx.DBTX) requests.Repository
}
