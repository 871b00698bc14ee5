// Package usersettings provides the PostgreSQL-backed store for per-user
// account recovery participation settings.
package usersettings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/teamvault/escrow/internal/common"
	"github.com/teamvault/escrow/internal/dbx"
	"github.com/teamvault/escrow/internal/server/models"
)

// PostgresRepository implements setting storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert stores the user's choice, keyed by user_id.
func (r *PostgresRepository) Upsert(ctx context.Context, setting *models.UserSetting) error {
	query := `
		INSERT INTO user_settings (id, user_id, opt_in, created_by, modified_by, created, modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id)
		DO UPDATE SET
			opt_in = EXCLUDED.opt_in,
			modified_by = EXCLUDED.modified_by,
			modified = EXCLUDED.modified
	`
	if _, err := r.db.ExecContext(ctx, query,
		setting.ID, setting.UserID, setting.OptIn,
		setting.CreatedBy, setting.ModifiedBy, setting.Created, setting.Modified,
	); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByUserID returns the setting row owned by userID.
func (r *PostgresRepository) GetByUserID(ctx context.Context, userID string) (*models.UserSetting, error) {
	query := `
		SELECT id, user_id, opt_in, created_by, modified_by, created, modified
		FROM user_settings
		WHERE user_id = $1
	`
	setting := &models.UserSetting{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&setting.ID, &setting.UserID, &setting.OptIn,
		&setting.CreatedBy, &setting.ModifiedBy, &setting.Created, &setting.Modified,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return setting, nil
}
