// Package privatekeys provides the PostgreSQL-backed store for escrowed
// private keys.
package privatekeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/teamvault/escrow/internal/common"
	"github.com/teamvault/escrow/internal/dbx"
	"github.com/teamvault/escrow/internal/server/models"
)

// PostgresRepository implements private key storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create stores a user's escrowed private key. The unique constraint on
// user_id rejects a second escrow for the same user.
func (r *PostgresRepository) Create(ctx context.Context, key *models.PrivateKey) error {
	query := `
		INSERT INTO private_keys (id, user_id, data, created_by, modified_by, created, modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := r.db.ExecContext(ctx, query,
		key.ID, key.UserID, key.Data, key.CreatedBy, key.ModifiedBy, key.Created, key.Modified,
	); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByUserID returns the escrowed key owned by userID.
func (r *PostgresRepository) GetByUserID(ctx context.Context, userID string) (*models.PrivateKey, error) {
	query := `
		SELECT id, user_id, data, created_by, modified_by, created, modified
		FROM private_keys
		WHERE user_id = $1
	`
	key := &models.PrivateKey{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&key.ID, &key.UserID, &key.Data, &key.CreatedBy, &key.ModifiedBy, &key.Created, &key.Modified,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return key, nil
}

// Exists reports whether a private key row with the given id exists.
func (r *PostgresRepository) Exists(ctx context.Context, id string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM private_keys WHERE id = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}
