// Package requests provides the PostgreSQL-backed store for account recovery
// requests.
package requests

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/teamvault/escrow/internal/common"
	"github.com/teamvault/escrow/internal/dbx"
	"github.com/teamvault/escrow/internal/server/models"
)

// PostgresRepository implements request storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create stores a new recovery request row.
func (r *PostgresRepository) Create(ctx context.Context, request *models.RecoveryRequest) error {
	query := `
		INSERT INTO recovery_requests (id, user_id, status, fingerprint, armored_key, authentication_token, created_by, modified_by, created, modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := r.db.ExecContext(ctx, query,
		request.ID, request.UserID, request.Status, request.Fingerprint, request.ArmoredKey,
		request.AuthenticationToken, request.CreatedBy, request.ModifiedBy, request.Created, request.Modified,
	); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByID returns a request row by id.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.RecoveryRequest, error) {
	query := `
		SELECT id, user_id, status, fingerprint, armored_key, authentication_token, created_by, modified_by, created, modified
		FROM recovery_requests
		WHERE id = $1
	`
	request := &models.RecoveryRequest{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&request.ID, &request.UserID, &request.Status, &request.Fingerprint, &request.ArmoredKey,
		&request.AuthenticationToken, &request.CreatedBy, &request.ModifiedBy, &request.Created, &request.Modified,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return request, nil
}

// UpdateStatus transitions a request to the given status.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id, status, modifiedBy string) error {
	query := `
		UPDATE recovery_requests
		SET status = $2, modified_by = $3, modified = $4
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, status, modifiedBy, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
