// Package orgkeys provides the PostgreSQL-backed store for organization
// public keys.
package orgkeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/teamvault/escrow/internal/common"
	"github.com/teamvault/escrow/internal/dbx"
	"github.com/teamvault/escrow/internal/server/models"
)

// PostgresRepository implements key storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert stores a new active organization key. The partial unique index on
// fingerprint rejects a concurrent duplicate activation.
func (r *PostgresRepository) Insert(ctx context.Context, key *models.OrganizationPublicKey) error {
	query := `
		INSERT INTO organization_public_keys (id, fingerprint, armored_key, deleted, created_by, modified_by, created, modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := r.db.ExecContext(ctx, query,
		key.ID, key.Fingerprint, key.ArmoredKey, key.Deleted,
		key.CreatedBy, key.ModifiedBy, key.Created, key.Modified,
	); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByID returns a key row by id.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.OrganizationPublicKey, error) {
	query := `
		SELECT id, fingerprint, armored_key, deleted, created_by, modified_by, created, modified
		FROM organization_public_keys
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// FindActiveByFingerprint returns the active key matching fingerprint, or
// common.ErrorNotFound when no active key matches.
func (r *PostgresRepository) FindActiveByFingerprint(ctx context.Context, fingerprint string) (*models.OrganizationPublicKey, error) {
	query := `
		SELECT id, fingerprint, armored_key, deleted, created_by, modified_by, created, modified
		FROM organization_public_keys
		WHERE fingerprint = $1 AND deleted IS NULL
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, fingerprint))
}

// Revoke updates an existing key with its revocation armor and soft-delete
// timestamp. Returns common.ErrorNotFound when the key row is absent.
func (r *PostgresRepository) Revoke(ctx context.Context, key *models.OrganizationPublicKey) error {
	query := `
		UPDATE organization_public_keys
		SET armored_key = $2, deleted = $3, modified_by = $4, modified = $5
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		key.ID, key.ArmoredKey, key.Deleted, key.ModifiedBy, key.Modified,
	)
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

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.OrganizationPublicKey, error) {
	key := &models.OrganizationPublicKey{}
	err := row.Scan(
		&key.ID, &key.Fingerprint, &key.ArmoredKey, &key.Deleted,
		&key.CreatedBy, &key.ModifiedBy, &key.Created, &key.Modified,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return key, nil
}
