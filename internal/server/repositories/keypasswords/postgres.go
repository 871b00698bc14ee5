// Package keypasswords provides the PostgreSQL-backed store for escrowed
// private key passwords.
package keypasswords

import (
	"context"
	"fmt"

	"github.com/teamvault/escrow/internal/dbx"
	"github.com/teamvault/escrow/internal/server/models"
)

// PostgresRepository implements password storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateMany inserts every password row. Callers run this inside a
// transaction so a batch lands all-or-nothing.
func (r *PostgresRepository) CreateMany(ctx context.Context, passwords []*models.PrivateKeyPassword) error {
	query := `
		INSERT INTO private_key_passwords (id, private_key_id, recipient_fingerprint, recipient_foreign_model, data, created_by, modified_by, created, modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, p := range passwords {
		if _, err := r.db.ExecContext(ctx, query,
			p.ID, p.PrivateKeyID, p.RecipientFingerprint, p.RecipientForeignModel, p.Data,
			p.CreatedBy, p.ModifiedBy, p.Created, p.Modified,
		); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

// ListByRecipientFingerprint returns all password rows addressed to the given
// recipient fingerprint, oldest first.
func (r *PostgresRepository) ListByRecipientFingerprint(ctx context.Context, fingerprint string) ([]*models.PrivateKeyPassword, error) {
	query := `
		SELECT id, private_key_id, recipient_fingerprint, recipient_foreign_model, data, created_by, modified_by, created, modified
		FROM private_key_passwords
		WHERE recipient_fingerprint = $1
		ORDER BY created ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.PrivateKeyPassword
	for rows.Next() {
		var item models.PrivateKeyPassword
		if err := rows.Scan(
			&item.ID, &item.PrivateKeyID, &item.RecipientFingerprint, &item.RecipientForeignModel,
			&item.Data, &item.CreatedBy, &item.ModifiedBy, &item.Created, &item.Modified,
		); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteByPrivateKeyAndRecipient removes rows superseded by a rotation.
func (r *PostgresRepository) DeleteByPrivateKeyAndRecipient(ctx context.Context, privateKeyID, fingerprint string) error {
	query := `
		DELETE FROM private_key_passwords
		WHERE private_key_id = $1 AND recipient_fingerprint = $2
	`
	if _, err := r.db.ExecContext(ctx, query, privateKeyID, fingerprint); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
