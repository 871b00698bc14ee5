// Package policies provides the PostgreSQL-backed store for the organization
// account recovery policy history.
package policies

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/teamvault/escrow/internal/common"
	"github.com/teamvault/escrow/internal/dbx"
	"github.com/teamvault/escrow/internal/server/models"
)

// PostgresRepository implements policy storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetCurrent returns the latest policy row by creation time.
// If no row exists yet it returns common.ErrNotConfigured.
func (r *PostgresRepository) GetCurrent(ctx context.Context) (*models.OrganizationPolicy, error) {
	query := `
		SELECT id, policy, public_key_id, created_by, modified_by, created, modified
		FROM organization_policies
		ORDER BY created DESC, id DESC
		LIMIT 1
	`
	policy := &models.OrganizationPolicy{}
	err := r.db.QueryRowContext(ctx, query).Scan(
		&policy.ID, &policy.Policy, &policy.PublicKeyID,
		&policy.CreatedBy, &policy.ModifiedBy, &policy.Created, &policy.Modified,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotConfigured
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return policy, nil
}

// Insert appends a new policy row.
func (r *PostgresRepository) Insert(ctx context.Context, policy *models.OrganizationPolicy) error {
	query := `
		INSERT INTO organization_policies (id, policy, public_key_id, created_by, modified_by, created, modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := r.db.ExecContext(ctx, query,
		policy.ID, policy.Policy, policy.PublicKeyID,
		policy.CreatedBy, policy.ModifiedBy, policy.Created, policy.Modified,
	); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
