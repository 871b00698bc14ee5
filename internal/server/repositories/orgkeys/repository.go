package orgkeys

import (
	"context"

	"github.com/teamvault/escrow/internal/server/models"
)

// Repository persists organization public keys. Keys are soft-deleted on
// revocation so history is retained.
type Repository interface {
	// Insert stores a newly activated organization key.
	Insert(ctx context.Context, key *models.OrganizationPublicKey) error

	// GetByID returns a key row by id, or common.ErrorNotFound.
	GetByID(ctx context.Context, id string) (*models.OrganizationPublicKey, error)

	// FindActiveByFingerprint returns the key with the given fingerprint and
	// deleted IS NULL, or common.ErrorNotFound.
	FindActiveByFingerprint(ctx context.Context, fingerprint string) (*models.OrganizationPublicKey, error)

	// Revoke applies a revocation patch to an existing key: replaces the
	// armored key, sets deleted, and stamps modified_by.
	Revoke(ctx context.Context, key *models.OrganizationPublicKey) error
}
