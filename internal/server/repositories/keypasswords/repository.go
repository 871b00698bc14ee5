package keypasswords

import (
	"context"

	"github.com/teamvault/escrow/internal/server/models"
)

// Repository persists per-recipient encrypted private key passwords.
type Repository interface {
	// CreateMany inserts a batch of password rows inside the caller's
	// transaction.
	CreateMany(ctx context.Context, passwords []*models.PrivateKeyPassword) error

	// ListByRecipientFingerprint returns all password rows addressed to the
	// given recipient, ordered by creation time.
	ListByRecipientFingerprint(ctx context.Context, fingerprint string) ([]*models.PrivateKeyPassword, error)

	// DeleteByPrivateKeyAndRecipient removes the password rows superseded
	// during a rotation: those owned by privateKeyID and addressed to
	// fingerprint.
	DeleteByPrivateKeyAndRecipient(ctx context.Context, privateKeyID, fingerprint string) error
}
