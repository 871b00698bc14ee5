package privatekeys

import (
	"context"

	"github.com/teamvault/escrow/internal/server/models"
)

// Repository persists escrowed private keys, one per user.
type Repository interface {
	// Create stores a user's escrowed private key.
	Create(ctx context.Context, key *models.PrivateKey) error

	// GetByUserID returns the user's escrowed key, or common.ErrorNotFound.
	GetByUserID(ctx context.Context, userID string) (*models.PrivateKey, error)

	// Exists reports whether a private key row with the given id exists.
	// Used as the foreign-key existence check during password validation.
	Exists(ctx context.Context, id string) (bool, error)
}
