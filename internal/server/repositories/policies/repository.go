package policies

import (
	"context"

	"github.com/teamvault/escrow/internal/server/models"
)

// Repository persists the append-only organization policy history.
type Repository interface {
	// GetCurrent returns the most recent policy row, or
	// common.ErrNotConfigured when no policy has ever been set.
	GetCurrent(ctx context.Context) (*models.OrganizationPolicy, error)

	// Insert appends a new policy row. History rows are never updated.
	Insert(ctx context.Context, policy *models.OrganizationPolicy) error
}
