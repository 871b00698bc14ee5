package requests

import (
	"context"

	"github.com/teamvault/escrow/internal/server/models"
)

// Repository persists account recovery requests.
type Repository interface {
	// Create stores a new recovery request.
	Create(ctx context.Context, request *models.RecoveryRequest) error

	// GetByID returns a request by id, or common.ErrorNotFound.
	GetByID(ctx context.Context, id string) (*models.RecoveryRequest, error)

	// UpdateStatus transitions a request to the given status and stamps
	// modified_by. Returns common.ErrorNotFound when the row is absent.
	UpdateStatus(ctx context.Context, id, status, modifiedBy string) error
}
