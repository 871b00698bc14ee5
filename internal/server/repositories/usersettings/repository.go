package usersettings

import (
	"context"

	"github.com/teamvault/escrow/internal/server/models"
)

// Repository persists per-user opt-in settings, one row per user.
type Repository interface {
	// Upsert inserts the user's setting row or updates the existing one.
	Upsert(ctx context.Context, setting *models.UserSetting) error

	// GetByUserID returns the user's setting, or common.ErrorNotFound.
	GetByUserID(ctx context.Context, userID string) (*models.UserSetting, error)
}
