package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/teamvault/escrow/internal/common"
	"github.com/teamvault/escrow/internal/server/models"
	"github.com/teamvault/escrow/internal/server/repositories/repomanager"
	"github.com/teamvault/escrow/internal/validation"
)

// UserSettingService manages the per-user opt-in choice. The choice is only
// free under the opt-in and opt-out policies; mandatory forces participation
// and disabled forbids it.
type UserSettingService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	policy *PolicyService
}

func NewUserSettingService(db *sql.DB, repos repomanager.RepositoryManager, policy *PolicyService) *UserSettingService {
	return &UserSettingService{db: db, repos: repos, policy: policy}
}

// Get returns the user's current setting. A user who never chose inherits
// the policy default: opted in under mandatory, opted out otherwise.
func (s *UserSettingService) Get(ctx context.Context, userID string) (*models.UserSetting, error) {
	setting, err := s.repos.UserSettings(s.db).GetByUserID(ctx, userID)
	if err == nil {
		return setting, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	policy, err := s.policy.GetCurrent(ctx)
	if err != nil {
		return nil, err
	}
	return &models.UserSetting{
		UserID: userID,
		OptIn:  policy.Policy == models.PolicyMandatory,
	}, nil
}

// Set records the user's choice. The request is refused while the feature is
// disabled, and under the mandatory policy where the user has no choice.
func (s *UserSettingService) Set(ctx context.Context, actor *models.Actor, req *SetUserSettingRequest) (*models.UserSetting, error) {
	if req.OptIn == nil {
		return nil, validation.NewError("Could not validate setting data.", validation.Details{
			"status": map[string]string{"_required": "A status is required."},
		})
	}

	policy, err := s.policy.GetCurrent(ctx)
	if err != nil {
		return nil, err
	}
	if policy.IsDisabled() {
		return nil, validation.NewError("Could not validate setting data.", validation.Details{
			"status": map[string]string{"isEnabledRule": "Account recovery is disabled for the organization."},
		})
	}
	if policy.Policy == models.PolicyMandatory {
		return nil, validation.NewError("Could not validate setting data.", validation.Details{
			"status": map[string]string{"isMandatoryRule": "The mandatory policy leaves no choice to the user."},
		})
	}

	now := time.Now().UTC()
	setting := &models.UserSetting{
		ID:         uuid.NewString(),
		UserID:     actor.ID,
		OptIn:      *req.OptIn,
		CreatedBy:  actor.ID,
		ModifiedBy: actor.ID,
		Created:    now,
		Modified:   now,
	}
	if err := s.repos.UserSettings(s.db).Upsert(ctx, setting); err != nil {
		return nil, err
	}
	return setting, nil
}
