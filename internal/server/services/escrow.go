package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teamvault/escrow/internal/common"
	"github.com/teamvault/escrow/internal/dbx"
	"github.com/teamvault/escrow/internal/server/models"
	"github.com/teamvault/escrow/internal/server/repositories/repomanager"
	"github.com/teamvault/escrow/internal/validation"
)

// EscrowService manages the per-user escrow aggregate: the encrypted private
// key deposited at setup time and its per-recipient password rows.
type EscrowService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	policy *PolicyService
}

func NewEscrowService(db *sql.DB, repos repomanager.RepositoryManager, policy *PolicyService) *EscrowService {
	return &EscrowService{db: db, repos: repos, policy: policy}
}

// Deposit stores the actor's escrowed private key together with its password
// rows in one transaction. The password records are validated under the
// default ruleset and bound to the freshly created private key.
func (s *EscrowService) Deposit(ctx context.Context, actor *models.Actor, req *DepositEscrowRequest) (*models.PrivateKey, error) {
	policy, err := s.policy.GetCurrent(ctx)
	if err != nil {
		return nil, err
	}
	if policy.IsDisabled() {
		return nil, common.ErrNotConfigured
	}

	if req.Data == "" {
		return nil, validation.NewError("Could not validate escrow data.", validation.Details{
			"data": map[string]string{"_required": "The encrypted private key data is required."},
		})
	}
	if len(req.PrivateKeyPasswords) == 0 {
		return nil, validation.NewError("Could not validate escrow data.", validation.Details{
			fieldPrivateKeyPasswords: map[string]string{"_required": "At least one password record is required."},
		})
	}

	if _, err := s.repos.PrivateKeys(s.db).GetByUserID(ctx, actor.ID); err == nil {
		return nil, validation.NewError("Could not validate escrow data.", validation.Details{
			"user_id": map[string]string{"_isUnique": "An escrowed private key already exists for this user."},
		})
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	passwords, err := BuildAndValidatePasswords(actor, req.PrivateKeyPasswords, RulesetDefault)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	key := &models.PrivateKey{
		ID:         uuid.NewString(),
		UserID:     actor.ID,
		Data:       req.Data,
		CreatedBy:  actor.ID,
		ModifiedBy: actor.ID,
		Created:    now,
		Modified:   now,
	}
	for _, p := range passwords {
		p.PrivateKeyID = key.ID
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.PrivateKeys(tx).Create(ctx, key); err != nil {
			return err
		}
		return s.repos.KeyPasswords(tx).CreateMany(ctx, passwords)
	})
	if err != nil {
		return nil, fmt.Errorf("escrow deposit commit: %w", err)
	}

	return key, nil
}

// RotatePasswords replaces password rows during an organization key rotation.
// Each record names its private key explicitly (the rotateKeys ruleset), and
// the old rows addressed to the outgoing recipient are superseded in the same
// transaction.
func (s *EscrowService) RotatePasswords(ctx context.Context, actor *models.Actor, oldFingerprint string, payloads []PasswordPayload) error {
	if !actor.IsAdmin {
		return common.ErrorUnauthorized
	}

	passwords, err := BuildAndValidatePasswords(actor, payloads, RulesetRotateKeys)
	if err != nil {
		return err
	}

	// Referential integrity is asserted before any write, aggregated per
	// record like the field checks.
	recordErrors := map[int]validation.Details{}
	repo := s.repos.PrivateKeys(s.db)
	for i, p := range passwords {
		exists, err := repo.Exists(ctx, p.PrivateKeyID)
		if err != nil {
			return err
		}
		if !exists {
			recordErrors[i] = validation.Details{
				"private_key_id": map[string]string{"_exists": "The private key does not exist."},
			}
		}
	}
	if len(recordErrors) > 0 {
		return validation.NewError("Could not validate password data.", validation.Details{
			fieldPrivateKeyPasswords: recordErrors,
		})
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		txRepo := s.repos.KeyPasswords(tx)
		for _, p := range passwords {
			if err := txRepo.DeleteByPrivateKeyAndRecipient(ctx, p.PrivateKeyID, oldFingerprint); err != nil {
				return err
			}
		}
		return txRepo.CreateMany(ctx, passwords)
	})
	if err != nil {
		return fmt.Errorf("password rotation commit: %w", err)
	}
	return nil
}

// GetUserEscrow returns the actor's escrowed private key, or
// common.ErrorNotFound when the user never deposited one.
func (s *EscrowService) GetUserEscrow(ctx context.Context, userID string) (*models.PrivateKey, error) {
	return s.repos.PrivateKeys(s.db).GetByUserID(ctx, userID)
}
