package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teamvault/escrow/internal/common"
	"github.com/teamvault/escrow/internal/server/auth"
	"github.com/teamvault/escrow/internal/server/events"
	"github.com/teamvault/escrow/internal/server/models"
	"github.com/teamvault/escrow/internal/server/openpgp"
	"github.com/teamvault/escrow/internal/server/repositories/repomanager"
	"github.com/teamvault/escrow/internal/validation"
)

// RequestService handles the recovery request lifecycle: a user files a
// request with a replacement key, an administrator approves or rejects it,
// and the user resumes with the signed token minted at creation.
type RequestService struct {
	db            *sql.DB
	repos         repomanager.RepositoryManager
	policy        *PolicyService
	sink          events.Sink
	secretKey     []byte
	tokenValidity time.Duration
}

func NewRequestService(db *sql.DB, repos repomanager.RepositoryManager, policy *PolicyService, sink events.Sink, secretKey []byte, tokenValidity time.Duration) *RequestService {
	return &RequestService{
		db:            db,
		repos:         repos,
		policy:        policy,
		sink:          sink,
		secretKey:     secretKey,
		tokenValidity: tokenValidity,
	}
}

// Create files a recovery request for the actor. The feature must be enabled
// and the replacement key must pass the same strict ruleset as organization
// keys.
func (s *RequestService) Create(ctx context.Context, actor *models.Actor, req *CreateRecoveryRequest) (*models.RecoveryRequest, error) {
	policy, err := s.policy.GetCurrent(ctx)
	if err != nil {
		return nil, err
	}
	if policy.IsDisabled() {
		return nil, common.ErrNotConfigured
	}

	details := validation.Details{}
	fingerprint := openpgp.NormalizeFingerprint(req.Fingerprint)
	switch {
	case fingerprint == "":
		details[fieldFingerprint] = map[string]string{"_required": "A fingerprint is required."}
	case !openpgp.IsValidFingerprint(fingerprint):
		details[fieldFingerprint] = map[string]string{"invalidFingerprint": "The fingerprint should be a valid key fingerprint."}
	}
	if req.ArmoredKey == "" {
		details[fieldArmoredKey] = map[string]string{"_required": "An armored key is required."}
	}
	if len(details) > 0 {
		return nil, validation.NewError("Could not validate recovery request data.", details)
	}

	info, err := openpgp.ParseAndValidatePublicKey(req.ArmoredKey, openpgp.RulesetStrict)
	if err != nil {
		if errors.Is(err, common.ErrInternalConfiguration) {
			return nil, err
		}
		return nil, validation.NewError("Could not validate recovery request data.", validation.Details{
			fieldArmoredKey: keyRuleErrors(err),
		})
	}
	if err := openpgp.AssertSameFingerprint(info.Fingerprint, fingerprint); err != nil {
		return nil, validation.NewError("Could not validate recovery request data.", validation.Details{
			fieldFingerprint: map[string]string{
				"isMatchingKeyFingerprintRule": "The fingerprint does not match the one of the armored key.",
			},
		})
	}

	now := time.Now().UTC()
	request := &models.RecoveryRequest{
		ID:          uuid.NewString(),
		UserID:      actor.ID,
		Status:      models.RequestPending,
		Fingerprint: fingerprint,
		ArmoredKey:  req.ArmoredKey,
		CreatedBy:   actor.ID,
		ModifiedBy:  actor.ID,
		Created:     now,
		Modified:    now,
	}

	token, err := auth.GenerateRequestToken(request.ID, actor.ID, s.secretKey, s.tokenValidity)
	if err != nil {
		return nil, fmt.Errorf("mint request token: %w", err)
	}
	request.AuthenticationToken = token

	if err := s.repos.Requests(s.db).Create(ctx, request); err != nil {
		return nil, err
	}

	s.sink.Publish(ctx, events.Event{
		Name:    events.RequestCreate,
		ActorID: actor.ID,
		Request: request,
	})

	return request, nil
}

// Approve transitions a pending request to approved.
func (s *RequestService) Approve(ctx context.Context, actor *models.Actor, requestID string) (*models.RecoveryRequest, error) {
	return s.review(ctx, actor, requestID, models.RequestApproved, events.RequestApprove)
}

// Reject transitions a pending request to rejected.
func (s *RequestService) Reject(ctx context.Context, actor *models.Actor, requestID string) (*models.RecoveryRequest, error) {
	return s.review(ctx, actor, requestID, models.RequestRejected, events.RequestReject)
}

func (s *RequestService) review(ctx context.Context, actor *models.Actor, requestID, status, eventName string) (*models.RecoveryRequest, error) {
	if !actor.IsAdmin {
		return nil, common.ErrorUnauthorized
	}

	repo := s.repos.Requests(s.db)
	request, err := repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != models.RequestPending {
		return nil, validation.NewError("Could not validate recovery request data.", validation.Details{
			"status": map[string]string{
				"isPendingRule": fmt.Sprintf("Only pending requests can be reviewed, this one is %s.", request.Status),
			},
		})
	}

	if err := repo.UpdateStatus(ctx, requestID, status, actor.ID); err != nil {
		return nil, err
	}
	request.Status = status
	request.ModifiedBy = actor.ID
	request.Modified = time.Now().UTC()

	s.sink.Publish(ctx, events.Event{
		Name:    eventName,
		ActorID: actor.ID,
		Request: request,
	})

	return request, nil
}

// Complete hands the escrowed private key to the owner of an approved
// request and closes the request. The caller authenticates with the token
// minted at creation time.
func (s *RequestService) Complete(ctx context.Context, tokenString string) (*models.PrivateKey, error) {
	request, err := s.ValidateRequestToken(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	key, err := s.repos.PrivateKeys(s.db).GetByUserID(ctx, request.UserID)
	if err != nil {
		return nil, err
	}

	if err := s.repos.Requests(s.db).UpdateStatus(ctx, request.ID, models.RequestCompleted, request.UserID); err != nil {
		return nil, err
	}
	request.Status = models.RequestCompleted
	request.ModifiedBy = request.UserID
	request.Modified = time.Now().UTC()

	s.sink.Publish(ctx, events.Event{
		Name:    events.RequestComplete,
		ActorID: request.UserID,
		Request: request,
	})

	return key, nil
}

// ValidateRequestToken verifies a request token and checks it still points
// at an approved request owned by the claimed user.
func (s *RequestService) ValidateRequestToken(ctx context.Context, tokenString string) (*models.RecoveryRequest, error) {
	claims, err := auth.ParseRequestToken(tokenString, s.secretKey)
	if err != nil {
		return nil, err
	}

	request, err := s.repos.Requests(s.db).GetByID(ctx, claims.RequestID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, err
	}
	if request.UserID != claims.UserID {
		return nil, common.ErrInvalidToken
	}
	if request.Status != models.RequestApproved {
		return nil, validation.NewError("Could not validate recovery request data.", validation.Details{
			"status": map[string]string{
				"isApprovedRule": fmt.Sprintf("The request should be approved, it is %s.", request.Status),
			},
		})
	}

	return request, nil
}
