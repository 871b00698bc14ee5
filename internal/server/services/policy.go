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
	"github.com/teamvault/escrow/internal/logging"
	"github.com/teamvault/escrow/internal/server/archive"
	"github.com/teamvault/escrow/internal/server/events"
	"github.com/teamvault/escrow/internal/server/models"
	"github.com/teamvault/escrow/internal/server/openpgp"
	"github.com/teamvault/escrow/internal/server/repositories/repomanager"
	"github.com/teamvault/escrow/internal/validation"
)

// PolicyService is the state machine governing organization policy changes.
// Every entity construction is a pure, side-effect-free build; the commit is
// one atomic transaction so a new policy row never lands without its key.
type PolicyService struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	sink     events.Sink
	archiver archive.KeyArchiver
	logger   logging.Logger
}

// NewPolicyService constructs a PolicyService. The archiver may be nil when
// revoked-key archival is not configured.
func NewPolicyService(db *sql.DB, repos repomanager.RepositoryManager, sink events.Sink, archiver archive.KeyArchiver, logger logging.Logger) *PolicyService {
	return &PolicyService{db: db, repos: repos, sink: sink, archiver: archiver, logger: logger}
}

// GetCurrent returns the current organization policy. When no policy row
// exists yet the organization is implicitly disabled. The active key row is
// attached when the policy references one.
func (s *PolicyService) GetCurrent(ctx context.Context) (*models.OrganizationPolicy, error) {
	policy, err := s.repos.Policies(s.db).GetCurrent(ctx)
	if err != nil {
		if errors.Is(err, common.ErrNotConfigured) {
			return &models.OrganizationPolicy{Policy: models.PolicyDisabled}, nil
		}
		return nil, err
	}

	if policy.PublicKeyID != nil {
		key, err := s.repos.OrgKeys(s.db).GetByID(ctx, *policy.PublicKeyID)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		policy.PublicKey = key
	}

	return policy, nil
}

// Set applies an administrative policy-change request: asserts the request
// shape, builds every entity, commits atomically, and emits exactly one
// domain event.
func (s *PolicyService) Set(ctx context.Context, actor *models.Actor, req *SetPolicyRequest) (*models.OrganizationPolicy, error) {
	// The policy value is asserted first and fails fast; nested payload
	// fields are batched afterwards.
	if err := assertOrganizationPolicy(req.Policy); err != nil {
		return nil, err
	}

	current, err := s.GetCurrent(ctx)
	if err != nil {
		return nil, err
	}

	isEnabling := current.Policy == models.PolicyDisabled && req.Policy != models.PolicyDisabled
	isDisabling := current.Policy != models.PolicyDisabled && req.Policy == models.PolicyDisabled

	now := time.Now().UTC()

	var newKey *models.OrganizationPublicKey
	if req.OrganizationPublicKey != nil {
		// A disabled policy carries no key reference, so a replacement key
		// payload makes no sense on a disable request.
		if req.Policy == models.PolicyDisabled {
			return nil, validation.NewError("Could not validate policy data.", validation.Details{
				fieldPublicKey: map[string]string{
					"isNullOnDisabledRule": "The organization key must not be provided when disabling.",
				},
			})
		}
		newKey, err = s.assertNewPublicKey(ctx, actor, req.OrganizationPublicKey, now)
		if err != nil {
			return nil, err
		}
	}

	var revokedKey *models.OrganizationPublicKey
	if req.OrganizationRevokedKey != nil {
		// A non-disabled policy must keep an active key: revocation without a
		// replacement is only valid when disabling.
		if req.Policy != models.PolicyDisabled && newKey == nil {
			return nil, validation.NewError("Could not validate policy data.", validation.Details{
				fieldPublicKey: map[string]string{
					"_required": "A replacement organization key is required when revoking without disabling.",
				},
			})
		}
		revokedKey, err = s.assertAndPatchRevokedKey(ctx, actor, req.OrganizationRevokedKey, now)
		if err != nil {
			return nil, err
		}
	}

	var passwords []*models.PrivateKeyPassword
	var superseded []*models.PrivateKeyPassword
	if len(req.PrivateKeyPasswords) > 0 {
		passwords, err = BuildAndValidatePasswords(actor, req.PrivateKeyPasswords, RulesetDefault)
		if err != nil {
			return nil, err
		}
		superseded, err = s.attachPrivateKeyIDs(ctx, passwords, revokedKey, newKey)
		if err != nil {
			return nil, err
		}
	}

	newPolicy := &models.OrganizationPolicy{
		ID:         uuid.NewString(),
		Policy:     req.Policy,
		CreatedBy:  actor.ID,
		ModifiedBy: actor.ID,
		Created:    now,
		Modified:   now,
	}
	switch {
	case newKey != nil:
		newPolicy.PublicKeyID = &newKey.ID
	case req.Policy != models.PolicyDisabled && revokedKey == nil:
		// Policy change among enabled states with no key change keeps the
		// current key reference.
		newPolicy.PublicKeyID = current.PublicKeyID
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if newKey != nil {
			if err := s.repos.OrgKeys(tx).Insert(ctx, newKey); err != nil {
				return err
			}
		}
		if err := s.repos.Policies(tx).Insert(ctx, newPolicy); err != nil {
			return err
		}
		if revokedKey != nil {
			if err := s.repos.OrgKeys(tx).Revoke(ctx, revokedKey); err != nil {
				return err
			}
		}
		if len(passwords) > 0 {
			repo := s.repos.KeyPasswords(tx)
			for _, old := range superseded {
				if err := repo.DeleteByPrivateKeyAndRecipient(ctx, old.PrivateKeyID, old.RecipientFingerprint); err != nil {
					return err
				}
			}
			if err := repo.CreateMany(ctx, passwords); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("policy change commit: %w", err)
	}

	newPolicy.PublicKey = newKey

	eventName := events.PolicyUpdate
	if isEnabling {
		eventName = events.PolicyEnable
	} else if isDisabling {
		eventName = events.PolicyDisable
	}
	s.sink.Publish(ctx, events.Event{
		Name:      eventName,
		ActorID:   actor.ID,
		OldPolicy: current,
		NewPolicy: newPolicy,
	})

	if revokedKey != nil && s.archiver != nil {
		// Best-effort: never fail the committed change on archive trouble.
		if err := s.archiver.ArchiveRevokedKey(ctx, revokedKey); err != nil {
			s.logger.Warn(ctx, "revoked key archive failed", "fingerprint", revokedKey.Fingerprint, "error", err.Error())
		}
	}

	return newPolicy, nil
}

// assertOrganizationPolicy checks the policy value itself: non-empty and one
// of the four supported values.
func assertOrganizationPolicy(policy string) error {
	if policy == "" {
		return validation.NewError("Could not validate policy data.", validation.Details{
			fieldPolicy: map[string]string{"_required": "A policy is required."},
		})
	}
	if !models.IsSupportedPolicy(policy) {
		return validation.NewError("Could not validate policy data.", validation.Details{
			fieldPolicy: map[string]string{"inList": "The policy should be one of the supported values."},
		})
	}
	return nil
}

// assertNewPublicKey validates user-provided key material under the strict
// ruleset and builds the entity to insert. No write happens here.
func (s *PolicyService) assertNewPublicKey(ctx context.Context, actor *models.Actor, payload *PublicKeyPayload, now time.Time) (*models.OrganizationPublicKey, error) {
	details, fingerprint := assertKeyPayloadShape(payload)
	if len(details) > 0 {
		return nil, validation.NewError("Could not validate policy data.", validation.Details{fieldPublicKey: details})
	}

	info, err := openpgp.ParseAndValidatePublicKey(payload.ArmoredKey, openpgp.RulesetStrict)
	if err != nil {
		if errors.Is(err, common.ErrInternalConfiguration) {
			return nil, err
		}
		return nil, validation.NewError("Could not validate policy data.", validation.Details{
			fieldPublicKey: validation.Details{fieldArmoredKey: keyRuleErrors(err)},
		})
	}

	if err := openpgp.AssertSameFingerprint(info.Fingerprint, fingerprint); err != nil {
		return nil, validation.NewError("Could not validate policy data.", validation.Details{
			fieldPublicKey: validation.Details{fieldFingerprint: map[string]string{
				"isMatchingKeyFingerprintRule": "The fingerprint does not match the one of the armored key.",
			}},
		})
	}

	// Table-level integrity: only one active key per fingerprint.
	_, err = s.repos.OrgKeys(s.db).FindActiveByFingerprint(ctx, fingerprint)
	switch {
	case err == nil:
		return nil, validation.NewError("Could not validate policy data.", validation.Details{
			fieldPublicKey: validation.Details{fieldFingerprint: map[string]string{
				"_isUnique": "An active key with this fingerprint already exists.",
			}},
		})
	case !errors.Is(err, common.ErrorNotFound):
		return nil, err
	}

	return &models.OrganizationPublicKey{
		ID:          uuid.NewString(),
		Fingerprint: fingerprint,
		ArmoredKey:  payload.ArmoredKey,
		CreatedBy:   actor.ID,
		ModifiedBy:  actor.ID,
		Created:     now,
		Modified:    now,
	}, nil
}

// assertAndPatchRevokedKey checks the revocation payload against the
// currently active key and produces the patch to apply: soft-delete plus the
// replacement revoked armor. The patch is applied by the commit, not here.
func (s *PolicyService) assertAndPatchRevokedKey(ctx context.Context, actor *models.Actor, payload *PublicKeyPayload, now time.Time) (*models.OrganizationPublicKey, error) {
	details, fingerprint := assertKeyPayloadShape(payload)
	if len(details) > 0 {
		return nil, validation.NewError("Could not validate key revocation.", validation.Details{fieldRevokedKey: details})
	}

	oldKey, err := s.repos.OrgKeys(s.db).FindActiveByFingerprint(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, validation.NewError("Could not validate key revocation.", validation.Details{
				fieldRevokedKey: validation.Details{fieldFingerprint: map[string]string{
					"_exists": "The fingerprint should match the one from the currently active key.",
				}},
			})
		}
		return nil, err
	}

	info, err := openpgp.ParseAndValidatePublicKey(payload.ArmoredKey, openpgp.RulesetRevoked)
	if err != nil {
		if errors.Is(err, common.ErrInternalConfiguration) {
			return nil, err
		}
		return nil, validation.NewError("Could not validate key revocation.", validation.Details{
			fieldRevokedKey: validation.Details{fieldArmoredKey: keyRuleErrors(err)},
		})
	}

	if err := openpgp.AssertSameFingerprint(info.Fingerprint, oldKey.Fingerprint); err != nil {
		return nil, validation.NewError("Could not validate key revocation.", validation.Details{
			fieldRevokedKey: validation.Details{fieldFingerprint: map[string]string{
				"isMatchingKeyFingerprintRule": "The fingerprint does not match the one of the armored key.",
			}},
		})
	}

	patched := *oldKey
	patched.ArmoredKey = payload.ArmoredKey
	patched.Deleted = &now
	patched.ModifiedBy = actor.ID
	patched.Modified = now
	return &patched, nil
}

// attachPrivateKeyIDs resolves the private key each re-encrypted password
// belongs to. Re-encryptions are only meaningful while the recipient key is
// being rotated out: the rows addressed to the outgoing key, oldest first,
// are paired positionally with the submitted records and superseded by them.
func (s *PolicyService) attachPrivateKeyIDs(ctx context.Context, passwords []*models.PrivateKeyPassword, revokedKey, newKey *models.OrganizationPublicKey) ([]*models.PrivateKeyPassword, error) {
	if revokedKey == nil {
		return nil, validation.NewError("Could not validate password data.", validation.Details{
			fieldPrivateKeyPasswords: map[string]string{
				"_requireRevokedKey": "Passwords can only be supplied together with a key revocation.",
			},
		})
	}

	// Every submitted record must be re-encrypted for the replacement key, or
	// a record addressed to an unrelated key would be silently bound to a
	// rotated private key id.
	if newKey != nil {
		recordErrors := map[int]validation.Details{}
		for i, p := range passwords {
			if p.RecipientFingerprint != newKey.Fingerprint {
				recordErrors[i] = validation.Details{
					"recipient_fingerprint": map[string]string{
						"isMatchingKeyFingerprintRule": "The fingerprint does not match the one of the new organization key.",
					},
				}
			}
		}
		if len(recordErrors) > 0 {
			return nil, validation.NewError("Could not validate password data.", validation.Details{
				fieldPrivateKeyPasswords: recordErrors,
			})
		}
	}

	existing, err := s.repos.KeyPasswords(s.db).ListByRecipientFingerprint(ctx, revokedKey.Fingerprint)
	if err != nil {
		return nil, err
	}
	if len(existing) != len(passwords) {
		return nil, validation.NewError("Could not validate password data.", validation.Details{
			fieldPrivateKeyPasswords: map[string]string{
				"_count": fmt.Sprintf("Expected %d password records, got %d.", len(existing), len(passwords)),
			},
		})
	}

	for i, p := range passwords {
		p.PrivateKeyID = existing[i].PrivateKeyID
	}
	return existing, nil
}

// assertKeyPayloadShape runs the field-presence checks shared by the new-key
// and revoked-key payloads and returns the normalized fingerprint.
func assertKeyPayloadShape(payload *PublicKeyPayload) (validation.Details, string) {
	details := validation.Details{}

	fingerprint := openpgp.NormalizeFingerprint(payload.Fingerprint)
	switch {
	case fingerprint == "":
		details[fieldFingerprint] = map[string]string{"_required": "A fingerprint is required."}
	case !openpgp.IsValidFingerprint(fingerprint):
		details[fieldFingerprint] = map[string]string{"invalidFingerprint": "The fingerprint should be a valid key fingerprint."}
	}

	if payload.ArmoredKey == "" {
		details[fieldArmoredKey] = map[string]string{"_required": "An armored key is required."}
	}

	return details, fingerprint
}

// keyRuleErrors maps a validator error to the rule-keyed detail map nested
// under armored_key. Unexpected parser output is attached verbatim under
// invalidArmoredKey instead of propagating unannotated.
func keyRuleErrors(err error) map[string]string {
	switch {
	case errors.Is(err, openpgp.ErrPrivateKeyProvided):
		return map[string]string{"isPublicKeyRule": "The key should be a public key."}
	case errors.Is(err, openpgp.ErrKeyExpired):
		return map[string]string{"isNotExpiredRule": "The key should not be expired."}
	case errors.Is(err, openpgp.ErrKeyRevoked):
		return map[string]string{"isNotRevokedRule": "The key should not be revoked."}
	case errors.Is(err, openpgp.ErrKeyCannotEncrypt):
		return map[string]string{"canEncryptRule": "The key should be able to encrypt."}
	default:
		return map[string]string{"invalidArmoredKey": err.Error()}
	}
}
