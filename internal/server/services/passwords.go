package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teamvault/escrow/internal/common"
	"github.com/teamvault/escrow/internal/server/models"
	"github.com/teamvault/escrow/internal/server/openpgp"
	"github.com/teamvault/escrow/internal/validation"
)

// Password validation rulesets. Under RulesetDefault the private key id is
// attached by the surrounding transaction and never taken from the caller;
// under RulesetRotateKeys the caller must supply it.
const (
	RulesetDefault    = "default"
	RulesetRotateKeys = "rotateKeys"
)

// BuildAndValidatePasswords validates every password record and builds the
// entities to persist. It is a pure validate and build step with no side
// effects. All records are checked and every error is reported together,
// keyed by record index, so a caller can surface all problems in one
// response.
func BuildAndValidatePasswords(actor *models.Actor, payloads []PasswordPayload, ruleset string) ([]*models.PrivateKeyPassword, error) {
	if ruleset != RulesetDefault && ruleset != RulesetRotateKeys {
		return nil, fmt.Errorf("%w: invalid validation ruleset %q", common.ErrInternalConfiguration, ruleset)
	}

	now := time.Now().UTC()
	entities := make([]*models.PrivateKeyPassword, 0, len(payloads))
	recordErrors := map[int]validation.Details{}

	for i, p := range payloads {
		details := validation.Details{}

		fingerprint := openpgp.NormalizeFingerprint(p.RecipientFingerprint)
		switch {
		case fingerprint == "":
			details["recipient_fingerprint"] = map[string]string{
				"_required": "A fingerprint is required.",
			}
		case !openpgp.IsValidFingerprint(fingerprint):
			details["recipient_fingerprint"] = map[string]string{
				"invalidFingerprint": "The fingerprint should be a valid key fingerprint.",
			}
		}

		switch {
		case p.RecipientForeignModel == "":
			details["recipient_foreign_model"] = map[string]string{
				"_required": "A recipient foreign model is required.",
			}
		case !models.IsAllowedRecipientForeignModel(p.RecipientForeignModel):
			details["recipient_foreign_model"] = map[string]string{
				"inList": "The recipient foreign model is not supported.",
			}
		}

		switch {
		case p.Data == "":
			details["data"] = map[string]string{
				"_required": "The message data is required.",
			}
		case !openpgp.IsParsableMessage(p.Data):
			details["data"] = map[string]string{
				"isValidOpenPGPMessage": "The message should be a valid OpenPGP message.",
			}
		}

		privateKeyID := ""
		if ruleset == RulesetRotateKeys {
			switch {
			case p.PrivateKeyID == "":
				details["private_key_id"] = map[string]string{
					"_required": "A private key identifier is required.",
				}
			default:
				if _, err := uuid.Parse(p.PrivateKeyID); err != nil {
					details["private_key_id"] = map[string]string{
						"uuid": "The private key identifier should be a valid UUID.",
					}
				} else {
					privateKeyID = p.PrivateKeyID
				}
			}
		}
		// Under the default ruleset a caller-supplied private_key_id is not
		// an accepted input and is silently left unassigned.

		if len(details) > 0 {
			recordErrors[i] = details
			continue
		}

		entities = append(entities, &models.PrivateKeyPassword{
			ID:                    uuid.NewString(),
			PrivateKeyID:          privateKeyID,
			RecipientFingerprint:  fingerprint,
			RecipientForeignModel: p.RecipientForeignModel,
			Data:                  p.Data,
			CreatedBy:             actor.ID,
			ModifiedBy:            actor.ID,
			Created:               now,
			Modified:              now,
		})
	}

	if len(recordErrors) > 0 {
		return nil, validation.NewError("Could not validate password data.", validation.Details{
			fieldPrivateKeyPasswords: recordErrors,
		})
	}

	return entities, nil
}
