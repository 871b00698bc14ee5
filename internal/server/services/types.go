// Package services contains the account recovery business logic: the policy
// transition state machine, escrow password validation, per-user settings,
// and recovery request handling.
package services

// PublicKeyPayload carries user-provided organization key material.
type PublicKeyPayload struct {
	Fingerprint string `json:"fingerprint"`
	ArmoredKey  string `json:"armored_key"`
}

// PasswordPayload carries one user-provided escrowed password record.
// PrivateKeyID is only assignable under the rotateKeys ruleset; under the
// default ruleset it is attached by the surrounding transaction.
type PasswordPayload struct {
	RecipientFingerprint  string `json:"recipient_fingerprint"`
	RecipientForeignModel string `json:"recipient_foreign_model"`
	Data                  string `json:"data"`
	PrivateKeyID          string `json:"private_key_id,omitempty"`
}

// SetPolicyRequest is the administrative policy-change payload. Which nested
// payloads are present, not the transition type, determines the assertions
// that run.
type SetPolicyRequest struct {
	Policy                 string            `json:"policy"`
	OrganizationPublicKey  *PublicKeyPayload `json:"account_recovery_organization_public_key,omitempty"`
	OrganizationRevokedKey *PublicKeyPayload `json:"account_recovery_organization_revoked_key,omitempty"`
	PrivateKeyPasswords    []PasswordPayload `json:"account_recovery_private_key_passwords,omitempty"`
}

// SetUserSettingRequest is a user's participation choice. A nil OptIn is
// rejected so a missing field is distinguishable from an explicit opt-out.
type SetUserSettingRequest struct {
	OptIn *bool `json:"opt_in"`
}

// DepositEscrowRequest carries a user's escrow setup: the encrypted private
// key and one password record per designated recipient.
type DepositEscrowRequest struct {
	Data                string            `json:"data"`
	PrivateKeyPasswords []PasswordPayload `json:"account_recovery_private_key_passwords"`
}

// CreateRecoveryRequest is filed by a user who lost their passphrase,
// carrying their replacement public key.
type CreateRecoveryRequest struct {
	Fingerprint string `json:"fingerprint"`
	ArmoredKey  string `json:"armored_key"`
}

// Field names used in validation error details. They mirror the JSON request
// schema so API consumers get a uniform error shape.
const (
	fieldPolicy              = "policy"
	fieldPublicKey           = "account_recovery_organization_public_key"
	fieldRevokedKey          = "account_recovery_organization_revoked_key"
	fieldPrivateKeyPasswords = "account_recovery_private_key_passwords"
	fieldFingerprint         = "fingerprint"
	fieldArmoredKey          = "armored_key"
)
