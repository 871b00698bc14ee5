package models

import "time"

// Supported organization policy values. Exactly one policy row is current;
// changes append new rows so the history stays auditable.
const (
	PolicyOptIn     = "opt-in"
	PolicyOptOut    = "opt-out"
	PolicyMandatory = "mandatory"
	PolicyDisabled  = "disabled"
)

// SupportedPolicies lists every accepted policy value.
var SupportedPolicies = []string{PolicyOptIn, PolicyOptOut, PolicyMandatory, PolicyDisabled}

// IsSupportedPolicy reports whether p is one of the four policy values.
func IsSupportedPolicy(p string) bool {
	switch p {
	case PolicyOptIn, PolicyOptOut, PolicyMandatory, PolicyDisabled:
		return true
	}
	return false
}

// OrganizationPolicy is one row of the append-only policy history.
// PublicKeyID references the active organization key when the policy is not
// disabled.
type OrganizationPolicy struct {
	ID          string
	Policy      string
	PublicKeyID *string
	CreatedBy   string
	ModifiedBy  string
	Created     time.Time
	Modified    time.Time

	// PublicKey is populated by services when the caller needs the key row
	// alongside the policy. Not always loaded.
	PublicKey *OrganizationPublicKey
}

// IsDisabled reports whether the policy turns account recovery off.
func (p *OrganizationPolicy) IsDisabled() bool {
	return p.Policy == PolicyDisabled
}
