package models

import "time"

// OrganizationPublicKey is the OpenPGP public key users encrypt their escrowed
// private key passwords to. A key is active while Deleted is nil; revocation
// sets Deleted and replaces ArmoredKey with the revoked armor, keeping the row
// for audit.
type OrganizationPublicKey struct {
	ID          string
	Fingerprint string
	ArmoredKey  string
	Deleted     *time.Time
	CreatedBy   string
	ModifiedBy  string
	Created     time.Time
	Modified    time.Time
}

// IsActive reports whether the key has not been revoked.
func (k *OrganizationPublicKey) IsActive() bool {
	return k.Deleted == nil
}
