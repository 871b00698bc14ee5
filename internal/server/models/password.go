package models

import "time"

// Recipient foreign models: the category of entity allowed to decrypt an
// escrowed private key password.
const (
	ForeignModelOrganizationKey = "organization-key"
	ForeignModelUserKey         = "user-key"
)

// AllowedRecipientForeignModels lists the accepted recipient categories.
var AllowedRecipientForeignModels = []string{
	ForeignModelOrganizationKey,
	ForeignModelUserKey,
}

// IsAllowedRecipientForeignModel reports whether m is an accepted category.
func IsAllowedRecipientForeignModel(m string) bool {
	for _, allowed := range AllowedRecipientForeignModels {
		if m == allowed {
			return true
		}
	}
	return false
}

// PrivateKeyPassword is one OpenPGP-encrypted copy of a user's private key
// password, addressed to a single recipient identified by fingerprint.
// Rows are never mutated after creation; rotation supersedes old rows with
// new ones.
type PrivateKeyPassword struct {
	ID                    string
	PrivateKeyID          string
	RecipientFingerprint  string
	RecipientForeignModel string
	Data                  string
	CreatedBy             string
	ModifiedBy            string
	Created               time.Time
	Modified              time.Time
}
