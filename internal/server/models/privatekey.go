package models

import "time"

// PrivateKey is a user's escrowed private key material. Owned by exactly one
// user, with one password row per designated recipient.
type PrivateKey struct {
	ID         string
	UserID     string
	Data       string
	CreatedBy  string
	ModifiedBy string
	Created    time.Time
	Modified   time.Time
}
