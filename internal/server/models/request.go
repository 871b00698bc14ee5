package models

import "time"

// Recovery request statuses.
const (
	RequestPending   = "pending"
	RequestApproved  = "approved"
	RequestRejected  = "rejected"
	RequestCompleted = "completed"
)

// RecoveryRequest is filed by a user who lost their passphrase. It carries the
// user's replacement public key and a signed authentication token the user
// presents to continue the recovery ceremony once an administrator approves.
type RecoveryRequest struct {
	ID                  string
	UserID              string
	Status              string
	Fingerprint         string
	ArmoredKey          string
	AuthenticationToken string
	CreatedBy           string
	ModifiedBy          string
	Created             time.Time
	Modified            time.Time
}
