package models

import "time"

// UserSetting is a user's opt-in choice under the current organization policy.
// One row per user, upserted when the user (re)chooses participation. Only
// meaningful while the policy is opt-in or opt-out.
type UserSetting struct {
	ID         string
	UserID     string
	OptIn      bool
	CreatedBy  string
	ModifiedBy string
	Created    time.Time
	Modified   time.Time
}
