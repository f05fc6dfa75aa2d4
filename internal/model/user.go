// Package model defines domain entities for the application.
package model

import "time"

// User is an account record. A user authenticates with a password, an
// Apple identity, or both; a record with neither is invalid.
type User struct {
	ID           string  `json:"id"`
	Email        *string `json:"email,omitempty"`
	Username     string  `json:"username"`
	PasswordHash *string `json:"-"`
	AppleUserID  *string `json:"-"`
	Active       bool    `json:"active"`
	// PreferredUnlockTime is the hour of day (0-24) the journal unlocks.
	PreferredUnlockTime int       `json:"preferred_unlock_time"`
	Timezone            string    `json:"timezone,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// HasCredential reports whether at least one authentication path is usable.
func (u *User) HasCredential() bool {
	return (u.PasswordHash != nil && *u.PasswordHash != "") ||
		(u.AppleUserID != nil && *u.AppleUserID != "")
}

// Identity is the resolved caller identity attached to a request context
// after successful token validation.
type Identity struct {
	UserID string
}
