package model

import "time"

// LoginCode is a pending one-time login code for a phone number.
//
// CodeHash holds the bcrypt hash of the 6-digit code; the plaintext only
// ever exists in the RequestCode response and the SMS body.
type LoginCode struct {
	Phone     string    `json:"phone"`
	CodeHash  string    `json:"code_hash"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the code is no longer usable at now.
// A code is still valid at the exact expiry instant.
func (c LoginCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
