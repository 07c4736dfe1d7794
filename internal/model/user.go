// Package model defines the data structures used throughout the application.
package model

import "time"

// User is the durable identity behind a verified phone number.
//
// Phone is the canonical form produced by phone.Normalize and is the only
// key: one phone maps to at most one User. ProfileID is assigned once, when
// the user first verifies, and never changes afterwards.
//
// Name and Email are pointers because they are genuinely unknown until the
// user tells us. They are serialized as null, not as empty strings.
type User struct {
	Phone     string    `json:"phone"      db:"phone"`
	ProfileID string    `json:"profile_id" db:"profile_id"`
	Name      *string   `json:"name"       db:"name"`
	Email     *string   `json:"email"      db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	LastLogin time.Time `json:"last_login" db:"last_login"`
}
