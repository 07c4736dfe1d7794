// Package phone canonicalizes user-typed phone numbers into the single
// international form used as the key for login codes and user records.
//
// Only South African numbers are understood. The rules are purely textual:
//
//	0821234567    → +27821234567   (national trunk prefix replaced)
//	27821234567   → +27821234567   (country code without plus)
//	821234567     → +27821234567   (bare subscriber number)
//	+27821234567  → +27821234567   (already canonical, unchanged)
//
// Length and digit composition are NOT checked. A malformed number that
// survives these rules is accepted as-is.
package phone

import (
	"strings"

	"github.com/spanisami/cv-backend/internal/apperror"
)

// CountryCode is the calling code assumed for numbers without one.
const CountryCode = "27"

// Normalize returns the canonical form of raw.
// Returns a validation error when raw is empty or only whitespace.
func Normalize(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	if p == "" {
		return "", apperror.ValidationFailed("phone", "phone number required")
	}

	switch {
	case strings.HasPrefix(p, "0"):
		return "+" + CountryCode + p[1:], nil
	case strings.HasPrefix(p, CountryCode):
		return "+" + p, nil
	case !strings.HasPrefix(p, "+"):
		return "+" + CountryCode + strings.TrimLeft(p, "0"), nil
	default:
		return p, nil
	}
}
