// Package auth generates and hashes one-time login codes.
//
// A login code is six decimal digits, drawn independently and uniformly from
// crypto/rand. Leading zeros are kept: "004217" is a valid code.
//
// WHY HASH A CODE THAT LIVES FIVE MINUTES?
// The code store may be shared infrastructure (Redis). Storing the bcrypt
// hash means a dump of the store does not hand out live login codes, and
// bcrypt.CompareHashAndPassword compares in constant time, so response
// timing does not reveal how much of a guess was right.
//
// Hash format (the full output of bcrypt.GenerateFromPassword):
//
//	$2a$10$<22-char salt><31-char hash>
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// CodeLength is the number of digits in a login code.
const CodeLength = 6

// defaultCost is the bcrypt work factor for stored codes.
//
// Lower than the usual 12 for passwords: a code is hashed once per request
// and verified at most a handful of times before it expires.
const defaultCost = 10

// CodeGenerator produces login codes.
type CodeGenerator struct {
	rand io.Reader
}

// NewCodeGenerator returns a generator backed by crypto/rand.
func NewCodeGenerator() *CodeGenerator {
	return &CodeGenerator{rand: rand.Reader}
}

// Generate returns a fresh CodeLength-digit code.
// rand.Int draws without modulo bias, so every digit 0-9 is equally likely.
func (g *CodeGenerator) Generate() (string, error) {
	ten := big.NewInt(10)
	buf := make([]byte, CodeLength)

	for i := range buf {
		n, err := rand.Int(g.rand, ten)
		if err != nil {
			return "", fmt.Errorf("auth: generating login code: %w", err)
		}
		buf[i] = byte('0' + n.Int64())
	}
	return string(buf), nil
}

// CodeHasher provides bcrypt hashing and verification for login codes.
//
// It's a struct (not free functions) so that the cost can be injected
// in tests; cost 4 makes tests run in milliseconds.
type CodeHasher struct {
	cost int
}

// NewCodeHasher creates a CodeHasher with the default cost.
func NewCodeHasher() *CodeHasher {
	return &CodeHasher{cost: defaultCost}
}

// NewCodeHasherForTest creates a CodeHasher with a custom (low) cost.
// Do NOT use in production.
func NewCodeHasherForTest(cost int) *CodeHasher {
	return &CodeHasher{cost: cost}
}

// Hash hashes a plaintext code with bcrypt.
func (h *CodeHasher) Hash(code string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(code), h.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing login code: %w", err)
	}
	return string(hashed), nil
}

// Verify checks a submitted code against a stored hash.
// Returns nil on a match, ErrCodeMismatch when the code is wrong.
func (h *CodeHasher) Verify(hash, code string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrCodeMismatch
		}
		return fmt.Errorf("auth: comparing login code hash: %w", err)
	}
	return nil
}

// ErrCodeMismatch is returned by Verify for a wrong code.
var ErrCodeMismatch = errors.New("auth: login code mismatch")
