// Package auth implements the single shared-password login: bcrypt password
// verification, signed access/refresh session tokens and the request gate.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrNoCredential is returned when neither a password nor a hash is configured.
	ErrNoCredential = errors.New("auth: a login password or password hash is required")
	// ErrInvalidHash is returned when a supplied hash is not a bcrypt hash.
	ErrInvalidHash = errors.New("auth: password hash is not a valid bcrypt hash")
)

// HashPassword returns a bcrypt hash of plain with a random embedded salt.
func HashPassword(plain string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(h), nil
}

// VerifyPassword reports whether plain matches the bcrypt hash.
func VerifyPassword(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// Verifier checks submitted passwords against the configured credential.
type Verifier struct {
	hash string
}

// NewVerifier builds a Verifier from a plain password, hashed once here, or
// from a pre-computed bcrypt hash. A plain password takes precedence.
func NewVerifier(password, hash string) (*Verifier, error) {
	switch {
	case password != "":
		h, err := HashPassword(password)
		if err != nil {
			return nil, err
		}
		return &Verifier{hash: h}, nil
	case hash != "":
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, ErrInvalidHash
		}
		return &Verifier{hash: hash}, nil
	default:
		return nil, ErrNoCredential
	}
}

// Verify reports whether plain is the login password.
func (v *Verifier) Verify(plain string) bool {
	return VerifyPassword(plain, v.hash)
}

// Hash returns the stored bcrypt hash.
func (v *Verifier) Hash() string {
	return v.hash
}
