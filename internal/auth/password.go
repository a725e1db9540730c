package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrEmptyPassword indicates a blank password was supplied for hashing.
var ErrEmptyPassword = errors.New("auth: password must not be empty")

// PasswordHasher produces and verifies one-way password digests.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher constructs a hasher using the bcrypt default cost.
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{cost: bcrypt.DefaultCost}
}

// Hash returns the bcrypt digest for the supplied plaintext password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Compare reports whether the plaintext password matches the stored digest.
func (h *PasswordHasher) Compare(digest, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}
