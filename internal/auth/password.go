package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCheck holds the bcrypt hash of the configured admin password so the
// plain text does not have to stay in memory after startup.
type PasswordCheck struct {
	hash []byte
}

// NewPasswordCheck hashes password once.
func NewPasswordCheck(password string) (*PasswordCheck, error) {
	if password == "" {
		return nil, errors.New("admin password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &PasswordCheck{hash: hash}, nil
}

// Match reports whether candidate is the admin password.
func (p *PasswordCheck) Match(candidate string) bool {
	if candidate == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(p.hash, []byte(candidate)) == nil
}
