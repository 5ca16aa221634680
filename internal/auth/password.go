package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a plaintext password with configured cost.
func HashPassword(password string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword verifies a password against its hashed value.
func ComparePassword(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}

// PasswordChecker compares passwords and spends the same bcrypt work when the
// account does not exist, so response timing does not reveal usernames.
type PasswordChecker struct {
	dummyHash string
}

// NewPasswordChecker prepares a dummy hash at the configured cost.
func NewPasswordChecker(cost int) (*PasswordChecker, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	dummy, err := HashPassword("chantiers-timing-equalizer", cost)
	if err != nil {
		return nil, err
	}
	return &PasswordChecker{dummyHash: dummy}, nil
}

// Compare verifies plain against hashed.
func (p *PasswordChecker) Compare(hashed, plain string) error {
	return ComparePassword(hashed, plain)
}

// CompareMissing burns one comparison for an unknown account and always fails.
func (p *PasswordChecker) CompareMissing(plain string) error {
	_ = ComparePassword(p.dummyHash, plain)
	return bcrypt.ErrMismatchedHashAndPassword
}
