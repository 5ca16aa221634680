package domain

import (
	"fmt"
	"strings"
	"time"
)

// UserStatus represents lifecycle states for an account.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

// ParseUserStatus normalizes a stored status value.
func ParseUserStatus(value string) (UserStatus, error) {
	switch status := UserStatus(strings.ToLower(strings.TrimSpace(value))); status {
	case UserStatusActive, UserStatusInactive:
		return status, nil
	default:
		return "", fmt.Errorf("unknown user status %q", value)
	}
}

// User is a credential record owned by the user administration module.
// This core only reads it.
type User struct {
	ID           string
	Username     string
	Email        string
	FullName     string
	PasswordHash string
	Role         Role
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Active reports whether the account may log in.
func (u *User) Active() bool {
	return u != nil && u.Status == UserStatusActive
}
