package dto

import (
	"time"

	"github.com/spec-kit/chantiers-api/internal/domain"
)

// LoginRequest payload for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserResponse is the public view of an account. The password hash never
// leaves the service.
type UserResponse struct {
	ID       string            `json:"id"`
	Username string            `json:"username"`
	Email    string            `json:"email,omitempty"`
	FullName string            `json:"full_name,omitempty"`
	Role     domain.Role       `json:"role"`
	Status   domain.UserStatus `json:"status"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	User UserResponse `json:"user"`
	Auth AuthResponse `json:"auth"`
}

// ProfileResponse combines the account with the token currently in use.
type ProfileResponse struct {
	User           UserResponse `json:"user"`
	TokenExpiresAt time.Time    `json:"token_expires_at"`
}

// NewUserResponse maps a domain user.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		FullName: u.FullName,
		Role:     u.Role,
		Status:   u.Status,
	}
}
