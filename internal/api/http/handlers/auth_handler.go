package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/chantiers-api/internal/api/dto"
	"github.com/spec-kit/chantiers-api/internal/auth"
	"github.com/spec-kit/chantiers-api/internal/service"
	apperrors "github.com/spec-kit/chantiers-api/pkg/util/errorutil"
)

// AuthHandler exposes login, logout and profile.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	input := service.LoginInput{
		SourceAddress: c.IP(),
		UserAgent:     c.Get(fiber.HeaderUserAgent),
	}

	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return h.auth.RejectMalformed(c.UserContext(), input, err)
	}
	input.Username = req.Username
	input.Password = req.Password

	res, err := h.auth.Login(c.UserContext(), input)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": dto.LoginResponse{
			User: dto.NewUserResponse(res.User),
			Auth: dto.AuthResponse{
				Token:     res.Token.Value,
				TokenType: "Bearer",
				ExpiresAt: res.Token.Identity.ExpiresAt,
			},
		},
	})
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return apperrors.NewAuthMissing(nil)
	}
	if err := h.auth.Logout(c.UserContext(), identity, c.IP(), c.Get(fiber.HeaderUserAgent)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"message": "logged out"}})
}

// Profile handles GET /auth/profile.
func (h *AuthHandler) Profile(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return apperrors.NewAuthMissing(nil)
	}
	user, err := h.auth.Profile(c.UserContext(), identity)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": dto.ProfileResponse{
			User:           dto.NewUserResponse(user),
			TokenExpiresAt: identity.ExpiresAt,
		},
	})
}
