package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/chantiers-api/internal/domain"
	apperrors "github.com/spec-kit/chantiers-api/pkg/util/errorutil"
)

const identityKey = "auth_identity"

type identityCtxKey struct{}

var (
	errMissingHeader   = errors.New("missing authorization header")
	errMalformedHeader = errors.New("malformed authorization header")
	errRevoked         = errors.New("token revoked")
)

// AuthMiddleware validates bearer tokens and attaches the caller identity.
type AuthMiddleware struct {
	tokens      *TokenManager
	revocations RevocationStore
	logger      *zap.Logger
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, revocations RevocationStore, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{tokens: tokens, revocations: revocations, logger: logger}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	tokenStr, err := bearerToken(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		if errors.Is(err, errMissingHeader) {
			return apperrors.NewAuthMissing(err)
		}
		return apperrors.NewAuthInvalid(err)
	}

	identity, err := m.tokens.Verify(tokenStr)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return apperrors.NewAuthExpired(err)
		}
		return apperrors.NewAuthInvalid(err)
	}

	if m.revocations != nil {
		revoked, err := m.revocations.IsRevoked(c.UserContext(), identity.TokenID)
		if err != nil {
			m.logger.Error("revocation lookup failed",
				zap.String("code", apperrors.CodeStoreUnavailable),
				zap.Error(err))
			return apperrors.NewStoreUnavailable(err)
		}
		if revoked {
			return apperrors.NewAuthInvalid(errRevoked)
		}
	}

	c.Locals(identityKey, identity)
	c.SetUserContext(WithIdentity(c.UserContext(), identity))
	return c.Next()
}

func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingHeader
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errMalformedHeader
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errMalformedHeader
	}
	return token, nil
}

// IdentityFromContext retrieves the authenticated caller.
func IdentityFromContext(c *fiber.Ctx) (domain.Identity, bool) {
	identity, ok := c.Locals(identityKey).(domain.Identity)
	return identity, ok
}

// WithIdentity stores identity on a context for code below the HTTP layer.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, identity)
}

// IdentityFrom reads an identity stored by WithIdentity.
func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(identityCtxKey{}).(domain.Identity)
	return identity, ok
}
