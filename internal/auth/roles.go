package auth

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/chantiers-api/internal/domain"
	"github.com/spec-kit/chantiers-api/internal/observability"
	apperrors "github.com/spec-kit/chantiers-api/pkg/util/errorutil"
)

var errNoIdentity = errors.New("authorize used without auth middleware")

// Authorize admits callers whose role is in the required set. It must run
// after AuthMiddleware.Handle.
func Authorize(metrics *observability.Metrics, required ...domain.Role) fiber.Handler {
	allowed := domain.MustRoleSet(required...)

	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFromContext(c)
		if !ok {
			return apperrors.NewInternalError(errNoIdentity)
		}
		if !allowed.Allows(identity.Role) {
			metrics.RecordAccessDenied(string(identity.Role))
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireAdmin is Authorize for the admin role only.
func RequireAdmin(metrics *observability.Metrics) fiber.Handler {
	return Authorize(metrics, domain.RoleAdmin)
}
