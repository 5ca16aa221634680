package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/chantiers-api/internal/domain"
	"github.com/spec-kit/chantiers-api/internal/observability"
	apperrors "github.com/spec-kit/chantiers-api/pkg/util/errorutil"
)

type errorBody struct {
	Code string `json:"code"`
}

func testErrorHandler(c *fiber.Ctx, err error) error {
	de := apperrors.ToDomainError(err)
	return c.Status(de.HTTPStatus).JSON(errorBody{Code: de.Code})
}

type failingRevocations struct{}

func (failingRevocations) Revoke(context.Context, string, time.Time) error { return errors.New("down") }
func (failingRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("down")
}

func newProtectedApp(mw *AuthMiddleware, gates ...fiber.Handler) (*fiber.App, *int) {
	calls := 0
	app := fiber.New(fiber.Config{ErrorHandler: testErrorHandler})
	handlers := append([]fiber.Handler{mw.Handle}, gates...)
	handlers = append(handlers, func(c *fiber.Ctx) error {
		calls++
		identity, ok := IdentityFromContext(c)
		if !ok {
			return errors.New("identity missing")
		}
		fromCtx, ok := IdentityFrom(c.UserContext())
		if !ok || fromCtx != identity {
			return errors.New("context identity mismatch")
		}
		return c.SendString(identity.SubjectID)
	})
	app.Get("/protected", handlers...)
	return app, &calls
}

func doRequest(t *testing.T, app *fiber.App, header string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return resp.StatusCode, ""
	}
	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body.Code
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	clock := &fakeClock{now: time.Now().UTC()}
	tm := newTestManager(clock, 0)
	revocations := NewMemoryRevocationStore()
	app, calls := newProtectedApp(NewAuthMiddleware(tm, revocations, nil))

	issued, err := tm.Issue("7", domain.RoleUser, domain.UserStatusActive)
	require.NoError(t, err)
	expired, err := tm.Issue("8", domain.RoleUser, domain.UserStatusActive)
	require.NoError(t, err)
	revoked, err := tm.Issue("9", domain.RoleUser, domain.UserStatusActive)
	require.NoError(t, err)
	require.NoError(t, revocations.Revoke(context.Background(), revoked.Identity.TokenID, time.Now().Add(time.Hour)))

	tests := []struct {
		name   string
		header func() string
		status int
		code   string
	}{
		{name: "missing", header: func() string { return "" }, status: 401, code: apperrors.CodeAuthMissing},
		{name: "wrong scheme", header: func() string { return "Basic abc" }, status: 401, code: apperrors.CodeAuthInvalid},
		{name: "empty bearer", header: func() string { return "Bearer " }, status: 401, code: apperrors.CodeAuthInvalid},
		{name: "garbage", header: func() string { return "Bearer nope" }, status: 401, code: apperrors.CodeAuthInvalid},
		{name: "tampered", header: func() string { return "Bearer " + flipSignatureBit(t, issued.Value, 9) }, status: 401, code: apperrors.CodeAuthInvalid},
		{name: "revoked", header: func() string { return "Bearer " + revoked.Value }, status: 401, code: apperrors.CodeAuthInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := doRequest(t, app, tt.header())
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
	assert.Zero(t, *calls, "handler must not run for rejected requests")

	t.Run("expired", func(t *testing.T) {
		clock.Advance(time.Hour)
		defer clock.Advance(-time.Hour)
		status, code := doRequest(t, app, "Bearer "+expired.Value)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, apperrors.CodeAuthExpired, code)
	})

	t.Run("valid", func(t *testing.T) {
		status, _ := doRequest(t, app, "bearer "+issued.Value)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, 1, *calls)
	})
}

func TestAuthMiddleware_RevocationStoreDownFailsClosed(t *testing.T) {
	tm := NewTokenManager("secret", time.Minute)
	app, calls := newProtectedApp(NewAuthMiddleware(tm, failingRevocations{}, nil))

	issued, err := tm.Issue("7", domain.RoleAdmin, domain.UserStatusActive)
	require.NoError(t, err)

	status, code := doRequest(t, app, "Bearer "+issued.Value)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, apperrors.CodeStoreUnavailable, code)
	assert.Zero(t, *calls)
}

func TestAuthorize(t *testing.T) {
	tm := NewTokenManager("secret", time.Minute)
	metrics := observability.NewMetrics()
	app, calls := newProtectedApp(NewAuthMiddleware(tm, nil, nil), Authorize(metrics, domain.RoleAdmin))

	for _, role := range []domain.Role{domain.RoleUser, domain.RoleChef} {
		issued, err := tm.Issue("7", role, domain.UserStatusActive)
		require.NoError(t, err)
		status, code := doRequest(t, app, "Bearer "+issued.Value)
		assert.Equal(t, http.StatusForbidden, status, role)
		assert.Equal(t, apperrors.CodeForbidden, code, role)
	}
	assert.Zero(t, *calls)

	issued, err := tm.Issue("1", domain.RoleAdmin, domain.UserStatusActive)
	require.NoError(t, err)
	status, _ := doRequest(t, app, "Bearer "+issued.Value)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, *calls)
}

func TestAuthorizeWithoutIdentityIsInternalError(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: testErrorHandler})
	app.Get("/protected", RequireAdmin(nil), func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })

	status, code := doRequest(t, app, "")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, apperrors.CodeInternal, code)
}

func TestAuthorizePanicsOnUnknownRole(t *testing.T) {
	assert.Panics(t, func() { Authorize(nil, domain.Role("root")) })
}
