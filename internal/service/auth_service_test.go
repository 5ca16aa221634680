package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/chantiers-api/internal/auth"
	"github.com/spec-kit/chantiers-api/internal/domain"
	"github.com/spec-kit/chantiers-api/internal/events"
	"github.com/spec-kit/chantiers-api/internal/repository"
	apperrors "github.com/spec-kit/chantiers-api/pkg/util/errorutil"
)

const testPassword = "S3cret!pass"

type fakeUsers struct {
	byName map[string]*domain.User
	err    error
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.byName {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.byName[strings.ToLower(username)]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []domain.LoginHistoryEntry
}

func (f *fakeAudit) Record(_ context.Context, entry domain.LoginHistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

type authFixture struct {
	svc         *AuthService
	users       *fakeUsers
	audit       *fakeAudit
	revocations *auth.MemoryRevocationStore
	tokens      *auth.TokenManager
	published   []events.Event
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	hash, err := auth.HashPassword(testPassword, bcrypt.MinCost)
	require.NoError(t, err)
	checker, err := auth.NewPasswordChecker(bcrypt.MinCost)
	require.NoError(t, err)

	f := &authFixture{
		users: &fakeUsers{byName: map[string]*domain.User{
			"alice": {ID: "7", Username: "alice", PasswordHash: hash, Role: domain.RoleChef, Status: domain.UserStatusActive},
			"admin": {ID: "1", Username: "admin", PasswordHash: hash, Role: domain.RoleAdmin, Status: domain.UserStatusActive},
			"gone":  {ID: "9", Username: "gone", PasswordHash: hash, Role: domain.RoleUser, Status: domain.UserStatusInactive},
		}},
		audit:       &fakeAudit{},
		revocations: auth.NewMemoryRevocationStore(),
		tokens:      auth.NewTokenManager("test-secret", time.Hour),
	}

	dispatcher := events.NewInMemoryDispatcher(nil)
	for _, et := range []events.EventType{events.EventLoginSucceeded, events.EventLoginFailed, events.EventLoggedOut} {
		dispatcher.Subscribe(et, func(_ context.Context, e events.Event) error {
			f.published = append(f.published, e)
			return nil
		})
	}

	f.svc = NewAuthService(AuthDependencies{
		Users:       f.users,
		Tokens:      f.tokens,
		Passwords:   checker,
		Revocations: f.revocations,
		Audit:       f.audit,
		Dispatcher:  dispatcher,
	})
	return f
}

func TestLogin_Success(t *testing.T) {
	f := newAuthFixture(t)

	res, err := f.svc.Login(context.Background(), LoginInput{
		Username: " alice ", Password: testPassword, SourceAddress: "10.0.0.1", UserAgent: "curl/8",
	})
	require.NoError(t, err)
	assert.Equal(t, "7", res.User.ID)

	identity, err := f.tokens.Verify(res.Token.Value)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleChef, identity.Role)

	require.Len(t, f.audit.entries, 1)
	entry := f.audit.entries[0]
	assert.Equal(t, domain.LoginOutcomeSuccess, entry.Outcome)
	assert.Equal(t, "alice", entry.Username)
	require.NotNil(t, entry.SubjectID)
	assert.Equal(t, "7", *entry.SubjectID)
	assert.Equal(t, "10.0.0.1", entry.SourceAddress)
	assert.Equal(t, "curl/8", entry.UserAgent)

	require.Len(t, f.published, 1)
	assert.Equal(t, events.EventLoginSucceeded, f.published[0].Type)
}

func TestLogin_UnknownUserYieldsOneFailureWithoutPassword(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Login(context.Background(), LoginInput{Username: "ghost", Password: testPassword, SourceAddress: "10.0.0.2"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidCredentials))

	require.Len(t, f.audit.entries, 1)
	entry := f.audit.entries[0]
	assert.Equal(t, domain.LoginOutcomeFailure, entry.Outcome)
	assert.Equal(t, "ghost", entry.Username)
	assert.Nil(t, entry.SubjectID)
	assert.NotContains(t, entry.Detail, testPassword)
	assert.NotContains(t, entry.UserAgent, testPassword)
	assert.NotContains(t, entry.SourceAddress, testPassword)
}

func TestLogin_FailuresShareOneClientMessage(t *testing.T) {
	f := newAuthFixture(t)

	tests := []struct {
		name   string
		input  LoginInput
		reason string
	}{
		{name: "unknown user", input: LoginInput{Username: "ghost", Password: testPassword}, reason: reasonUnknownUser},
		{name: "bad password", input: LoginInput{Username: "alice", Password: "wrong"}, reason: reasonBadPassword},
		{name: "inactive", input: LoginInput{Username: "gone", Password: testPassword}, reason: reasonInactiveAccount},
	}

	var messages []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Login(context.Background(), tt.input)
			var de *apperrors.DomainError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, apperrors.CodeInvalidCredentials, de.Code)
			assert.Equal(t, 401, de.HTTPStatus)
			assert.EqualError(t, errors.Unwrap(de), tt.reason)
			messages = append(messages, de.Message)

			last := f.audit.entries[len(f.audit.entries)-1]
			assert.Equal(t, domain.LoginOutcomeFailure, last.Outcome)
			assert.Equal(t, tt.reason, last.Detail)
		})
	}

	require.Len(t, messages, 3)
	assert.Equal(t, messages[0], messages[1])
	assert.Equal(t, messages[1], messages[2])
	assert.Len(t, f.audit.entries, 3)
}

func TestLogin_ValidationIsAudited(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Login(context.Background(), LoginInput{Username: "alice"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, reasonMissingCredentials, f.audit.entries[0].Detail)
}

func TestLogin_StoreUnavailable(t *testing.T) {
	f := newAuthFixture(t)
	f.users.err = errors.New("connection refused")

	_, err := f.svc.Login(context.Background(), LoginInput{Username: "alice", Password: testPassword})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeStoreUnavailable))
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, domain.LoginOutcomeFailure, f.audit.entries[0].Outcome)
}

func TestLogout_RevokesAndAudits(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, LoginInput{Username: "alice", Password: testPassword})
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, res.Token.Identity, "10.0.0.1", "curl/8"))

	revoked, err := f.revocations.IsRevoked(ctx, res.Token.Identity.TokenID)
	require.NoError(t, err)
	assert.True(t, revoked)

	require.Len(t, f.audit.entries, 2)
	logout := f.audit.entries[1]
	assert.Equal(t, domain.LoginOutcomeLogout, logout.Outcome)
	assert.Equal(t, "alice", logout.Username)
	require.NotNil(t, logout.SubjectID)
	assert.Equal(t, "7", *logout.SubjectID)
}

func TestProfile(t *testing.T) {
	f := newAuthFixture(t)

	user, err := f.svc.Profile(context.Background(), domain.Identity{SubjectID: "1"})
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Username)

	_, err = f.svc.Profile(context.Background(), domain.Identity{SubjectID: "404"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAuthInvalid))
}

type failingRevocations struct{}

func (failingRevocations) Revoke(context.Context, string, time.Time) error {
	return errors.New("redis down")
}

func (failingRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestLogout_RevocationFailureIsAudited(t *testing.T) {
	f := newAuthFixture(t)
	f.svc.revocations = failingRevocations{}

	identity := domain.Identity{SubjectID: "7", Role: domain.RoleChef, TokenID: "jti-1", ExpiresAt: time.Now().Add(time.Hour)}
	err := f.svc.Logout(context.Background(), identity, "10.0.0.1", "curl/8")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeStoreUnavailable))

	require.Len(t, f.audit.entries, 1)
	entry := f.audit.entries[0]
	assert.Equal(t, domain.LoginOutcomeFailure, entry.Outcome)
	assert.Equal(t, reasonRevocationFailed, entry.Detail)
	assert.Equal(t, "alice", entry.Username)
	require.NotNil(t, entry.SubjectID)
	assert.Equal(t, "7", *entry.SubjectID)
	assert.Empty(t, f.published)
}

func TestRejectMalformed_IsAudited(t *testing.T) {
	f := newAuthFixture(t)

	err := f.svc.RejectMalformed(context.Background(), LoginInput{SourceAddress: "10.0.0.3", UserAgent: "curl/8"}, errors.New("unexpected EOF"))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))

	require.Len(t, f.audit.entries, 1)
	entry := f.audit.entries[0]
	assert.Equal(t, domain.LoginOutcomeFailure, entry.Outcome)
	assert.Equal(t, reasonMalformedRequest, entry.Detail)
	assert.Equal(t, "10.0.0.3", entry.SourceAddress)
	require.Len(t, f.published, 1)
	assert.Equal(t, events.EventLoginFailed, f.published[0].Type)
}

func TestLogin_EntriesFollowAttemptOrder(t *testing.T) {
	f := newAuthFixture(t)
	now := time.Date(2026, 3, 1, 8, 0, 0, 500_000_000, time.UTC)
	f.svc.now = func() time.Time { return now }

	_, err := f.svc.Login(context.Background(), LoginInput{Username: "alice", Password: "wrong"})
	require.Error(t, err)

	now = now.Add(400 * time.Millisecond)
	_, err = f.svc.Login(context.Background(), LoginInput{Username: "alice", Password: testPassword})
	require.NoError(t, err)

	require.Len(t, f.audit.entries, 2)
	failure, success := f.audit.entries[0], f.audit.entries[1]
	assert.Equal(t, domain.LoginOutcomeFailure, failure.Outcome)
	assert.Equal(t, domain.LoginOutcomeSuccess, success.Outcome)
	assert.True(t, success.OccurredAt.After(failure.OccurredAt),
		"success %s must sort after failure %s", success.OccurredAt, failure.OccurredAt)
	assert.Equal(t, now, success.OccurredAt)
}
