package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/chantiers-api/internal/auth"
	"github.com/spec-kit/chantiers-api/internal/domain"
	"github.com/spec-kit/chantiers-api/internal/events"
	"github.com/spec-kit/chantiers-api/internal/repository"
	apperrors "github.com/spec-kit/chantiers-api/pkg/util/errorutil"
)

// Internal rejection reasons. They reach the audit detail and the logs but
// clients only ever see the generic credentials message.
const (
	reasonMissingCredentials = "missing credentials"
	reasonUnknownUser        = "unknown user"
	reasonBadPassword        = "password mismatch"
	reasonInactiveAccount    = "account inactive"
	reasonStoreUnavailable   = "credential store unavailable"
	reasonMalformedRequest   = "malformed request"
	reasonRevocationFailed   = "logout: revocation failed"
)

// AuditRecorder appends login history entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry domain.LoginHistoryEntry) error
}

// AuthService coordinates login, logout and profile flows.
type AuthService struct {
	users       repository.UserRepository
	tokens      *auth.TokenManager
	passwords   *auth.PasswordChecker
	revocations auth.RevocationStore
	audit       AuditRecorder
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	now         func() time.Time
}

// AuthDependencies encapsulates requirements for the auth service.
type AuthDependencies struct {
	Users       repository.UserRepository
	Tokens      *auth.TokenManager
	Passwords   *auth.PasswordChecker
	Revocations auth.RevocationStore
	Audit       AuditRecorder
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:       deps.Users,
		tokens:      deps.Tokens,
		passwords:   deps.Passwords,
		revocations: deps.Revocations,
		audit:       deps.Audit,
		dispatcher:  deps.Dispatcher,
		logger:      logger.Named("auth"),
		now:         time.Now,
	}
}

// LoginInput carries the submitted credentials and request metadata.
type LoginInput struct {
	Username      string
	Password      string
	SourceAddress string
	UserAgent     string
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	User  *domain.User
	Token domain.IssuedToken
}

// Login authenticates the caller. Every attempt, successful or not, produces
// exactly one login history entry.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	entry := domain.LoginHistoryEntry{
		Username:      strings.TrimSpace(in.Username),
		SourceAddress: in.SourceAddress,
		UserAgent:     in.UserAgent,
	}

	if entry.Username == "" || in.Password == "" {
		s.recordFailure(ctx, entry, reasonMissingCredentials)
		fields := map[string]any{}
		if entry.Username == "" {
			fields["username"] = "required"
		}
		if in.Password == "" {
			fields["password"] = "required"
		}
		return nil, apperrors.NewValidationError("username and password are required", map[string]any{"fields": fields})
	}

	user, err := s.users.GetByUsername(ctx, entry.Username)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		_ = s.passwords.CompareMissing(in.Password)
		s.recordFailure(ctx, entry, reasonUnknownUser)
		return nil, apperrors.NewInvalidCredentials(errors.New(reasonUnknownUser))
	case err != nil:
		s.logger.Error("credential lookup failed",
			zap.String("code", apperrors.CodeStoreUnavailable),
			zap.String("username", entry.Username),
			zap.Error(err))
		s.recordFailure(ctx, entry, reasonStoreUnavailable)
		return nil, apperrors.NewStoreUnavailable(err)
	}

	subjectID := user.ID
	entry.SubjectID = &subjectID

	if err := s.passwords.Compare(user.PasswordHash, in.Password); err != nil {
		s.recordFailure(ctx, entry, reasonBadPassword)
		return nil, apperrors.NewInvalidCredentials(errors.New(reasonBadPassword))
	}
	if !user.Active() {
		s.recordFailure(ctx, entry, reasonInactiveAccount)
		return nil, apperrors.NewInvalidCredentials(errors.New(reasonInactiveAccount))
	}

	issued, err := s.tokens.Issue(user.ID, user.Role, user.Status)
	if err != nil {
		s.recordFailure(ctx, entry, "token issue failed")
		return nil, apperrors.NewInternalError(err)
	}

	entry.Outcome = domain.LoginOutcomeSuccess
	entry = s.record(ctx, entry)
	s.publish(ctx, events.NewEvent(events.EventLoginSucceeded, entry, events.LoginSucceededPayload{
		Role:    user.Role,
		TokenID: issued.Identity.TokenID,
	}))

	return &LoginResult{User: user, Token: issued}, nil
}

// RejectMalformed records a login attempt whose body could not be decoded.
func (s *AuthService) RejectMalformed(ctx context.Context, in LoginInput, cause error) error {
	entry := domain.LoginHistoryEntry{
		Username:      strings.TrimSpace(in.Username),
		SourceAddress: in.SourceAddress,
		UserAgent:     in.UserAgent,
	}
	s.logger.Debug("login payload rejected", zap.Error(cause))
	s.recordFailure(ctx, entry, reasonMalformedRequest)
	return apperrors.NewValidationError("invalid payload", nil)
}

// Logout revokes the presented token until its expiry and records the event.
func (s *AuthService) Logout(ctx context.Context, identity domain.Identity, sourceAddress, userAgent string) error {
	subjectID := identity.SubjectID
	entry := domain.LoginHistoryEntry{
		SubjectID:     &subjectID,
		Username:      s.usernameFor(ctx, identity.SubjectID),
		SourceAddress: sourceAddress,
		UserAgent:     userAgent,
		Outcome:       domain.LoginOutcomeLogout,
	}

	if err := s.revocations.Revoke(ctx, identity.TokenID, identity.ExpiresAt); err != nil {
		s.logger.Error("token revocation failed",
			zap.String("code", apperrors.CodeStoreUnavailable),
			zap.String("subject_id", identity.SubjectID),
			zap.Error(err))
		entry.Outcome = domain.LoginOutcomeFailure
		entry.Detail = reasonRevocationFailed
		s.record(ctx, entry)
		return apperrors.NewStoreUnavailable(err)
	}

	entry = s.record(ctx, entry)
	s.publish(ctx, events.NewEvent(events.EventLoggedOut, entry, events.LoggedOutPayload{TokenID: identity.TokenID}))
	return nil
}

// Profile loads the caller's account.
func (s *AuthService) Profile(ctx context.Context, identity domain.Identity) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, identity.SubjectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewAuthInvalid(err)
		}
		return nil, apperrors.NewStoreUnavailable(err)
	}
	return user, nil
}

// usernameFor resolves the account name for logout entries. Lookup failures
// only cost the username column.
func (s *AuthService) usernameFor(ctx context.Context, subjectID string) string {
	user, err := s.users.GetByID(ctx, subjectID)
	if err != nil {
		s.logger.Debug("username lookup for logout failed", zap.String("subject_id", subjectID), zap.Error(err))
		return ""
	}
	return user.Username
}

func (s *AuthService) recordFailure(ctx context.Context, entry domain.LoginHistoryEntry, reason string) {
	entry.Outcome = domain.LoginOutcomeFailure
	entry.Detail = reason
	entry = s.record(ctx, entry)
	s.publish(ctx, events.NewEvent(events.EventLoginFailed, entry, events.LoginFailedPayload{Reason: reason}))
}

// record stamps entries that carry no timestamp yet.
func (s *AuthService) record(ctx context.Context, entry domain.LoginHistoryEntry) domain.LoginHistoryEntry {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = s.now().UTC()
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Error("login history entry rejected",
			zap.String("code", apperrors.CodeAuditWriteFailed),
			zap.Error(err))
	}
	return entry
}

func (s *AuthService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, event)
}
