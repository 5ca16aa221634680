package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/chantiers-api/internal/domain"
)

// Verification failures. Callers map them to AUTH_INVALID / AUTH_EXPIRED.
var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

// MaxClockSkew bounds the expiry grace.
const MaxClockSkew = time.Minute

// TokenManager handles issuing and validating JWT tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	skew   time.Duration
	issuer string
	now    func() time.Time
}

// TokenOption customizes a TokenManager.
type TokenOption func(*TokenManager)

// WithClock replaces the time source.
func WithClock(now func() time.Time) TokenOption {
	return func(tm *TokenManager) { tm.now = now }
}

// WithClockSkew allows a grace period on exp, capped at MaxClockSkew.
func WithClockSkew(skew time.Duration) TokenOption {
	return func(tm *TokenManager) {
		switch {
		case skew < 0:
			tm.skew = 0
		case skew > MaxClockSkew:
			tm.skew = MaxClockSkew
		default:
			tm.skew = skew
		}
	}
}

// WithIssuer sets the iss claim issued and required.
func WithIssuer(issuer string) TokenOption {
	return func(tm *TokenManager) { tm.issuer = issuer }
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, ttl time.Duration, opts ...TokenOption) *TokenManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	tm := &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(tm)
	}
	return tm
}

// Claims describes JWT payload.
type Claims struct {
	Role   domain.Role       `json:"role"`
	Status domain.UserStatus `json:"sts"`
	jwt.RegisteredClaims
}

// Issue builds and signs a token for the subject. Role and status are fixed
// for the lifetime of the token.
func (tm *TokenManager) Issue(subjectID string, role domain.Role, status domain.UserStatus) (domain.IssuedToken, error) {
	if subjectID == "" {
		return domain.IssuedToken{}, errors.New("subject id required")
	}
	if !role.Valid() {
		return domain.IssuedToken{}, fmt.Errorf("issue token: unknown role %q", role)
	}

	// JWT NumericDate has second precision; truncate so the returned identity
	// matches what Verify will decode.
	issuedAt := tm.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(tm.ttl)
	tokenID := uuid.NewString()

	claims := &Claims{
		Role:   role,
		Status: status,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Issuer:    tm.issuer,
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return domain.IssuedToken{}, err
	}

	return domain.IssuedToken{
		Value: tokenString,
		Identity: domain.Identity{
			SubjectID: subjectID,
			Role:      role,
			Status:    status,
			TokenID:   tokenID,
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		},
	}, nil
}

// Verify checks signature and expiry and returns the embedded identity.
// Signature checks happen before claim validation, so a forged token is
// always ErrTokenInvalid even when its exp is in the past.
func (tm *TokenManager) Verify(tokenStr string) (domain.Identity, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(tm.now),
		jwt.WithLeeway(tm.skew),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
	}
	if tm.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(tm.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return domain.Identity{}, ErrTokenInvalid
	}

	if claims.Subject == "" || claims.ID == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing sub or jti", ErrTokenInvalid)
	}
	role, err := domain.ParseRole(string(claims.Role))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	status, err := domain.ParseUserStatus(string(claims.Status))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	identity := domain.Identity{
		SubjectID: claims.Subject,
		Role:      role,
		Status:    status,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}
	if claims.IssuedAt != nil {
		identity.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	return identity, nil
}
