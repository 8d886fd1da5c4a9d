package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer       = "aegis"
	defaultAccessTTL    = time.Hour
	defaultRefreshGrace = 5 * time.Minute
)

// Claims is the decoded payload of a verified token.
type Claims struct {
	RoleClaims []RoleClaim `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies signed bearer tokens. The signing secret is
// fixed at construction; there is no ambient lookup and no runtime rotation.
type TokenService struct {
	secret       []byte
	issuer       string
	accessTTL    time.Duration
	refreshGrace time.Duration
	now          func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithIssuer overrides the issuer claim.
func WithIssuer(issuer string) TokenOption {
	return func(ts *TokenService) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			ts.issuer = issuer
		}
	}
}

// WithAccessTTL overrides the default access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(ts *TokenService) {
		if ttl > 0 {
			ts.accessTTL = ttl
		}
	}
}

// WithRefreshGrace sets how long past expiry a token may still be refreshed.
func WithRefreshGrace(grace time.Duration) TokenOption {
	return func(ts *TokenService) {
		if grace >= 0 {
			ts.refreshGrace = grace
		}
	}
}

// WithTokenClock overrides the time source (useful for tests).
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(ts *TokenService) {
		if fn != nil {
			ts.now = fn
		}
	}
}

// NewTokenService constructs a TokenService signing with HS256.
func NewTokenService(secret []byte, opts ...TokenOption) (*TokenService, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	ts := &TokenService{
		secret:       secret,
		issuer:       defaultIssuer,
		accessTTL:    defaultAccessTTL,
		refreshGrace: defaultRefreshGrace,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(ts)
	}
	return ts, nil
}

// Issue signs a token embedding the subject and role claims. A non-positive
// ttl falls back to the configured access TTL.
func (ts *TokenService) Issue(subjectID string, roleClaims []RoleClaim, ttl time.Duration) (string, time.Time, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return "", time.Time{}, errors.New("auth: subject is required")
	}
	if ttl <= 0 {
		ttl = ts.accessTTL
	}

	now := ts.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		RoleClaims: roleClaims,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry. It is deterministic and side-effect
// free; failures are reported as ErrTokenMalformed, ErrTokenSignature, or
// ErrTokenExpired.
func (ts *TokenService) Verify(token string) (*Claims, error) {
	return ts.parse(token, 0)
}

// Refresh re-signs a token for the configured access TTL. The input must be
// valid, or expired by no more than the refresh grace window. The new token
// carries the decoded subject only; the guard resolves an identity-only token
// against the live user record, so no snapshot is carried forward.
func (ts *TokenService) Refresh(token string) (string, time.Time, error) {
	claims, err := ts.parse(token, ts.refreshGrace)
	if err != nil {
		return "", time.Time{}, err
	}
	return ts.Issue(claims.Subject, nil, ts.accessTTL)
}

func (ts *TokenService) parse(token string, leeway time.Duration) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenMalformed
	}

	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(ts.now),
		jwt.WithIssuer(ts.issuer),
		jwt.WithExpirationRequired(),
	}
	if leeway > 0 {
		opts = append(opts, jwt.WithLeeway(leeway))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenSignature
		}
		return ts.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, ErrTokenSignature):
			return nil, ErrTokenSignature
		default:
			return nil, ErrTokenMalformed
		}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
