package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestTokens(t *testing.T, opts ...TokenOption) *TokenService {
	t.Helper()
	ts, err := NewTokenService(testSecret, opts...)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

func TestTokenIssueAndVerify(t *testing.T) {
	ts := newTestTokens(t)

	roleClaims := []RoleClaim{{RoleID: "role-1", Permissions: []Permission{PermissionRead}}}
	token, expiresAt, err := ts.Issue("user-1", roleClaims, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", expiresAt)
	}

	claims, err := ts.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Issuer != "aegis" {
		t.Fatalf("unexpected issuer: %s", claims.Issuer)
	}
	if len(claims.RoleClaims) != 1 || claims.RoleClaims[0].RoleID != "role-1" {
		t.Fatalf("role claims not preserved: %+v", claims.RoleClaims)
	}
	if claims.ID == "" {
		t.Fatalf("expected a token id")
	}
}

func TestTokenVerifyExpired(t *testing.T) {
	now := time.Now()
	ts := newTestTokens(t, WithTokenClock(func() time.Time { return now }), WithAccessTTL(time.Minute))

	token, _, err := ts.Issue("user-1", nil, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := ts.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	// The specific reason still collapses to the generic kind.
	if _, err := ts.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expiry to satisfy ErrInvalidToken")
	}
}

func TestTokenVerifyTampered(t *testing.T) {
	ts := newTestTokens(t)
	token, _, err := ts.Issue("user-1", nil, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape")
	}
	tampered := parts[0] + "." + parts[1] + ".AAAA" + parts[2][4:]
	if _, err := ts.Verify(tampered); !errors.Is(err, ErrTokenSignature) {
		t.Fatalf("expected ErrTokenSignature, got %v", err)
	}

	other, err := NewTokenService([]byte("another-secret-another-secret-00"))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	foreign, _, err := other.Issue("user-1", nil, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := ts.Verify(foreign); !errors.Is(err, ErrTokenSignature) {
		t.Fatalf("expected ErrTokenSignature for foreign key, got %v", err)
	}
}

func TestTokenVerifyMalformed(t *testing.T) {
	ts := newTestTokens(t)
	for _, token := range []string{"", "   ", "garbage", "a.b", "a.b.c"} {
		if _, err := ts.Verify(token); !errors.Is(err, ErrTokenMalformed) {
			t.Fatalf("token %q: expected ErrTokenMalformed, got %v", token, err)
		}
	}
}

func TestTokenRefreshWithinGrace(t *testing.T) {
	now := time.Now()
	ts := newTestTokens(t,
		WithTokenClock(func() time.Time { return now }),
		WithAccessTTL(time.Minute),
		WithRefreshGrace(5*time.Minute))

	token, _, err := ts.Issue("user-1", []RoleClaim{{RoleID: "role-1"}}, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Expired, but still inside the grace window.
	now = now.Add(3 * time.Minute)
	fresh, expiresAt, err := ts.Refresh(token)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !expiresAt.After(now) {
		t.Fatalf("refreshed token already expired: %v", expiresAt)
	}

	claims, err := ts.Verify(fresh)
	if err != nil {
		t.Fatalf("Verify refreshed: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if len(claims.RoleClaims) != 0 {
		t.Fatalf("refreshed token should not carry a role snapshot: %+v", claims.RoleClaims)
	}
}

func TestTokenRefreshBeyondGrace(t *testing.T) {
	now := time.Now()
	ts := newTestTokens(t,
		WithTokenClock(func() time.Time { return now }),
		WithAccessTTL(time.Minute),
		WithRefreshGrace(5*time.Minute))

	token, _, err := ts.Issue("user-1", nil, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	now = now.Add(10 * time.Minute)
	if _, _, err := ts.Refresh(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired beyond grace, got %v", err)
	}
}

func TestTokenIssuerMismatch(t *testing.T) {
	ts := newTestTokens(t, WithIssuer("issuer-a"))
	token, _, err := ts.Issue("user-1", nil, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other := newTestTokens(t, WithIssuer("issuer-b"))
	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected rejection for issuer mismatch, got %v", err)
	}
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	if _, err := NewTokenService(nil); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
