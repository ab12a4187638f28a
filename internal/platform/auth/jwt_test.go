package auth

import (
	"errors"
	"testing"
	"time"

	domain "github.com/farmcart/api/internal/domain"
)

func newTestSessionManager(t *testing.T, clock func() time.Time) *SessionManager {
	t.Helper()

	manager, err := NewSessionManager(SessionManagerConfig{
		Secret: "test-secret",
		Issuer: "farmcart-api",
		TTL:    time.Hour,
		Clock:  clock,
	})
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	return manager
}

func TestSessionManagerIssueAndVerify(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	manager := newTestSessionManager(t, func() time.Time { return now })

	token, expiresAt, err := manager.Issue(domain.User{
		ID:    "usr_1",
		Name:  "Anita",
		Email: "anita@example.com",
		Role:  domain.RoleCustomer,
	}, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !expiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected expiry %v, got %v", now.Add(time.Hour), expiresAt)
	}

	identity, err := manager.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if identity.UserID != "usr_1" {
		t.Fatalf("expected usr_1, got %s", identity.UserID)
	}
	if identity.Role != RoleCustomer {
		t.Fatalf("expected customer role, got %s", identity.Role)
	}
	if identity.Email != "anita@example.com" {
		t.Fatalf("unexpected email %s", identity.Email)
	}
}

func TestSessionManagerRejectsExpiredToken(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	current := now
	manager := newTestSessionManager(t, func() time.Time { return current })

	token, _, err := manager.Issue(domain.User{ID: "usr_1", Role: domain.RoleCustomer}, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	current = now.Add(2 * time.Hour)
	if _, err := manager.VerifyToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestSessionManagerVerifiesAgainstInjectedClock(t *testing.T) {
	issued := time.Date(2020, 6, 1, 9, 0, 0, 0, time.UTC)
	current := issued.Add(30 * time.Minute)
	manager := newTestSessionManager(t, func() time.Time { return current })

	token, _, err := manager.Issue(domain.User{ID: "usr_1", Role: domain.RoleCustomer}, issued)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Long expired by wall time; only the injected clock keeps the token
	// inside its validity window.
	identity, err := manager.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if identity.UserID != "usr_1" {
		t.Fatalf("expected usr_1, got %s", identity.UserID)
	}
}

func TestSessionManagerRejectsForeignSignature(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	manager := newTestSessionManager(t, func() time.Time { return now })

	other, err := NewSessionManager(SessionManagerConfig{
		Secret: "other-secret",
		Issuer: "farmcart-api",
		Clock:  func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}

	token, _, err := other.Issue(domain.User{ID: "usr_1", Role: domain.RoleAdmin}, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := manager.VerifyToken(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestSessionManagerRejectsWrongIssuer(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	manager := newTestSessionManager(t, func() time.Time { return now })

	other, err := NewSessionManager(SessionManagerConfig{
		Secret: "test-secret",
		Issuer: "someone-else",
		Clock:  func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}

	token, _, err := other.Issue(domain.User{ID: "usr_1", Role: domain.RoleAdmin}, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := manager.VerifyToken(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}
