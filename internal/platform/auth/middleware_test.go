package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticVerifier struct {
	identity *Identity
	err      error
}

func (v *staticVerifier) VerifyToken(string) (*Identity, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.identity, nil
}

func okHandler(t *testing.T, called *bool) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("expected identity in context")
		}
		if identity.UserID == "" {
			t.Fatal("expected populated identity")
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuthRejectsMissingHeader(t *testing.T) {
	authenticator := NewAuthenticator(&staticVerifier{identity: &Identity{UserID: "usr_1", Role: RoleCustomer}})
	var called bool
	handler := authenticator.RequireAuth()(okHandler(t, &called))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if called {
		t.Fatal("handler must not run without credentials")
	}
}

func TestRequireAuthRejectsExpiredToken(t *testing.T) {
	authenticator := NewAuthenticator(&staticVerifier{err: ErrTokenExpired})
	var called bool
	handler := authenticator.RequireAuth()(okHandler(t, &called))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer expired")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if called {
		t.Fatal("handler must not run with an expired token")
	}
}

func TestRequireAuthEnforcesRoles(t *testing.T) {
	authenticator := NewAuthenticator(&staticVerifier{identity: &Identity{UserID: "usr_1", Role: RoleCustomer}})
	var called bool
	handler := authenticator.RequireAuth(RoleAdmin)(okHandler(t, &called))

	req := httptest.NewRequest(http.MethodPost, "/admin/products", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if called {
		t.Fatal("handler must not run for insufficient role")
	}
}

func TestRequireAuthAcceptsAllowedRole(t *testing.T) {
	authenticator := NewAuthenticator(&staticVerifier{identity: &Identity{UserID: "usr_1", Role: RoleAdmin}})
	var called bool
	handler := authenticator.RequireAuth(RoleAdmin)(okHandler(t, &called))

	req := httptest.NewRequest(http.MethodPost, "/admin/products", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !called {
		t.Fatal("expected handler to run")
	}
}

func TestRequireAuthAppliesFallbackRole(t *testing.T) {
	authenticator := NewAuthenticator(&staticVerifier{identity: &Identity{UserID: "usr_1"}})
	var called bool
	handler := authenticator.RequireAuth(RoleCustomer)(okHandler(t, &called))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !called {
		t.Fatal("expected handler to run with fallback role")
	}
}
