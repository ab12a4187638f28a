package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"

	domain "github.com/farmcart/api/internal/domain"
)

const defaultSessionTTL = 24 * time.Hour

var (
	// ErrTokenExpired signals that the provided session token has expired.
	ErrTokenExpired = errors.New("auth: session token expired")
	// ErrTokenInvalid signals that the provided session token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: session token invalid")
)

type sessionClaims struct {
	jwt.RegisteredClaims
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// SessionManagerConfig configures the SessionManager.
type SessionManagerConfig struct {
	// Secret signs and verifies session tokens with HMAC-SHA256.
	Secret string
	Issuer string
	TTL    time.Duration
	Clock  func() time.Time
}

// SessionManager mints and verifies the HS256 session tokens issued at login.
type SessionManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  func() time.Time
}

// NewSessionManager constructs a SessionManager from the given configuration.
func NewSessionManager(cfg SessionManagerConfig) (*SessionManager, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: session secret is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &SessionManager{
		secret: []byte(secret),
		issuer: strings.TrimSpace(cfg.Issuer),
		ttl:    ttl,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// Issue mints a signed session token for the authenticated user.
func (m *SessionManager) Issue(user domain.User, now time.Time) (string, time.Time, error) {
	if m == nil {
		return "", time.Time{}, errors.New("auth: session manager is nil")
	}
	if strings.TrimSpace(user.ID) == "" {
		return "", time.Time{}, errors.New("auth: user id is required")
	}
	if now.IsZero() {
		now = m.clock()
	}

	expiresAt := now.Add(m.ttl)
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Name:  user.Name,
		Email: user.Email,
		Role:  string(user.Role),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign session token: %w", err)
	}
	return token, expiresAt, nil
}

// VerifyToken parses and validates a session token, returning the embedded identity.
func (m *SessionManager) VerifyToken(tokenString string) (*Identity, error) {
	if m == nil {
		return nil, errors.New("auth: session manager is nil")
	}

	claims := &sessionClaims{}
	// Time claims are validated manually below so the injected clock, not
	// the package-global jwt.TimeFunc, decides expiry.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	now := m.clock()
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing expiry", ErrTokenInvalid)
	}
	if !claims.VerifyExpiresAt(now, true) {
		return nil, ErrTokenExpired
	}
	if !claims.VerifyNotBefore(now, false) {
		return nil, fmt.Errorf("%w: token not yet valid", ErrTokenInvalid)
	}

	if m.issuer != "" && claims.Issuer != m.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrTokenInvalid)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	return &Identity{
		UserID: claims.Subject,
		Name:   claims.Name,
		Email:  claims.Email,
		Role:   normaliseRole(claims.Role),
	}, nil
}
