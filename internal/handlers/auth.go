package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/farmcart/api/internal/platform/httpx"
	"github.com/farmcart/api/internal/services"
)

const maxAuthBodySize = 16 * 1024

// AuthHandlers exposes registration and login endpoints.
type AuthHandlers struct {
	users   services.UserService
	limiter RateLimiter
}

// NewAuthHandlers constructs a new AuthHandlers instance.
func NewAuthHandlers(users services.UserService, limiter RateLimiter) *AuthHandlers {
	return &AuthHandlers{
		users:   users,
		limiter: limiter,
	}
}

// Routes registers the /auth endpoints.
func (h *AuthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
}

type registerRequest struct {
	Name          string         `json:"name"`
	Mobile        string         `json:"mobile"`
	Email         string         `json:"email"`
	Password      string         `json:"password"`
	Address       addressPayload `json:"address"`
	AdminSetupKey string         `json:"adminSetupKey"`
}

type loginRequest struct {
	Mobile   string `json:"mobile"`
	Password string `json:"password"`
}

type userPayload struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Mobile    string         `json:"mobile"`
	Email     string         `json:"email,omitempty"`
	Role      string         `json:"role"`
	Address   addressPayload `json:"address"`
	CreatedAt string         `json:"createdAt,omitempty"`
}

type sessionResponse struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expiresAt"`
	User      userPayload `json:"user"`
}

func buildUserPayload(user services.User) userPayload {
	return userPayload{
		ID:        strings.TrimSpace(user.ID),
		Name:      strings.TrimSpace(user.Name),
		Mobile:    strings.TrimSpace(user.Mobile),
		Email:     strings.TrimSpace(user.Email),
		Role:      string(user.Role),
		Address:   buildAddressPayload(user.Address),
		CreatedAt: formatTime(user.CreatedAt),
	}
}

func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req registerRequest
	if err := h.decodeBody(ctx, w, r, &req); err != nil {
		return
	}

	user, err := h.users.Register(ctx, services.RegisterUserCommand{
		Name:          strings.TrimSpace(req.Name),
		Mobile:        strings.TrimSpace(req.Mobile),
		Email:         strings.TrimSpace(req.Email),
		Password:      req.Password,
		Address:       req.Address.toAddress(),
		AdminSetupKey: strings.TrimSpace(req.AdminSetupKey),
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, map[string]any{"user": buildUserPayload(user)})
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(clientKey(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many login attempts, retry later", http.StatusTooManyRequests))
		return
	}

	var req loginRequest
	if err := h.decodeBody(ctx, w, r, &req); err != nil {
		return
	}

	session, err := h.users.Authenticate(ctx, services.LoginCommand{
		Mobile:   strings.TrimSpace(req.Mobile),
		Password: req.Password,
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, sessionResponse{
		Token:     session.Token,
		ExpiresAt: formatTime(session.ExpiresAt),
		User:      buildUserPayload(session.User),
	})
}

// logout ends the client session. Session tokens are stateless, so the
// server only acknowledges and the client discards the credential.
func (h *AuthHandlers) logout(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandlers) decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dest any) error {
	err := decodeJSONBody(r, maxAuthBodySize, dest)
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
	return err
}

func writeUserError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInvalidCredentials):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_credentials", "mobile or password is incorrect", http.StatusUnauthorized))
	case errors.Is(err, services.ErrUserExists):
		httpx.WriteError(ctx, w, httpx.NewError("user_exists", "an account with this mobile already exists", http.StatusConflict))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "user not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("user_error", "failed to process user request", http.StatusInternalServerError))
	}
}
