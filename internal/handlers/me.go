package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/farmcart/api/internal/platform/auth"
	"github.com/farmcart/api/internal/platform/httpx"
	"github.com/farmcart/api/internal/services"
)

const maxProfileBodySize = 16 * 1024

// MeHandlers exposes profile scoped endpoints for the authenticated user.
type MeHandlers struct {
	authn *auth.Authenticator
	users services.UserService
}

// NewMeHandlers constructs a new MeHandlers instance.
func NewMeHandlers(authn *auth.Authenticator, users services.UserService) *MeHandlers {
	return &MeHandlers{
		authn: authn,
		users: users,
	}
}

// Routes registers the /me endpoints.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.getProfile)
	r.Put("/address", h.updateAddress)
	r.Post("/device-tokens", h.registerDeviceToken)
}

type updateAddressRequest struct {
	Address addressPayload `json:"address"`
}

type registerDeviceTokenRequest struct {
	Token string `json:"token"`
}

func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetProfile(ctx, strings.TrimSpace(identity.UserID))
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"user": buildUserPayload(user)})
}

func (h *MeHandlers) updateAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(w, r)
	if !ok {
		return
	}

	var req updateAddressRequest
	if err := decodeJSONBody(r, maxProfileBodySize, &req); err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	user, err := h.users.UpdateAddress(ctx, services.UpdateAddressCommand{
		UserID:  strings.TrimSpace(identity.UserID),
		Address: req.Address.toAddress(),
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"user": buildUserPayload(user)})
}

func (h *MeHandlers) registerDeviceToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireService(w, r)
	if !ok {
		return
	}

	var req registerDeviceTokenRequest
	if err := decodeJSONBody(r, maxProfileBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	err := h.users.RegisterDeviceToken(ctx, services.RegisterDeviceTokenCommand{
		UserID: strings.TrimSpace(identity.UserID),
		Token:  strings.TrimSpace(req.Token),
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MeHandlers) requireService(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}
