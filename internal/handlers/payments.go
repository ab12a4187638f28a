package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/farmcart/api/internal/payments"
	"github.com/farmcart/api/internal/platform/httpx"
	"github.com/farmcart/api/internal/services"
)

const (
	maxWebhookBodySize     = 256 * 1024
	webhookSignatureHeader = "Stripe-Signature"
)

// PaymentHandlers exposes the gateway redirect callback and webhook endpoints.
// Both are unauthenticated: the callback is hit by the customer's browser and
// the webhook by the gateway, each carrying its own signature material.
type PaymentHandlers struct {
	payments services.PaymentService
	limiter  RateLimiter
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(paymentService services.PaymentService, limiter RateLimiter) *PaymentHandlers {
	return &PaymentHandlers{
		payments: paymentService,
		limiter:  limiter,
	}
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/callback", h.callback)
	r.Post("/webhook", h.webhook)
}

func (h *PaymentHandlers) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	cmd := services.PaymentCallbackCommand{
		OrderID:    strings.TrimSpace(query.Get("orderId")),
		PaymentID:  strings.TrimSpace(query.Get("paymentId")),
		LinkStatus: strings.TrimSpace(query.Get("status")),
		Signature:  strings.TrimSpace(query.Get("signature")),
	}
	if cmd.OrderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "orderId is required", http.StatusBadRequest))
		return
	}

	order, err := h.payments.ConfirmCallback(ctx, cmd)
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"order": buildOrderPayload(order),
	})
}

func (h *PaymentHandlers) webhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(clientKey(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many webhook deliveries, retry later", http.StatusTooManyRequests))
		return
	}

	payload, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "webhook payload exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "webhook payload is required", http.StatusBadRequest))
		}
		return
	}

	err = h.payments.HandleWebhook(ctx, services.PaymentWebhookCommand{
		Payload:         payload,
		SignatureHeader: strings.TrimSpace(r.Header.Get(webhookSignatureHeader)),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"received": true})
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentIncomplete):
		httpx.WriteError(ctx, w, httpx.NewError("payment_incomplete", "payment has not completed", http.StatusConflict))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, payments.ErrSignatureMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("signature_mismatch", "webhook signature verification failed", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to process payment signal", http.StatusInternalServerError))
	}
}
