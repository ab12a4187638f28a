package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/farmcart/api/internal/platform/textutil"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeWebhookVerifier func(payload []byte, signatureHeader, secret string) (stripe.Event, error)

type stripeClients struct {
	sessions stripeSessionAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey string
	// WebhookSecret signs server-to-server webhook payloads.
	WebhookSecret string
	// SignatureSecret is the shared secret for redirect-callback signatures
	// computed over orderID|paymentID.
	SignatureSecret string
	AccountID       string
	Backends        *stripe.Backends
	Logger          StripeLogger
	Clock           func() time.Time
	Clients         *stripeClients
	WebhookVerifier stripeWebhookVerifier
}

// StripeProvider implements the Provider interface using Stripe-hosted
// checkout pages as shareable payment links.
type StripeProvider struct {
	api             stripeClients
	account         string
	webhookSecret   string
	signatureSecret string
	verifyWebhook   stripeWebhookVerifier
	clock           func() time.Time
	logger          StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			sessions: sc.CheckoutSessions,
		}
	}

	if clients.sessions == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	verifier := cfg.WebhookVerifier
	if verifier == nil {
		verifier = func(payload []byte, signatureHeader, secret string) (stripe.Event, error) {
			return webhook.ConstructEvent(payload, signatureHeader, secret)
		}
	}

	return &StripeProvider{
		api:             clients,
		account:         strings.TrimSpace(cfg.AccountID),
		webhookSecret:   strings.TrimSpace(cfg.WebhookSecret),
		signatureSecret: strings.TrimSpace(cfg.SignatureSecret),
		verifyWebhook:   verifier,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreatePaymentLink creates a hosted checkout session whose URL serves as the
// shareable payment link for the order.
func (p *StripeProvider) CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (PaymentLink, error) {
	if p == nil {
		return PaymentLink{}, errors.New("stripe: provider is nil")
	}
	if req.Amount <= 0 {
		return PaymentLink{}, errors.New("stripe: amount must be positive")
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "inr"
	}

	name := strings.TrimSpace(req.Description)
	if name == "" {
		name = "Order"
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(smallestUnit(req.Amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(name),
					},
				},
			},
		},
	}
	params.Context = ctx

	if url := strings.TrimSpace(req.CallbackURL); url != "" {
		params.SuccessURL = stripe.String(url)
	}
	if ref := strings.TrimSpace(req.ReferenceID); ref != "" {
		params.ClientReferenceID = stripe.String(ref)
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if email := strings.TrimSpace(req.Customer.Email); email != "" {
		params.CustomerEmail = stripe.String(email)
	}

	metadata := textutil.NormalizeStringMap(req.Metadata)
	if metadata == nil {
		metadata = make(map[string]string, 1)
	}
	if ref := strings.TrimSpace(req.ReferenceID); ref != "" {
		metadata["order_id"] = ref
	}
	if len(metadata) > 0 {
		params.Metadata = metadata
	}

	session, err := p.api.sessions.New(params)
	if err != nil {
		return PaymentLink{}, fmt.Errorf("stripe: create payment link: %w", err)
	}

	p.logger(ctx, "payments.stripe.link.created", map[string]any{
		"sessionId":   session.ID,
		"referenceId": req.ReferenceID,
		"currency":    currency,
	})

	raw := map[string]any{}
	if data, err := json.Marshal(session); err == nil {
		_ = json.Unmarshal(data, &raw)
	}

	return PaymentLink{
		ID:          session.ID,
		Provider:    "stripe",
		URL:         session.URL,
		ReferenceID: req.ReferenceID,
		Status:      StatusPending,
		Raw:         raw,
	}, nil
}

// ParseWebhook validates the payload signature and normalises completed
// checkout sessions into paid payment-link events.
func (p *StripeProvider) ParseWebhook(payload []byte, signatureHeader string) (WebhookEvent, error) {
	if p == nil {
		return WebhookEvent{}, errors.New("stripe: provider is nil")
	}

	event, err := p.verifyWebhook(payload, signatureHeader, p.webhookSecret)
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("stripe: verify webhook: %w", err)
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return WebhookEvent{}, fmt.Errorf("stripe: decode webhook payload: %w", err)
	}

	raw := map[string]any{}
	_ = json.Unmarshal(event.Data.Raw, &raw)

	normalized := WebhookEvent{
		Type:        string(event.Type),
		LinkID:      session.ID,
		ReferenceID: session.ClientReferenceID,
		Status:      StatusPending,
		Raw:         raw,
	}
	if normalized.ReferenceID == "" && session.Metadata != nil {
		normalized.ReferenceID = session.Metadata["order_id"]
	}
	if session.PaymentIntent != nil {
		normalized.PaymentID = session.PaymentIntent.ID
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		normalized.Type = "payment_link.paid"
		normalized.Status = StatusPaid
	case "checkout.session.expired":
		normalized.Type = "payment_link.expired"
		normalized.Status = StatusExpired
	case "checkout.session.async_payment_failed":
		normalized.Type = "payment_link.failed"
		normalized.Status = StatusFailed
	}

	return normalized, nil
}

// VerifyCallbackSignature checks the hex-encoded HMAC-SHA256 signature the
// gateway appends to the redirect callback, computed over orderID|paymentID.
func (p *StripeProvider) VerifyCallbackSignature(orderID, paymentID, signature string) error {
	if p == nil {
		return errors.New("stripe: provider is nil")
	}
	if p.signatureSecret == "" {
		return errors.New("stripe: signature secret not configured")
	}

	mac := hmac.New(sha256.New, []byte(p.signatureSecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature))) {
		return ErrSignatureMismatch
	}
	return nil
}

func smallestUnit(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
