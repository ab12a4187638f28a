package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or gateway confirmation.
	StatusPending Status = "pending"
	// StatusPaid indicates the gateway reports the payment link as paid.
	StatusPaid Status = "paid"
	// StatusFailed indicates the gateway reports a failure and no further action is possible.
	StatusFailed Status = "failed"
	// StatusExpired indicates the payment link lapsed before completion.
	StatusExpired Status = "expired"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// ErrSignatureMismatch is returned when a callback signature fails verification.
var ErrSignatureMismatch = errors.New("payments: signature mismatch")

// LinkCustomer carries the customer snapshot attached to a payment link.
type LinkCustomer struct {
	Name    string
	Email   string
	Contact string
}

// PaymentLinkRequest captures the payload required to create a payment link.
// Amount is in rupees; providers convert to their smallest currency unit.
type PaymentLinkRequest struct {
	Amount         float64
	Currency       string
	Description    string
	ReferenceID    string
	Customer       LinkCustomer
	CallbackURL    string
	IdempotencyKey string
	Metadata       map[string]string
}

// PaymentLink represents the gateway-hosted payment page returned to callers.
type PaymentLink struct {
	ID          string
	Provider    string
	URL         string
	ReferenceID string
	Status      Status
	Raw         map[string]any
}

// WebhookEvent normalises gateway webhook payloads for reconciliation.
type WebhookEvent struct {
	Type        string
	LinkID      string
	ReferenceID string
	PaymentID   string
	Status      Status
	Raw         map[string]any
}

// Provider defines the contract for payment gateway adapters to implement.
type Provider interface {
	CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (PaymentLink, error)
	// ParseWebhook validates the raw webhook body against the gateway
	// signature header and returns the normalised event.
	ParseWebhook(payload []byte, signatureHeader string) (WebhookEvent, error)
	// VerifyCallbackSignature checks the redirect-callback signature computed
	// over orderID|paymentID. Returns ErrSignatureMismatch on failure.
	VerifyCallbackSignature(orderID, paymentID, signature string) error
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider for currencies without explicit routing.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// WithCurrencyRoutes configures static currency to provider mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		providers: copyMap,
	}
	if _, ok := copyMap["stripe"]; ok {
		m.defaultProvider = "stripe"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PaymentContext defines the hints available when selecting a provider.
type PaymentContext struct {
	PreferredProvider string
	Currency          string
	Metadata          map[string]string
}

func (m *Manager) resolveProvider(ctx PaymentContext) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if provider := strings.TrimSpace(strings.ToLower(ctx.PreferredProvider)); provider != "" {
		if p, ok := m.providers[provider]; ok {
			return provider, p, nil
		}
	}
	currency := strings.ToUpper(strings.TrimSpace(ctx.Currency))
	if currency != "" && m.currencyRoutes != nil {
		if providerKey, ok := m.currencyRoutes[currency]; ok {
			provider := strings.TrimSpace(strings.ToLower(providerKey))
			if p, ok := m.providers[provider]; ok {
				return provider, p, nil
			}
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreatePaymentLink delegates to the resolved provider.
func (m *Manager) CreatePaymentLink(ctx context.Context, paymentCtx PaymentContext, req PaymentLinkRequest) (PaymentLink, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return PaymentLink{}, err
	}
	link, err := provider.CreatePaymentLink(ctx, req)
	if err != nil {
		return PaymentLink{}, err
	}
	link.Provider = key
	return link, nil
}

// ParseWebhook delegates to the resolved provider.
func (m *Manager) ParseWebhook(paymentCtx PaymentContext, payload []byte, signatureHeader string) (WebhookEvent, error) {
	_, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return WebhookEvent{}, err
	}
	return provider.ParseWebhook(payload, signatureHeader)
}

// VerifyCallbackSignature delegates to the resolved provider.
func (m *Manager) VerifyCallbackSignature(paymentCtx PaymentContext, orderID, paymentID, signature string) error {
	_, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return err
	}
	return provider.VerifyCallbackSignature(orderID, paymentID, signature)
}
