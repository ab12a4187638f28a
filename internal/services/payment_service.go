package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/farmcart/api/internal/domain"
	"github.com/farmcart/api/internal/payments"
	"github.com/farmcart/api/internal/repositories"
)

var (
	// ErrPaymentInvalidInput signals the caller provided invalid payment data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentIncomplete indicates the gateway signal did not assert completion.
	ErrPaymentIncomplete = errors.New("payment: not completed")
)

const webhookEventLinkPaid = "payment_link.paid"

// paymentSignalVerifier abstracts payments.Manager webhook parsing and
// callback signature checks for easier testing.
type paymentSignalVerifier interface {
	ParseWebhook(paymentCtx payments.PaymentContext, payload []byte, signatureHeader string) (payments.WebhookEvent, error)
	VerifyCallbackSignature(paymentCtx payments.PaymentContext, orderID, paymentID, signature string) error
}

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Orders   repositories.OrderRepository
	Users    repositories.UserRepository
	Gateway  paymentSignalVerifier
	Invoices InvoiceService
	Notifier Notifier
	Events   OrderEventPublisher
	Clock    func() time.Time
	// Async schedules fire-and-forget side effects such as email sends.
	Async  func(fn func())
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders   repositories.OrderRepository
	users    repositories.UserRepository
	gateway  paymentSignalVerifier
	invoices InvoiceService
	notifier Notifier
	events   OrderEventPublisher
	clock    func() time.Time
	async    func(fn func())
	logger   func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("payment service: user repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	async := deps.Async
	if async == nil {
		async = func(fn func()) { go fn() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		orders:   deps.Orders,
		users:    deps.Users,
		gateway:  deps.Gateway,
		invoices: deps.Invoices,
		notifier: deps.Notifier,
		events:   deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		async:  async,
		logger: logger,
	}, nil
}

// ConfirmCallback handles the browser redirect after the customer pays. The
// callback and the webhook race freely; the transactional mark-paid settles
// exactly one winner, and only the winner sends the invoice.
func (s *paymentService) ConfirmCallback(ctx context.Context, cmd PaymentCallbackCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if order.Status == domain.OrderStatusPaid {
		return order, nil
	}

	paymentID := strings.TrimSpace(cmd.PaymentID)
	if !strings.EqualFold(strings.TrimSpace(cmd.LinkStatus), "paid") && paymentID == "" {
		return Order{}, fmt.Errorf("%w: order %s", ErrPaymentIncomplete, orderID)
	}

	// Signature verification is a best-effort integrity check, not an
	// authorization gate: failures are logged and the transition proceeds.
	if signature := strings.TrimSpace(cmd.Signature); signature != "" && s.gateway != nil {
		if err := s.gateway.VerifyCallbackSignature(payments.PaymentContext{}, orderID, paymentID, signature); err != nil {
			s.logger(ctx, "payment.callback.signature_mismatch", map[string]any{
				"orderId":   orderID,
				"paymentId": paymentID,
				"error":     err.Error(),
			})
		}
	}

	return s.settlePaid(ctx, orderID, paymentID, "callback")
}

// HandleWebhook handles the server-to-server gateway event.
func (s *paymentService) HandleWebhook(ctx context.Context, cmd PaymentWebhookCommand) error {
	if s.gateway == nil {
		return errors.New("payment service: gateway is not configured")
	}

	event, err := s.gateway.ParseWebhook(payments.PaymentContext{}, cmd.Payload, cmd.SignatureHeader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPaymentInvalidInput, err)
	}

	if event.Type != webhookEventLinkPaid {
		s.logger(ctx, "payment.webhook.ignored", map[string]any{
			"type":   event.Type,
			"linkId": event.LinkID,
		})
		return nil
	}

	orderID := strings.TrimSpace(event.ReferenceID)
	if orderID == "" {
		orderID = strings.TrimSpace(event.LinkID)
	}
	if orderID == "" {
		return fmt.Errorf("%w: webhook event carries no order reference", ErrPaymentInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	if order.Status == domain.OrderStatusPaid {
		return nil
	}

	_, err = s.settlePaid(ctx, orderID, event.PaymentID, "webhook")
	return err
}

// settlePaid performs the atomic paid transition and, when this call wins the
// race, triggers the at-most-once invoice side effects.
func (s *paymentService) settlePaid(ctx context.Context, orderID, paymentID, channel string) (Order, error) {
	now := s.clock()
	order, performed, err := s.orders.MarkPaid(ctx, orderID, now)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if !performed {
		s.logger(ctx, "payment.reconcile.already_paid", map[string]any{
			"orderId": orderID,
			"channel": channel,
		})
		return order, nil
	}

	s.logger(ctx, "payment.reconcile.paid", map[string]any{
		"orderId":   orderID,
		"paymentId": paymentID,
		"channel":   channel,
	})

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventPaid,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: domain.OrderStatusDelivered,
		CurrentStatus:  order.Status,
		OccurredAt:     now,
	})

	order = s.sendInvoice(ctx, order)
	return order, nil
}

// sendInvoice issues the invoice, records its document URL on the order, and
// emails the customer. The returned order carries the persisted invoice URL.
func (s *paymentService) sendInvoice(ctx context.Context, order Order) Order {
	var invoice Invoice
	if s.invoices != nil {
		issued, err := s.invoices.IssueForOrder(ctx, order)
		if err != nil {
			s.logger(ctx, "payment.invoice.issue_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		} else {
			invoice = issued
		}
	}

	if invoice.DocumentURL != "" {
		url := invoice.DocumentURL
		updated, err := s.orders.ApplyStatusUpdate(ctx, order.ID, repositories.OrderStatusUpdate{
			Status:     order.Status,
			InvoiceURL: &url,
		})
		if err != nil {
			s.logger(ctx, "payment.invoice.url_persist_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		} else {
			order = updated
		}
	}

	if s.notifier == nil {
		return order
	}

	customer, err := s.users.FindByID(ctx, order.CustomerID)
	if err != nil {
		s.logger(ctx, "payment.invoice.customer_lookup_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return order
	}
	if customer.Role == domain.RoleAdmin || strings.TrimSpace(customer.Email) == "" {
		return order
	}

	msg := InvoiceNotification{
		To:            customer.Email,
		CustomerName:  order.CustomerName,
		OrderNumber:   order.OrderNumber,
		InvoiceNumber: invoice.InvoiceNumber,
		Amount:        order.TotalAmount,
		InvoiceURL:    invoice.DocumentURL,
	}
	sendCtx := context.WithoutCancel(ctx)
	s.async(func() {
		if err := s.notifier.SendInvoice(sendCtx, msg); err != nil {
			s.logger(sendCtx, "payment.invoice.send_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
	})
	return order
}

func (s *paymentService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "payment.event.publish_failed", map[string]any{
			"orderId": event.OrderID,
			"type":    event.Type,
			"error":   err.Error(),
		})
	}
}

func (s *paymentService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("payment: repository unavailable: %w", err)
		}
	}
	return err
}
