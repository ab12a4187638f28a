package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/farmcart/api/internal/domain"
	"github.com/farmcart/api/internal/payments"
	"github.com/farmcart/api/internal/repositories"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid order data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrForbiddenActor indicates an admin account attempted to place an order.
	ErrForbiddenActor = errors.New("order: admin accounts cannot place orders")
	// ErrMissingContact indicates the customer has no email for payment notifications.
	ErrMissingContact = errors.New("order: customer email is required")
)

const orderIDPrefix = "ord_"

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status_changed"
	orderEventPaid          = "order.paid"
)

const gatewayCallTimeout = 10 * time.Second

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending: {
		domain.OrderStatusConfirmed,
		domain.OrderStatusOutForDelivery,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusConfirmed: {
		domain.OrderStatusOutForDelivery,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusOutForDelivery: {
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusDelivered: {
		domain.OrderStatusPaid,
		domain.OrderStatusCancelled,
	},
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	PreviousStatus OrderStatus
	CurrentStatus  OrderStatus
	ActorID        string
	OccurredAt     time.Time
}

// paymentLinkIssuer abstracts payments.Manager for easier testing.
type paymentLinkIssuer interface {
	CreatePaymentLink(ctx context.Context, paymentCtx payments.PaymentContext, req payments.PaymentLinkRequest) (payments.PaymentLink, error)
}

// QREncoder renders text into a data-URI encoded QR image.
type QREncoder interface {
	EncodeDataURL(text string) (string, error)
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders   repositories.OrderRepository
	Users    repositories.UserRepository
	Products repositories.ProductRepository
	Catalog  CatalogService
	Gateway  paymentLinkIssuer
	QR       QREncoder
	Notifier Notifier
	Push     PushSender
	Events   OrderEventPublisher
	// CallbackBaseURL is the externally reachable base for the payment
	// redirect callback appended to generated payment links.
	CallbackBaseURL string
	Currency        string
	Clock           func() time.Time
	IDGenerator     func() string
	// NumberSuffix returns the random three-digit component of order numbers.
	NumberSuffix func() int
	// Async schedules fire-and-forget side effects such as email sends.
	Async  func(fn func())
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders       repositories.OrderRepository
	users        repositories.UserRepository
	products     repositories.ProductRepository
	catalog      CatalogService
	gateway      paymentLinkIssuer
	qr           QREncoder
	notifier     Notifier
	push         PushSender
	events       OrderEventPublisher
	callbackBase string
	currency     string
	clock        func() time.Time
	newID        func() string
	numberSuffix func() int
	async        func(fn func())
	logger       func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("order service: user repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("order service: catalog service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	suffix := deps.NumberSuffix
	if suffix == nil {
		suffix = func() int {
			return rand.IntN(900) + 100
		}
	}

	async := deps.Async
	if async == nil {
		async = func(fn func()) { go fn() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "INR"
	}

	return &orderService{
		orders:       deps.Orders,
		users:        deps.Users,
		products:     deps.Products,
		catalog:      deps.Catalog,
		gateway:      deps.Gateway,
		qr:           deps.QR,
		notifier:     deps.Notifier,
		push:         deps.Push,
		events:       deps.Events,
		callbackBase: strings.TrimRight(strings.TrimSpace(deps.CallbackBaseURL), "/"),
		currency:     currency,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:        idGen,
		numberSuffix: suffix,
		async:        async,
		logger:       logger,
	}, nil
}

// Create validates the cart against the catalog and persists a pending order
// with all product data frozen as of this call.
func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	if cmd.Actor.IsAdmin() {
		return Order{}, ErrForbiddenActor
	}
	if strings.TrimSpace(cmd.Actor.Email) == "" {
		return Order{}, ErrMissingContact
	}
	if strings.TrimSpace(cmd.Actor.ID) == "" {
		return Order{}, fmt.Errorf("%w: actor id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	deliveryDate := strings.TrimSpace(cmd.DeliveryDate)
	if deliveryDate == "" {
		return Order{}, fmt.Errorf("%w: delivery date is required", ErrOrderInvalidInput)
	}

	customer, err := s.users.FindByID(ctx, cmd.Actor.ID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	now := s.clock()
	items := make([]OrderItem, 0, len(cmd.Items))
	var total float64
	type decrement struct {
		productID string
		quantity  float64
	}
	var legacyDecrements []decrement

	for i, input := range cmd.Items {
		if input.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: item %d quantity must be positive", ErrOrderInvalidInput, i)
		}

		resolved, err := s.catalog.Resolve(ctx, input.ProductID, deliveryDate)
		if err != nil {
			return Order{}, err
		}

		lineTotal := resolved.Price * input.Quantity
		items = append(items, OrderItem{
			ProductID:   resolved.ProductID,
			ProductName: resolved.Name,
			Quantity:    input.Quantity,
			Unit:        resolved.Unit,
			Price:       resolved.Price,
			Total:       lineTotal,
		})
		total += lineTotal

		// Stock only decrements on the direct-catalog path; batch quantities
		// are reference figures, not a hard cap.
		if !resolved.FromBatch {
			legacyDecrements = append(legacyDecrements, decrement{productID: resolved.ProductID, quantity: input.Quantity})
		}
	}

	address := customer.Address
	if cmd.Address != nil {
		address = *cmd.Address
	}

	order := Order{
		ID:              orderIDPrefix + s.newID(),
		OrderNumber:     s.generateOrderNumber(now),
		CustomerID:      customer.ID,
		CustomerName:    customer.Name,
		CustomerMobile:  customer.Mobile,
		CustomerAddress: address,
		Items:           items,
		TotalAmount:     total,
		Status:          domain.OrderStatusPending,
		DeliveryDate:    deliveryDate,
		CreatedAt:       now,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if s.products != nil {
		for _, dec := range legacyDecrements {
			if err := s.products.DecrementQuantity(ctx, dec.productID, dec.quantity); err != nil {
				s.logger(ctx, "order.stock.decrement_failed", map[string]any{
					"orderId":   order.ID,
					"productId": dec.productID,
					"error":     err.Error(),
				})
			}
		}
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: order.Status,
		ActorID:       cmd.Actor.ID,
		OccurredAt:    now,
	})

	return order, nil
}

func (s *orderService) Get(ctx context.Context, orderID string, actor Actor) (Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if !actor.IsAdmin() && order.CustomerID != actor.ID {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	return order, nil
}

func (s *orderService) List(ctx context.Context, filter OrderListFilter) ([]Order, error) {
	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

// TransitionStatus applies the target status. Re-applying the current status
// is a no-op, never an error, and never re-triggers side effects.
func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := cmd.TargetStatus
	if !domain.ValidOrderStatus(target) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, target)
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if order.Status == target {
		return order, nil
	}

	if !canTransition(order.Status, target) {
		return Order{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, order.Status, target)
	}

	now := s.clock()
	update := repositories.OrderStatusUpdate{Status: target}

	var notifyPayment bool
	switch target {
	case domain.OrderStatusDelivered:
		update.DeliveredAt = &now
		link, qrCode := s.issuePaymentLink(ctx, order)
		if link != "" {
			update.PaymentLink = &link
		}
		if qrCode != "" {
			update.PaymentQRCode = &qrCode
		}
		notifyPayment = link != ""
	case domain.OrderStatusPaid:
		update.PaidAt = &now
	}

	updated, err := s.orders.ApplyStatusUpdate(ctx, id, update)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if notifyPayment {
		s.sendPaymentRequest(ctx, updated)
	}
	s.notifyDevices(ctx, updated)

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		PreviousStatus: order.Status,
		CurrentStatus:  updated.Status,
		ActorID:        cmd.ActorID,
		OccurredAt:     now,
	})

	return updated, nil
}

// BulkUpdateStatus applies the target status to each order independently.
// Failures are logged and skipped; the batch never aborts.
func (s *orderService) BulkUpdateStatus(ctx context.Context, cmd BulkStatusUpdateCommand) (BulkUpdateResult, error) {
	if len(cmd.OrderIDs) == 0 {
		return BulkUpdateResult{}, fmt.Errorf("%w: at least one order id is required", ErrOrderInvalidInput)
	}
	if !domain.ValidOrderStatus(cmd.TargetStatus) {
		return BulkUpdateResult{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.TargetStatus)
	}

	var updated int
	for _, orderID := range cmd.OrderIDs {
		_, err := s.TransitionStatus(ctx, OrderStatusTransitionCommand{
			OrderID:      orderID,
			TargetStatus: cmd.TargetStatus,
			ActorID:      cmd.ActorID,
		})
		if err != nil {
			s.logger(ctx, "order.bulk.update_failed", map[string]any{
				"orderId": orderID,
				"status":  string(cmd.TargetStatus),
				"error":   err.Error(),
			})
			continue
		}
		updated++
	}

	return BulkUpdateResult{UpdatedCount: updated}, nil
}

// issuePaymentLink creates the gateway link and QR for a delivered order.
// Every failure is logged and swallowed; the transition proceeds regardless.
func (s *orderService) issuePaymentLink(ctx context.Context, order Order) (string, string) {
	if s.gateway == nil {
		return "", ""
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, gatewayCallTimeout)
	defer cancel()

	customer, err := s.users.FindByID(ctx, order.CustomerID)
	if err != nil {
		s.logger(ctx, "order.payment_link.customer_lookup_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}

	link, err := s.gateway.CreatePaymentLink(gatewayCtx, payments.PaymentContext{Currency: s.currency}, payments.PaymentLinkRequest{
		Amount:      order.TotalAmount,
		Currency:    s.currency,
		Description: "Order " + order.OrderNumber,
		ReferenceID: order.ID,
		Customer: payments.LinkCustomer{
			Name:    order.CustomerName,
			Email:   customer.Email,
			Contact: order.CustomerMobile,
		},
		CallbackURL:    s.callbackURL(order.ID),
		IdempotencyKey: order.ID,
	})
	if err != nil {
		s.logger(ctx, "order.payment_link.create_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return "", ""
	}

	qrCode := ""
	if s.qr != nil {
		qrCode, err = s.qr.EncodeDataURL(link.URL)
		if err != nil {
			s.logger(ctx, "order.payment_link.qr_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
			qrCode = ""
		}
	}

	return link.URL, qrCode
}

// sendPaymentRequest emails the payment link to the customer without blocking
// the transition that triggered it.
func (s *orderService) sendPaymentRequest(ctx context.Context, order Order) {
	if s.notifier == nil {
		return
	}

	customer, err := s.users.FindByID(ctx, order.CustomerID)
	if err != nil {
		s.logger(ctx, "order.payment_email.customer_lookup_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return
	}
	if customer.Role == domain.RoleAdmin || strings.TrimSpace(customer.Email) == "" {
		return
	}

	msg := PaymentRequestNotification{
		To:           customer.Email,
		CustomerName: order.CustomerName,
		OrderNumber:  order.OrderNumber,
		Amount:       order.TotalAmount,
		PaymentLink:  order.PaymentLink,
	}
	sendCtx := context.WithoutCancel(ctx)
	s.async(func() {
		if err := s.notifier.SendPaymentRequest(sendCtx, msg); err != nil {
			s.logger(sendCtx, "order.payment_email.send_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
	})
}

func (s *orderService) notifyDevices(ctx context.Context, order Order) {
	if s.push == nil {
		return
	}

	customer, err := s.users.FindByID(ctx, order.CustomerID)
	if err != nil || len(customer.DeviceTokens) == 0 {
		return
	}

	tokens := customer.DeviceTokens
	orderNumber := order.OrderNumber
	status := order.Status
	sendCtx := context.WithoutCancel(ctx)
	s.async(func() {
		if err := s.push.SendOrderUpdate(sendCtx, tokens, orderNumber, status); err != nil {
			s.logger(sendCtx, "order.push.send_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
	})
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish_failed", map[string]any{
			"orderId": event.OrderID,
			"type":    event.Type,
			"error":   err.Error(),
		})
	}
}

// generateOrderNumber builds the human-facing number from the current unix
// millisecond timestamp and a random three-digit suffix.
func (s *orderService) generateOrderNumber(now time.Time) string {
	return fmt.Sprintf("FV-%d-%03d", now.UnixMilli(), s.numberSuffix())
}

func (s *orderService) callbackURL(orderID string) string {
	if s.callbackBase == "" {
		return ""
	}
	return fmt.Sprintf("%s/api/payments/callback?orderId=%s", s.callbackBase, orderID)
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}

func canTransition(current, target domain.OrderStatus) bool {
	for _, allowed := range orderStateTransitions[current] {
		if allowed == target {
			return true
		}
	}
	return false
}
