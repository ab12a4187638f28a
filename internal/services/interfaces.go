package services

import (
	"context"
	"time"

	domain "github.com/farmcart/api/internal/domain"
	"github.com/farmcart/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Unit               = domain.Unit
	Role               = domain.Role
	Address            = domain.Address
	User               = domain.User
	Product            = domain.Product
	BatchStatus        = domain.BatchStatus
	DeliveryLine       = domain.DeliveryLine
	DeliveryBatch      = domain.DeliveryBatch
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	ResolvedLine       = domain.ResolvedLine
	Invoice            = domain.Invoice
	ProductTotal       = domain.ProductTotal
	DeliverySummary    = domain.DeliverySummary
	SystemHealthReport = domain.SystemHealthReport
)

// Actor identifies the authenticated principal driving an operation.
type Actor struct {
	ID    string
	Role  Role
	Email string
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == domain.RoleAdmin
}

// CatalogService manages the master product catalog, delivery batches, and
// price resolution for order placement.
type CatalogService interface {
	CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	ListProducts(ctx context.Context, filter ProductListFilter) ([]Product, error)
	CreateDeliveryBatch(ctx context.Context, cmd CreateDeliveryBatchCommand) (DeliveryBatch, error)
	UpdateDeliveryBatchStatus(ctx context.Context, cmd UpdateBatchStatusCommand) (DeliveryBatch, error)
	GetDeliveryBatch(ctx context.Context, batchID string) (DeliveryBatch, error)
	ListDeliveryBatches(ctx context.Context, filter DeliveryListFilter) ([]DeliveryBatch, error)
	// Resolve returns the authoritative price/name/unit for the product on the
	// delivery date, preferring an active batch line over the master catalog.
	Resolve(ctx context.Context, productID string, deliveryDate string) (ResolvedLine, error)
}

// OrderService encapsulates order placement, lifecycle transitions, and bulk updates.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	Get(ctx context.Context, orderID string, actor Actor) (Order, error)
	List(ctx context.Context, filter OrderListFilter) ([]Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	BulkUpdateStatus(ctx context.Context, cmd BulkStatusUpdateCommand) (BulkUpdateResult, error)
}

// PaymentService reconciles payment signals from the gateway into order state.
type PaymentService interface {
	// ConfirmCallback handles the synchronous browser redirect after payment.
	ConfirmCallback(ctx context.Context, cmd PaymentCallbackCommand) (Order, error)
	// HandleWebhook handles the asynchronous server-to-server gateway event.
	HandleWebhook(ctx context.Context, cmd PaymentWebhookCommand) error
}

// ReportService aggregates orders for admin reporting and spreadsheet export.
type ReportService interface {
	DeliverySummaries(ctx context.Context, filter OrderListFilter) ([]DeliverySummary, error)
	ExportOrders(ctx context.Context, filter OrderListFilter) (ExportResult, error)
}

// UserService manages registration, authentication, and customer profile state.
type UserService interface {
	Register(ctx context.Context, cmd RegisterUserCommand) (User, error)
	Authenticate(ctx context.Context, cmd LoginCommand) (AuthSession, error)
	GetProfile(ctx context.Context, userID string) (User, error)
	UpdateAddress(ctx context.Context, cmd UpdateAddressCommand) (User, error)
	RegisterDeviceToken(ctx context.Context, cmd RegisterDeviceTokenCommand) error
}

// InvoiceService issues invoices exactly once per paid order.
type InvoiceService interface {
	IssueForOrder(ctx context.Context, order Order) (Invoice, error)
	GetByOrderID(ctx context.Context, orderID string) (Invoice, error)
}

// SystemService aggregates utility endpoints such as health checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// Command and DTO definitions ------------------------------------------------

type ProductListFilter = repositories.ProductListFilter

type DeliveryListFilter = repositories.DeliveryListFilter

type OrderListFilter = repositories.OrderListFilter

type UpsertProductCommand struct {
	ProductID     string
	Name          string
	Price         float64
	Quantity      float64
	Unit          Unit
	AvailableDate string
	Description   string
	Image         string
	ActorID       string
}

type BatchLineInput struct {
	ProductID string
	Price     *float64
	Quantity  *float64
}

type CreateDeliveryBatchCommand struct {
	DeliveryDate string
	Lines        []BatchLineInput
	ActorID      string
}

type UpdateBatchStatusCommand struct {
	BatchID string
	Status  BatchStatus
	ActorID string
}

type OrderLineInput struct {
	ProductID string
	Quantity  float64
}

type CreateOrderCommand struct {
	Actor        Actor
	Items        []OrderLineInput
	DeliveryDate string
	// Address overrides the customer's saved address when set.
	Address *Address
}

type OrderStatusTransitionCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	ActorID      string
}

type BulkStatusUpdateCommand struct {
	OrderIDs     []string
	TargetStatus OrderStatus
	ActorID      string
}

// BulkUpdateResult reports how many orders in the batch were updated.
type BulkUpdateResult struct {
	UpdatedCount int
}

type PaymentCallbackCommand struct {
	OrderID    string
	PaymentID  string
	LinkStatus string
	Signature  string
}

type PaymentWebhookCommand struct {
	Payload         []byte
	SignatureHeader string
}

// ExportResult carries a rendered spreadsheet and its suggested file name.
type ExportResult struct {
	FileName    string
	ContentType string
	Data        []byte
}

type RegisterUserCommand struct {
	Name     string
	Mobile   string
	Email    string
	Password string
	Address  Address
	// AdminSetupKey promotes the account to the admin role when it matches
	// the configured secret.
	AdminSetupKey string
}

type LoginCommand struct {
	Mobile   string
	Password string
}

// AuthSession carries the signed token issued after authentication.
type AuthSession struct {
	Token     string
	ExpiresAt time.Time
	User      User
}

type UpdateAddressCommand struct {
	UserID  string
	Address Address
}

type RegisterDeviceTokenCommand struct {
	UserID string
	Token  string
}
