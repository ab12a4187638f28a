package repositories

import (
	"context"
	"time"

	domain "github.com/farmcart/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Deliveries() DeliveryBatchRepository
	Orders() OrderRepository
	Users() UserRepository
	Invoices() InvoiceRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository stores base catalog entries.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) ([]domain.Product, error)
	// DecrementQuantity applies the legacy best-effort stock decrement used by
	// the catalog fallback path. Implementations clamp at zero.
	DecrementQuantity(ctx context.Context, productID string, quantity float64) error
}

// DeliveryBatchRepository stores per-date delivery batches. Insert enforces
// the one-batch-per-date invariant and surfaces a conflict RepositoryError
// when a batch for the date already exists.
type DeliveryBatchRepository interface {
	Insert(ctx context.Context, batch domain.DeliveryBatch) error
	Update(ctx context.Context, batch domain.DeliveryBatch) error
	FindByID(ctx context.Context, batchID string) (domain.DeliveryBatch, error)
	FindActiveByDate(ctx context.Context, deliveryDate string) (domain.DeliveryBatch, error)
	List(ctx context.Context, filter DeliveryListFilter) ([]domain.DeliveryBatch, error)
}

// OrderRepository persists order documents and provides query helpers for
// customers and admins.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
	// ApplyStatusUpdate persists a typed status mutation.
	ApplyStatusUpdate(ctx context.Context, orderID string, update OrderStatusUpdate) (domain.Order, error)
	// MarkPaid transitions the order to paid inside a transaction, aborting
	// when the stored status is already paid. It returns the resulting order
	// and whether this call performed the transition.
	MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (domain.Order, bool, error)
}

// OrderStatusUpdate carries the typed fields a status transition may touch.
// Nil pointers leave the stored value untouched.
type OrderStatusUpdate struct {
	Status        domain.OrderStatus
	PaymentLink   *string
	PaymentQRCode *string
	InvoiceURL    *string
	DeliveredAt   *time.Time
	PaidAt        *time.Time
}

// UserRepository stores account records for admins and customers.
type UserRepository interface {
	Insert(ctx context.Context, user domain.User) error
	Update(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindByMobile(ctx context.Context, mobile string) (domain.User, error)
	AddDeviceToken(ctx context.Context, userID string, token string) error
}

// InvoiceRepository stores issued invoices keyed by order.
type InvoiceRepository interface {
	Insert(ctx context.Context, invoice domain.Invoice) error
	FindByOrderID(ctx context.Context, orderID string) (domain.Invoice, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type ProductListFilter struct {
	AvailableDate string
}

type DeliveryListFilter struct {
	DeliveryDate string
	Status       []domain.BatchStatus
	// FromDate keeps only batches on or after the given YYYY-MM-DD date.
	FromDate string
}

type OrderListFilter struct {
	CustomerID   string
	Status       []domain.OrderStatus
	DeliveryDate string
	// Limit caps the number of returned orders. Zero means no cap.
	Limit int
	// StartAfter holds cursor values aligned with the createdAt ordering,
	// resuming the listing after the referenced document.
	StartAfter []any
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
