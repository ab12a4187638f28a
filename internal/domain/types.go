package domain

import (
	"time"
)

// Unit enumerates the sale units a product can be offered in.
type Unit string

const (
	// UnitKilo sells the product by weight in kilograms.
	UnitKilo Unit = "kilo"
	// UnitPieces sells the product by individual count.
	UnitPieces Unit = "pieces"
	// UnitBoxes sells the product by packed box.
	UnitBoxes Unit = "boxes"
)

// ValidUnit reports whether the given unit is one of the supported sale units.
func ValidUnit(u Unit) bool {
	switch u {
	case UnitKilo, UnitPieces, UnitBoxes:
		return true
	}
	return false
}

// Role distinguishes platform operators from ordering customers.
type Role string

const (
	// RoleAdmin marks back-office operators who manage catalog and deliveries.
	RoleAdmin Role = "admin"
	// RoleCustomer marks end users who place orders.
	RoleCustomer Role = "customer"
)

// Address represents the delivery address snapshot shared by user and order layers.
type Address struct {
	CommunityName string
	ApartmentName string
	RoomNo        string
	Street        string
	City          string
	Pincode       string
}

// User is the canonical account record for both admins and customers.
type User struct {
	ID           string
	Name         string
	Mobile       string
	Email        string
	PasswordHash string
	Role         Role
	Address      Address
	DeviceTokens []string
	CreatedAt    time.Time
}

// Product is the base catalog entry. Price and quantity here are the
// fallback values used when no delivery batch covers the requested date.
type Product struct {
	ID            string
	Name          string
	Price         float64
	Quantity      float64
	Unit          Unit
	AvailableDate string
	Description   string
	Image         string
	CreatedAt     time.Time
}

// BatchStatus enumerates lifecycle states for a delivery batch.
type BatchStatus string

const (
	// BatchStatusActive indicates the batch is open and priced for ordering.
	BatchStatusActive BatchStatus = "active"
	// BatchStatusCompleted indicates the batch has been fulfilled.
	BatchStatusCompleted BatchStatus = "completed"
	// BatchStatusCancelled indicates the batch was withdrawn before fulfilment.
	BatchStatusCancelled BatchStatus = "cancelled"
)

// DeliveryLine is the denormalized product snapshot carried by a delivery
// batch. Later edits to the base product never leak into an existing line.
type DeliveryLine struct {
	ProductID   string
	ProductName string
	Price       float64
	Quantity    float64
	Unit        Unit
	Description string
	Image       string
}

// DeliveryBatch prices a set of products for a single delivery date.
// At most one batch may exist per date.
type DeliveryBatch struct {
	ID           string
	DeliveryDate string
	Lines        []DeliveryLine
	Status       BatchStatus
	CreatedAt    time.Time
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order has been placed and awaits confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates an operator accepted the order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusOutForDelivery indicates the order is on a delivery run.
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	// OrderStatusDelivered indicates the order reached the customer and payment was requested.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusPaid indicates payment has been reconciled. Terminal.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusCancelled indicates the order was withdrawn. Terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// ValidOrderStatus reports whether the status belongs to the lifecycle enum.
func ValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusOutForDelivery,
		OrderStatusDelivered, OrderStatusPaid, OrderStatusCancelled:
		return true
	}
	return false
}

// OrderItem freezes the resolved line at order time: name, unit, and price
// are snapshots and survive any later catalog or batch edits.
type OrderItem struct {
	ProductID   string
	ProductName string
	Quantity    float64
	Unit        Unit
	Price       float64
	Total       float64
}

// Order captures a placed order with all customer and line snapshots.
// Orders are never deleted; cancellation is a status.
type Order struct {
	ID              string
	OrderNumber     string
	CustomerID      string
	CustomerName    string
	CustomerMobile  string
	CustomerAddress Address
	Items           []OrderItem
	TotalAmount     float64
	Status          OrderStatus
	DeliveryDate    string
	PaymentLink     string
	PaymentQRCode   string
	InvoiceURL      string
	PaidAt          *time.Time
	DeliveredAt     *time.Time
	CreatedAt       time.Time
}

// ResolvedLine is the catalog resolver output for one (product, date) pair.
type ResolvedLine struct {
	ProductID         string
	Name              string
	Price             float64
	Unit              Unit
	AvailableQuantity float64
	FromBatch         bool
}

// Invoice records the billing document issued when an order is paid.
type Invoice struct {
	ID            string
	OrderID       string
	InvoiceNumber string
	Amount        float64
	IssuedAt      time.Time
	DocumentURL   string
}

// ProductTotal aggregates one product row inside a delivery summary.
// Rows are keyed by product id and unit and keep insertion order.
type ProductTotal struct {
	ProductName   string
	Unit          Unit
	TotalQuantity float64
	TotalAmount   float64
	OrderCount    int
}

// DeliverySummary rolls up all orders sharing a delivery date.
type DeliverySummary struct {
	Date            string
	TotalOrders     int
	UniqueCustomers int
	TotalAmount     float64
	Products        []ProductTotal
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
