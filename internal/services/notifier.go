package services

import "context"

// PaymentRequestNotification carries the data rendered into the payment-request email.
type PaymentRequestNotification struct {
	To           string
	CustomerName string
	OrderNumber  string
	Amount       float64
	PaymentLink  string
}

// InvoiceNotification carries the data rendered into the invoice email.
type InvoiceNotification struct {
	To            string
	CustomerName  string
	OrderNumber   string
	InvoiceNumber string
	Amount        float64
	InvoiceURL    string
}

// Notifier sends transactional customer emails. Implementations must treat
// delivery as best-effort; callers log failures and carry on.
type Notifier interface {
	SendPaymentRequest(ctx context.Context, msg PaymentRequestNotification) error
	SendInvoice(ctx context.Context, msg InvoiceNotification) error
}

// PushSender delivers order status updates to registered mobile devices.
type PushSender interface {
	SendOrderUpdate(ctx context.Context, tokens []string, orderNumber string, status OrderStatus) error
}
