package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	domain "github.com/farmcart/api/internal/domain"
	pfirestore "github.com/farmcart/api/internal/platform/firestore"
	"github.com/farmcart/api/internal/repositories"
)

const invoiceCollection = "invoices"

type invoiceDocument struct {
	OrderID       string    `firestore:"orderId"`
	InvoiceNumber string    `firestore:"invoiceNumber"`
	Amount        float64   `firestore:"amount"`
	IssuedAt      time.Time `firestore:"issuedAt"`
	DocumentURL   string    `firestore:"documentUrl,omitempty"`
}

// InvoiceRepository persists issued invoices in Firestore.
type InvoiceRepository struct {
	base *pfirestore.BaseRepository[invoiceDocument]
}

// NewInvoiceRepository constructs a Firestore-backed invoice repository.
func NewInvoiceRepository(provider *pfirestore.Provider) (*InvoiceRepository, error) {
	if provider == nil {
		return nil, errors.New("invoice repository requires firestore provider")
	}

	base := pfirestore.NewBaseRepository[invoiceDocument](provider, invoiceCollection, nil, nil)
	return &InvoiceRepository{base: base}, nil
}

// Insert creates the invoice document.
func (r *InvoiceRepository) Insert(ctx context.Context, invoice domain.Invoice) error {
	if r == nil || r.base == nil {
		return errors.New("invoice repository not initialised")
	}
	if strings.TrimSpace(invoice.ID) == "" {
		return errors.New("invoice id is required")
	}
	if strings.TrimSpace(invoice.OrderID) == "" {
		return errors.New("invoice order id is required")
	}

	doc := invoiceDocument{
		OrderID:       strings.TrimSpace(invoice.OrderID),
		InvoiceNumber: strings.TrimSpace(invoice.InvoiceNumber),
		Amount:        invoice.Amount,
		IssuedAt:      invoice.IssuedAt.UTC(),
		DocumentURL:   strings.TrimSpace(invoice.DocumentURL),
	}
	_, err := r.base.Set(ctx, invoice.ID, doc)
	return err
}

// FindByOrderID loads the invoice issued for the order.
func (r *InvoiceRepository) FindByOrderID(ctx context.Context, orderID string) (domain.Invoice, error) {
	if r == nil || r.base == nil {
		return domain.Invoice{}, errors.New("invoice repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Invoice{}, errors.New("order id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", id).Limit(1)
	})
	if err != nil {
		return domain.Invoice{}, err
	}
	if len(docs) == 0 {
		return domain.Invoice{}, pfirestore.WrapError("invoices.findbyorder", notFoundErr("no invoice for order "+id))
	}

	doc := docs[0]
	return domain.Invoice{
		ID:            doc.ID,
		OrderID:       doc.Data.OrderID,
		InvoiceNumber: doc.Data.InvoiceNumber,
		Amount:        doc.Data.Amount,
		IssuedAt:      doc.Data.IssuedAt,
		DocumentURL:   doc.Data.DocumentURL,
	}, nil
}

var _ repositories.InvoiceRepository = (*InvoiceRepository)(nil)
