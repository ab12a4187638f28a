package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/xuri/excelize/v2"

	"github.com/farmcart/api/internal/repositories"
)

// ErrInvoiceNotFound indicates no invoice has been issued for the order.
var ErrInvoiceNotFound = errors.New("invoice: not found")

const invoiceIDPrefix = "inv_"

// DocumentStore persists rendered documents and returns a stable download URL.
type DocumentStore interface {
	Save(ctx context.Context, objectName, contentType string, data []byte) (string, error)
}

// InvoiceServiceDeps bundles collaborators required to construct the invoice service.
type InvoiceServiceDeps struct {
	Invoices    repositories.InvoiceRepository
	Counters    repositories.CounterRepository
	Store       DocumentStore
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type invoiceService struct {
	invoices repositories.InvoiceRepository
	counters repositories.CounterRepository
	store    DocumentStore
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewInvoiceService wires dependencies into a concrete InvoiceService implementation.
func NewInvoiceService(deps InvoiceServiceDeps) (InvoiceService, error) {
	if deps.Invoices == nil {
		return nil, errors.New("invoice service: invoice repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("invoice service: counter repository is required")
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

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &invoiceService{
		invoices: deps.Invoices,
		counters: deps.Counters,
		store:    deps.Store,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// IssueForOrder returns the existing invoice when one has already been issued,
// otherwise draws the next sequential number and persists a new one.
func (s *invoiceService) IssueForOrder(ctx context.Context, order Order) (Invoice, error) {
	if strings.TrimSpace(order.ID) == "" {
		return Invoice{}, errors.New("invoice service: order id is required")
	}

	existing, err := s.invoices.FindByOrderID(ctx, order.ID)
	if err == nil {
		return existing, nil
	}
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		return Invoice{}, err
	}

	now := s.clock()
	seq, err := s.counters.Next(ctx, fmt.Sprintf("invoices:%04d", now.Year()), 1)
	if err != nil {
		return Invoice{}, fmt.Errorf("invoice: draw sequence: %w", err)
	}

	invoice := Invoice{
		ID:            invoiceIDPrefix + s.newID(),
		OrderID:       order.ID,
		InvoiceNumber: fmt.Sprintf("INV-%04d-%05d", now.Year(), seq),
		Amount:        order.TotalAmount,
		IssuedAt:      now,
	}

	// Document rendering is best-effort: a storage outage must not block
	// marking the order paid.
	if s.store != nil {
		if url, err := s.renderAndStore(ctx, invoice, order); err != nil {
			s.logger(ctx, "invoice.document.store_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		} else {
			invoice.DocumentURL = url
		}
	}

	if err := s.invoices.Insert(ctx, invoice); err != nil {
		return Invoice{}, err
	}

	s.logger(ctx, "invoice.issued", map[string]any{
		"orderId":       order.ID,
		"invoiceNumber": invoice.InvoiceNumber,
	})
	return invoice, nil
}

func (s *invoiceService) GetByOrderID(ctx context.Context, orderID string) (Invoice, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return Invoice{}, errors.New("invoice service: order id is required")
	}

	invoice, err := s.invoices.FindByOrderID(ctx, id)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Invoice{}, fmt.Errorf("%w: order %s", ErrInvoiceNotFound, id)
		}
		return Invoice{}, err
	}
	return invoice, nil
}

func (s *invoiceService) renderAndStore(ctx context.Context, invoice Invoice, order Order) (string, error) {
	data, err := renderInvoiceSheet(invoice, order)
	if err != nil {
		return "", err
	}
	objectName := fmt.Sprintf("invoices/%s/%s.xlsx", invoice.IssuedAt.Format("2006"), invoice.InvoiceNumber)
	return s.store.Save(ctx, objectName, exportContentType, data)
}

func renderInvoiceSheet(invoice Invoice, order Order) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	const sheet = "Invoice"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	rows := [][]any{
		{"Invoice Number", invoice.InvoiceNumber},
		{"Order Number", order.OrderNumber},
		{"Customer", order.CustomerName},
		{"Mobile", order.CustomerMobile},
		{"Delivery Date", order.DeliveryDate},
		{"Issued At", invoice.IssuedAt.Format("2006-01-02 15:04")},
		{},
		{"Product", "Quantity", "Unit", "Price", "Total"},
	}
	for _, item := range order.Items {
		rows = append(rows, []any{item.ProductName, item.Quantity, string(item.Unit), item.Price, item.Total})
	}
	rows = append(rows, []any{}, []any{"Total Amount", invoice.Amount})

	for r, row := range rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
