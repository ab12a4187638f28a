package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/farmcart/api/internal/domain"
)

var testInvoiceClock = time.Date(2025, 3, 14, 18, 30, 0, 0, time.UTC)

func newTestInvoiceService(t *testing.T, invoices *stubInvoiceRepository, counters *stubCounterRepository, store *stubDocumentStore) InvoiceService {
	t.Helper()

	svc, err := NewInvoiceService(InvoiceServiceDeps{
		Invoices:    invoices,
		Counters:    counters,
		Store:       store,
		Clock:       fixedClock(testInvoiceClock),
		IDGenerator: sequentialIDs("inv"),
	})
	if err != nil {
		t.Fatalf("NewInvoiceService: %v", err)
	}
	return svc
}

func paidOrder() Order {
	return domain.Order{
		ID:          "ord_1",
		OrderNumber: "FV-1-001",
		TotalAmount: 250,
		Status:      domain.OrderStatusPaid,
		Items: []domain.OrderItem{
			{ProductID: "prd_tomato", ProductName: "Tomato", Unit: domain.UnitKilo, Quantity: 5, Price: 50, Total: 250},
		},
	}
}

func TestIssueForOrderDrawsSequentialNumbers(t *testing.T) {
	invoices := newStubInvoiceRepository()
	counters := newStubCounterRepository()
	store := newStubDocumentStore()
	svc := newTestInvoiceService(t, invoices, counters, store)

	first, err := svc.IssueForOrder(context.Background(), paidOrder())
	if err != nil {
		t.Fatalf("IssueForOrder: %v", err)
	}
	if first.InvoiceNumber != "INV-2025-00001" {
		t.Fatalf("unexpected invoice number %q", first.InvoiceNumber)
	}
	if first.Amount != 250 {
		t.Fatalf("expected amount 250, got %g", first.Amount)
	}
	if first.DocumentURL == "" {
		t.Fatal("expected stored document url")
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected 1 stored document, got %d", len(store.saved))
	}

	other := paidOrder()
	other.ID = "ord_2"
	second, err := svc.IssueForOrder(context.Background(), other)
	if err != nil {
		t.Fatalf("IssueForOrder: %v", err)
	}
	if second.InvoiceNumber != "INV-2025-00002" {
		t.Fatalf("unexpected second invoice number %q", second.InvoiceNumber)
	}
}

func TestIssueForOrderIsIdempotent(t *testing.T) {
	invoices := newStubInvoiceRepository()
	counters := newStubCounterRepository()
	svc := newTestInvoiceService(t, invoices, counters, newStubDocumentStore())

	first, err := svc.IssueForOrder(context.Background(), paidOrder())
	if err != nil {
		t.Fatalf("IssueForOrder: %v", err)
	}
	second, err := svc.IssueForOrder(context.Background(), paidOrder())
	if err != nil {
		t.Fatalf("IssueForOrder: %v", err)
	}

	if first.InvoiceNumber != second.InvoiceNumber {
		t.Fatalf("expected same invoice, got %q and %q", first.InvoiceNumber, second.InvoiceNumber)
	}
	if invoices.inserted != 1 {
		t.Fatalf("expected 1 insert, got %d", invoices.inserted)
	}
	if len(counters.calls) != 1 {
		t.Fatalf("expected 1 counter draw, got %d", len(counters.calls))
	}
}

func TestIssueForOrderSurvivesStoreFailure(t *testing.T) {
	invoices := newStubInvoiceRepository()
	store := newStubDocumentStore()
	store.err = errors.New("bucket unavailable")
	svc := newTestInvoiceService(t, invoices, newStubCounterRepository(), store)

	invoice, err := svc.IssueForOrder(context.Background(), paidOrder())
	if err != nil {
		t.Fatalf("IssueForOrder: %v", err)
	}
	if invoice.DocumentURL != "" {
		t.Fatalf("expected empty document url, got %q", invoice.DocumentURL)
	}
	if invoices.inserted != 1 {
		t.Fatal("invoice must still be persisted when storage fails")
	}
}

func TestGetByOrderID(t *testing.T) {
	invoices := newStubInvoiceRepository()
	svc := newTestInvoiceService(t, invoices, newStubCounterRepository(), newStubDocumentStore())

	if _, err := svc.GetByOrderID(context.Background(), "ord_missing"); !errors.Is(err, ErrInvoiceNotFound) {
		t.Fatalf("expected ErrInvoiceNotFound, got %v", err)
	}

	issued, err := svc.IssueForOrder(context.Background(), paidOrder())
	if err != nil {
		t.Fatalf("IssueForOrder: %v", err)
	}
	found, err := svc.GetByOrderID(context.Background(), "ord_1")
	if err != nil {
		t.Fatalf("GetByOrderID: %v", err)
	}
	if found.InvoiceNumber != issued.InvoiceNumber {
		t.Fatalf("expected %q, got %q", issued.InvoiceNumber, found.InvoiceNumber)
	}
}
