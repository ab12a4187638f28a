package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/farmcart/api/internal/domain"
	"github.com/farmcart/api/internal/payments"
)

var testPaymentClock = time.Date(2025, 3, 14, 18, 30, 0, 0, time.UTC)

type paymentFixture struct {
	orders   *stubOrderRepository
	users    *stubUserRepository
	gateway  *stubGateway
	invoices *stubInvoiceRepository
	counters *stubCounterRepository
	notifier *stubNotifier
	events   *stubEventPublisher
	svc      PaymentService
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()

	f := &paymentFixture{
		orders: newStubOrderRepository(domain.Order{
			ID:           "ord_1",
			OrderNumber:  "FV-1-001",
			CustomerID:   "usr_customer",
			CustomerName: "Anita",
			TotalAmount:  250,
			Status:       domain.OrderStatusDelivered,
		}),
		users: newStubUserRepository(domain.User{
			ID:    "usr_customer",
			Name:  "Anita",
			Email: "anita@example.com",
			Role:  domain.RoleCustomer,
		}),
		gateway:  &stubGateway{},
		invoices: newStubInvoiceRepository(),
		counters: newStubCounterRepository(),
		notifier: &stubNotifier{},
		events:   &stubEventPublisher{},
	}

	invoiceSvc, err := NewInvoiceService(InvoiceServiceDeps{
		Invoices:    f.invoices,
		Counters:    f.counters,
		Store:       newStubDocumentStore(),
		Clock:       fixedClock(testPaymentClock),
		IDGenerator: sequentialIDs("inv"),
	})
	if err != nil {
		t.Fatalf("NewInvoiceService: %v", err)
	}

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:   f.orders,
		Users:    f.users,
		Gateway:  f.gateway,
		Invoices: invoiceSvc,
		Notifier: f.notifier,
		Events:   f.events,
		Clock:    fixedClock(testPaymentClock),
		Async:    syncAsync,
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}
	f.svc = svc
	return f
}

func TestConfirmCallbackMarksPaid(t *testing.T) {
	f := newPaymentFixture(t)

	order, err := f.svc.ConfirmCallback(context.Background(), PaymentCallbackCommand{
		OrderID:    "ord_1",
		PaymentID:  "pay_9",
		LinkStatus: "paid",
	})
	if err != nil {
		t.Fatalf("ConfirmCallback: %v", err)
	}

	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("expected paid, got %s", order.Status)
	}
	if order.PaidAt == nil || !order.PaidAt.Equal(testPaymentClock) {
		t.Fatalf("expected paidAt %v, got %v", testPaymentClock, order.PaidAt)
	}
	if f.invoices.inserted != 1 {
		t.Fatalf("expected 1 invoice, got %d", f.invoices.inserted)
	}
	if got := f.notifier.invoiceCount(); got != 1 {
		t.Fatalf("expected 1 invoice email, got %d", got)
	}
	msg := f.notifier.invoices[0]
	if msg.To != "anita@example.com" || msg.InvoiceNumber != "INV-2025-00001" {
		t.Fatalf("unexpected invoice email %+v", msg)
	}
	if len(f.events.events) != 1 || f.events.events[0].Type != "order.paid" {
		t.Fatalf("expected one order.paid event, got %+v", f.events.events)
	}
}

func TestConfirmCallbackRecordsInvoiceURLOnOrder(t *testing.T) {
	f := newPaymentFixture(t)

	order, err := f.svc.ConfirmCallback(context.Background(), PaymentCallbackCommand{
		OrderID:    "ord_1",
		PaymentID:  "pay_9",
		LinkStatus: "paid",
	})
	if err != nil {
		t.Fatalf("ConfirmCallback: %v", err)
	}

	want := "https://storage.example/invoices/2025/INV-2025-00001.xlsx"
	if order.InvoiceURL != want {
		t.Fatalf("expected invoice url %q on returned order, got %q", want, order.InvoiceURL)
	}
	if stored := f.orders.orders["ord_1"]; stored.InvoiceURL != want {
		t.Fatalf("expected invoice url persisted on order, got %q", stored.InvoiceURL)
	}
	if stored := f.orders.orders["ord_1"]; stored.Status != domain.OrderStatusPaid {
		t.Fatalf("persisting invoice url must keep order paid, got %s", stored.Status)
	}
}

func TestConfirmCallbackAlreadyPaidIsNoop(t *testing.T) {
	f := newPaymentFixture(t)
	paidAt := testPaymentClock.Add(-time.Hour)
	f.orders.orders["ord_1"] = domain.Order{
		ID:     "ord_1",
		Status: domain.OrderStatusPaid,
		PaidAt: &paidAt,
	}

	order, err := f.svc.ConfirmCallback(context.Background(), PaymentCallbackCommand{
		OrderID:    "ord_1",
		PaymentID:  "pay_9",
		LinkStatus: "paid",
	})
	if err != nil {
		t.Fatalf("ConfirmCallback: %v", err)
	}
	if !order.PaidAt.Equal(paidAt) {
		t.Fatalf("expected original paidAt preserved, got %v", order.PaidAt)
	}
	if f.invoices.inserted != 0 {
		t.Fatal("already-paid callback must not issue an invoice")
	}
	if got := f.notifier.invoiceCount(); got != 0 {
		t.Fatalf("already-paid callback must not email, got %d", got)
	}
}

func TestConfirmCallbackRequiresCompletionSignal(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.svc.ConfirmCallback(context.Background(), PaymentCallbackCommand{
		OrderID:    "ord_1",
		LinkStatus: "cancelled",
	})
	if !errors.Is(err, ErrPaymentIncomplete) {
		t.Fatalf("expected ErrPaymentIncomplete, got %v", err)
	}
	if f.orders.orders["ord_1"].Status != domain.OrderStatusDelivered {
		t.Fatal("incomplete callback must not change order status")
	}
}

func TestConfirmCallbackSignatureMismatchDoesNotBlock(t *testing.T) {
	f := newPaymentFixture(t)
	f.gateway.verifyErr = payments.ErrSignatureMismatch

	order, err := f.svc.ConfirmCallback(context.Background(), PaymentCallbackCommand{
		OrderID:    "ord_1",
		PaymentID:  "pay_9",
		LinkStatus: "paid",
		Signature:  "deadbeef",
	})
	if err != nil {
		t.Fatalf("ConfirmCallback: %v", err)
	}
	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("expected paid despite signature mismatch, got %s", order.Status)
	}
	if f.gateway.verifyCalls != 1 {
		t.Fatalf("expected signature verification attempt, got %d", f.gateway.verifyCalls)
	}
}

func TestHandleWebhookIgnoresOtherEvents(t *testing.T) {
	f := newPaymentFixture(t)
	f.gateway.parseFn = func([]byte, string) (payments.WebhookEvent, error) {
		return payments.WebhookEvent{Type: "payment_link.expired", LinkID: "plink_1"}, nil
	}

	if err := f.svc.HandleWebhook(context.Background(), PaymentWebhookCommand{Payload: []byte("{}")}); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if f.orders.orders["ord_1"].Status != domain.OrderStatusDelivered {
		t.Fatal("expired webhook must not change order status")
	}
}

func TestHandleWebhookMarksPaid(t *testing.T) {
	f := newPaymentFixture(t)
	f.gateway.parseFn = func([]byte, string) (payments.WebhookEvent, error) {
		return payments.WebhookEvent{
			Type:        "payment_link.paid",
			ReferenceID: "ord_1",
			PaymentID:   "pay_9",
		}, nil
	}

	if err := f.svc.HandleWebhook(context.Background(), PaymentWebhookCommand{Payload: []byte("{}")}); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if f.orders.orders["ord_1"].Status != domain.OrderStatusPaid {
		t.Fatalf("expected paid, got %s", f.orders.orders["ord_1"].Status)
	}
	if got := f.notifier.invoiceCount(); got != 1 {
		t.Fatalf("expected 1 invoice email, got %d", got)
	}
}

func TestHandleWebhookFallsBackToLinkID(t *testing.T) {
	f := newPaymentFixture(t)
	f.orders.orders["plink_1"] = domain.Order{
		ID:         "plink_1",
		CustomerID: "usr_customer",
		Status:     domain.OrderStatusDelivered,
	}
	f.gateway.parseFn = func([]byte, string) (payments.WebhookEvent, error) {
		return payments.WebhookEvent{Type: "payment_link.paid", LinkID: "plink_1"}, nil
	}

	if err := f.svc.HandleWebhook(context.Background(), PaymentWebhookCommand{Payload: []byte("{}")}); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if f.orders.orders["plink_1"].Status != domain.OrderStatusPaid {
		t.Fatalf("expected paid, got %s", f.orders.orders["plink_1"].Status)
	}
}

func TestCallbackAndWebhookSettleExactlyOnce(t *testing.T) {
	f := newPaymentFixture(t)
	f.gateway.parseFn = func([]byte, string) (payments.WebhookEvent, error) {
		return payments.WebhookEvent{
			Type:        "payment_link.paid",
			ReferenceID: "ord_1",
			PaymentID:   "pay_9",
		}, nil
	}

	if _, err := f.svc.ConfirmCallback(context.Background(), PaymentCallbackCommand{
		OrderID:    "ord_1",
		PaymentID:  "pay_9",
		LinkStatus: "paid",
	}); err != nil {
		t.Fatalf("ConfirmCallback: %v", err)
	}
	if err := f.svc.HandleWebhook(context.Background(), PaymentWebhookCommand{Payload: []byte("{}")}); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	if f.invoices.inserted != 1 {
		t.Fatalf("expected exactly 1 invoice, got %d", f.invoices.inserted)
	}
	if got := f.notifier.invoiceCount(); got != 1 {
		t.Fatalf("expected exactly 1 invoice email, got %d", got)
	}
	paidEvents := 0
	for _, event := range f.events.events {
		if event.Type == "order.paid" {
			paidEvents++
		}
	}
	if paidEvents != 1 {
		t.Fatalf("expected exactly 1 order.paid event, got %d", paidEvents)
	}
}
