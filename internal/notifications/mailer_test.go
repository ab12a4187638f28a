package notifications

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/farmcart/api/internal/platform/config"
	"github.com/farmcart/api/internal/services"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  []byte
}

func newTestMailer(t *testing.T, sent *[]sentMail) *Mailer {
	t.Helper()

	mailer, err := NewMailer(MailerDeps{
		Config: config.SMTPConfig{
			Addr: "smtp.example.com:587",
			Host: "smtp.example.com",
			From: "orders@example.com",
		},
		SendMail: func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
			*sent = append(*sent, sentMail{addr: addr, from: from, to: to, msg: msg})
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewMailer: %v", err)
	}
	return mailer
}

func TestSendPaymentRequest(t *testing.T) {
	var sent []sentMail
	mailer := newTestMailer(t, &sent)

	err := mailer.SendPaymentRequest(context.Background(), services.PaymentRequestNotification{
		To:           "anita@example.com",
		CustomerName: "Anita",
		OrderNumber:  "FV-1-001",
		Amount:       1250.5,
		PaymentLink:  "https://pay.example/ord_1",
	})
	if err != nil {
		t.Fatalf("SendPaymentRequest: %v", err)
	}

	if len(sent) != 1 {
		t.Fatalf("expected 1 mail, got %d", len(sent))
	}
	mail := sent[0]
	if mail.to[0] != "anita@example.com" {
		t.Fatalf("unexpected recipient %v", mail.to)
	}
	body := string(mail.msg)
	if !strings.Contains(body, "Subject: Payment request for order FV-1-001") {
		t.Fatal("missing subject line")
	}
	if !strings.Contains(body, "https://pay.example/ord_1") {
		t.Fatal("missing payment link")
	}
	if !strings.Contains(body, "₹1,250.50") {
		t.Fatalf("missing formatted amount in body: %s", body)
	}
}

func TestSendInvoice(t *testing.T) {
	var sent []sentMail
	mailer := newTestMailer(t, &sent)

	err := mailer.SendInvoice(context.Background(), services.InvoiceNotification{
		To:            "anita@example.com",
		CustomerName:  "Anita",
		OrderNumber:   "FV-1-001",
		InvoiceNumber: "INV-2025-00001",
		Amount:        250,
		InvoiceURL:    "https://storage.example/invoices/2025/INV-2025-00001.xlsx",
	})
	if err != nil {
		t.Fatalf("SendInvoice: %v", err)
	}

	body := string(sent[0].msg)
	if !strings.Contains(body, "Subject: Invoice INV-2025-00001 for order FV-1-001") {
		t.Fatal("missing subject line")
	}
	if !strings.Contains(body, "https://storage.example/invoices/2025/INV-2025-00001.xlsx") {
		t.Fatal("missing invoice link")
	}
}

func TestSendPaymentRequestRequiresRecipient(t *testing.T) {
	var sent []sentMail
	mailer := newTestMailer(t, &sent)

	if err := mailer.SendPaymentRequest(context.Background(), services.PaymentRequestNotification{}); err == nil {
		t.Fatal("expected error for missing recipient")
	}
	if len(sent) != 0 {
		t.Fatal("no mail should be sent without a recipient")
	}
}
