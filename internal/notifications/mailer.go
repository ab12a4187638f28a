// Package notifications delivers transactional email and device pushes for
// order lifecycle events.
package notifications

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/farmcart/api/internal/platform/config"
	"github.com/farmcart/api/internal/services"
)

const paymentRequestTemplate = `<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Payment request for order {{.OrderNumber}}</h2>
  <p>Hi {{.CustomerName}},</p>
  <p>Your order has been delivered. Please complete the payment of <strong>{{.Amount}}</strong>.</p>
  <p><a href="{{.PaymentLink}}" style="background: #2e7d32; color: #fff; padding: 10px 18px; text-decoration: none; border-radius: 4px;">Pay now</a></p>
  <p>Or open this link: {{.PaymentLink}}</p>
  <p>Thank you for shopping with us.</p>
</body>
</html>`

const invoiceTemplate = `<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Invoice {{.InvoiceNumber}} for order {{.OrderNumber}}</h2>
  <p>Hi {{.CustomerName}},</p>
  <p>We have received your payment of <strong>{{.Amount}}</strong>. Thank you!</p>
  {{if .InvoiceURL}}<p>Download your invoice: <a href="{{.InvoiceURL}}">{{.InvoiceNumber}}</a></p>{{end}}
  <p>We look forward to your next order.</p>
</body>
</html>`

// SendMailFunc abstracts smtp.SendMail for testing.
type SendMailFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// MailerDeps bundles collaborators required to construct the mailer.
type MailerDeps struct {
	Config   config.SMTPConfig
	SendMail SendMailFunc
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// Mailer sends payment-request and invoice emails over SMTP.
type Mailer struct {
	addr    string
	from    string
	auth    smtp.Auth
	send    SendMailFunc
	payment *template.Template
	invoice *template.Template
	amounts *message.Printer
	logger  func(context.Context, string, map[string]any)
}

// NewMailer constructs a Mailer from SMTP configuration.
func NewMailer(deps MailerDeps) (*Mailer, error) {
	cfg := deps.Config
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("notifications: smtp address is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("notifications: sender address is required")
	}

	payment, err := template.New("payment_request").Parse(paymentRequestTemplate)
	if err != nil {
		return nil, fmt.Errorf("notifications: parse payment template: %w", err)
	}
	invoice, err := template.New("invoice").Parse(invoiceTemplate)
	if err != nil {
		return nil, fmt.Errorf("notifications: parse invoice template: %w", err)
	}

	send := deps.SendMail
	if send == nil {
		send = smtp.SendMail
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	var auth smtp.Auth
	if cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.From, cfg.Password, cfg.Host)
	}

	return &Mailer{
		addr:    cfg.Addr,
		from:    cfg.From,
		auth:    auth,
		send:    send,
		payment: payment,
		invoice: invoice,
		amounts: message.NewPrinter(language.English),
		logger:  logger,
	}, nil
}

// SendPaymentRequest emails the payment link issued on delivery.
func (m *Mailer) SendPaymentRequest(ctx context.Context, msg services.PaymentRequestNotification) error {
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("notifications: recipient is required")
	}

	body, err := m.render(m.payment, map[string]any{
		"CustomerName": msg.CustomerName,
		"OrderNumber":  msg.OrderNumber,
		"Amount":       m.formatAmount(msg.Amount),
		"PaymentLink":  msg.PaymentLink,
	})
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Payment request for order %s", msg.OrderNumber)
	if err := m.deliver(msg.To, subject, body); err != nil {
		return fmt.Errorf("notifications: send payment request: %w", err)
	}

	m.logger(ctx, "notifications.payment_request.sent", map[string]any{
		"orderNumber": msg.OrderNumber,
	})
	return nil
}

// SendInvoice emails the invoice issued when payment is reconciled.
func (m *Mailer) SendInvoice(ctx context.Context, msg services.InvoiceNotification) error {
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("notifications: recipient is required")
	}

	body, err := m.render(m.invoice, map[string]any{
		"CustomerName":  msg.CustomerName,
		"OrderNumber":   msg.OrderNumber,
		"InvoiceNumber": msg.InvoiceNumber,
		"Amount":        m.formatAmount(msg.Amount),
		"InvoiceURL":    msg.InvoiceURL,
	})
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Invoice %s for order %s", msg.InvoiceNumber, msg.OrderNumber)
	if err := m.deliver(msg.To, subject, body); err != nil {
		return fmt.Errorf("notifications: send invoice: %w", err)
	}

	m.logger(ctx, "notifications.invoice.sent", map[string]any{
		"orderNumber":   msg.OrderNumber,
		"invoiceNumber": msg.InvoiceNumber,
	})
	return nil
}

func (m *Mailer) render(tmpl *template.Template, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("notifications: render %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func (m *Mailer) formatAmount(amount float64) string {
	return m.amounts.Sprintf("₹%.2f", amount)
}

func (m *Mailer) deliver(to, subject, body string) error {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	return m.send(m.addr, m.auth, m.from, []string{to}, msg.Bytes())
}

var _ services.Notifier = (*Mailer)(nil)
