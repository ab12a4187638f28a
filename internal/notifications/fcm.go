package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	domain "github.com/farmcart/api/internal/domain"
	"github.com/farmcart/api/internal/platform/config"
	"github.com/farmcart/api/internal/services"
)

// messageSender abstracts the FCM multicast API for testing.
type messageSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// PushSenderDeps bundles collaborators required to construct the push sender.
type PushSenderDeps struct {
	Client messageSender
	Logger func(ctx context.Context, event string, fields map[string]any)
}

// PushSender delivers order status updates to registered devices via FCM.
type PushSender struct {
	client messageSender
	logger func(context.Context, string, map[string]any)
}

// NewPushSender wires an FCM messaging client into a PushSender.
func NewPushSender(deps PushSenderDeps) (*PushSender, error) {
	if deps.Client == nil {
		return nil, errors.New("notifications: messaging client is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &PushSender{
		client: deps.Client,
		logger: logger,
	}, nil
}

// NewMessagingClient initialises the Firebase Admin SDK messaging client.
func NewMessagingClient(ctx context.Context, cfg config.FirebaseConfig) (*messaging.Client, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("notifications: firebase project id is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("notifications: init firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("notifications: init messaging client: %w", err)
	}
	return client, nil
}

var statusHeadlines = map[domain.OrderStatus]string{
	domain.OrderStatusConfirmed:      "Order confirmed",
	domain.OrderStatusOutForDelivery: "Order out for delivery",
	domain.OrderStatusDelivered:      "Order delivered",
	domain.OrderStatusPaid:           "Payment received",
	domain.OrderStatusCancelled:      "Order cancelled",
}

// SendOrderUpdate notifies every registered device about the order status change.
func (p *PushSender) SendOrderUpdate(ctx context.Context, tokens []string, orderNumber string, status domain.OrderStatus) error {
	if p == nil || p.client == nil {
		return errors.New("notifications: push sender is not configured")
	}

	cleaned := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if trimmed := strings.TrimSpace(token); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		return nil
	}

	title := statusHeadlines[status]
	if title == "" {
		title = "Order update"
	}

	response, err := p.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens: cleaned,
		Notification: &messaging.Notification{
			Title: title,
			Body:  fmt.Sprintf("Order %s is now %s.", orderNumber, strings.ReplaceAll(string(status), "_", " ")),
		},
		Data: map[string]string{
			"orderNumber": orderNumber,
			"status":      string(status),
		},
	})
	if err != nil {
		return fmt.Errorf("notifications: send push: %w", err)
	}

	if response.FailureCount > 0 {
		p.logger(ctx, "notifications.push.partial_failure", map[string]any{
			"orderNumber": orderNumber,
			"failures":    response.FailureCount,
			"successes":   response.SuccessCount,
		})
	}
	return nil
}

var _ services.PushSender = (*PushSender)(nil)
