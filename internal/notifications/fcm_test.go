package notifications

import (
	"context"
	"testing"

	"firebase.google.com/go/v4/messaging"

	domain "github.com/farmcart/api/internal/domain"
)

type stubMessenger struct {
	messages []*messaging.MulticastMessage
	response *messaging.BatchResponse
	err      error
}

func (s *stubMessenger) SendEachForMulticast(_ context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	s.messages = append(s.messages, message)
	if s.err != nil {
		return nil, s.err
	}
	if s.response != nil {
		return s.response, nil
	}
	return &messaging.BatchResponse{SuccessCount: len(message.Tokens)}, nil
}

func TestSendOrderUpdate(t *testing.T) {
	messenger := &stubMessenger{}
	sender, err := NewPushSender(PushSenderDeps{Client: messenger})
	if err != nil {
		t.Fatalf("NewPushSender: %v", err)
	}

	err = sender.SendOrderUpdate(context.Background(), []string{"tok-1", " ", "tok-2"}, "FV-1-001", domain.OrderStatusOutForDelivery)
	if err != nil {
		t.Fatalf("SendOrderUpdate: %v", err)
	}

	if len(messenger.messages) != 1 {
		t.Fatalf("expected 1 multicast, got %d", len(messenger.messages))
	}
	msg := messenger.messages[0]
	if len(msg.Tokens) != 2 {
		t.Fatalf("expected blank tokens filtered, got %v", msg.Tokens)
	}
	if msg.Notification.Title != "Order out for delivery" {
		t.Fatalf("unexpected title %q", msg.Notification.Title)
	}
	if msg.Data["orderNumber"] != "FV-1-001" {
		t.Fatalf("unexpected data %v", msg.Data)
	}
}

func TestSendOrderUpdateSkipsWithoutTokens(t *testing.T) {
	messenger := &stubMessenger{}
	sender, err := NewPushSender(PushSenderDeps{Client: messenger})
	if err != nil {
		t.Fatalf("NewPushSender: %v", err)
	}

	if err := sender.SendOrderUpdate(context.Background(), nil, "FV-1-001", domain.OrderStatusConfirmed); err != nil {
		t.Fatalf("SendOrderUpdate: %v", err)
	}
	if len(messenger.messages) != 0 {
		t.Fatal("expected no multicast without tokens")
	}
}
