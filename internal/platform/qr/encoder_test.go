package qr

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestEncodeDataURL(t *testing.T) {
	encoder := NewEncoder(WithSize(128))

	dataURL, err := encoder.EncodeDataURL("https://pay.example/ord_1")
	if err != nil {
		t.Fatalf("EncodeDataURL: %v", err)
	}
	if !strings.HasPrefix(dataURL, "data:image/png;base64,") {
		t.Fatalf("unexpected prefix in %q", dataURL[:32])
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, "data:image/png;base64,"))
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(raw) < 8 || string(raw[1:4]) != "PNG" {
		t.Fatal("expected a PNG payload")
	}
}

func TestEncodeDataURLRequiresText(t *testing.T) {
	encoder := NewEncoder()

	if _, err := encoder.EncodeDataURL("   "); err == nil {
		t.Fatal("expected error for empty text")
	}
}
