// Package qr renders payment links into inline data-URI QR images.
package qr

import (
	"encoding/base64"
	"errors"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const defaultSize = 256

// Encoder renders text into PNG QR codes embedded as data URIs.
type Encoder struct {
	size  int
	level qrcode.RecoveryLevel
}

// EncoderOption customises Encoder behaviour.
type EncoderOption func(*Encoder)

// WithSize overrides the rendered image size in pixels.
func WithSize(size int) EncoderOption {
	return func(e *Encoder) {
		if size > 0 {
			e.size = size
		}
	}
}

// WithRecoveryLevel overrides the error-correction level.
func WithRecoveryLevel(level qrcode.RecoveryLevel) EncoderOption {
	return func(e *Encoder) {
		e.level = level
	}
}

// NewEncoder constructs an Encoder with medium error correction by default.
func NewEncoder(opts ...EncoderOption) *Encoder {
	e := &Encoder{
		size:  defaultSize,
		level: qrcode.Medium,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// EncodeDataURL renders the text as a PNG QR code and returns it as a
// base64 data URI suitable for direct embedding in API responses.
func (e *Encoder) EncodeDataURL(text string) (string, error) {
	if e == nil {
		return "", errors.New("qr: encoder is nil")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("qr: text is required")
	}

	png, err := qrcode.Encode(text, e.level, e.size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
