package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/farmcart/api/internal/platform/auth"
)

const invoiceDownloadExpiry = 5 * time.Minute

// DocumentSigner mints short-lived signed download URLs for documents stored
// in the assets bucket.
type DocumentSigner struct {
	client *Client
	bucket string
}

// NewDocumentSigner binds a signed URL client to a bucket.
func NewDocumentSigner(client *Client, bucket string) (*DocumentSigner, error) {
	if client == nil {
		return nil, errNoSigner
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	return &DocumentSigner{client: client, bucket: bucket}, nil
}

// InvoiceDownloadURL signs a download link for the invoice document. The
// identity must own the order or hold the admin role.
func (s *DocumentSigner) InvoiceDownloadURL(ctx context.Context, invoiceNumber string, issuedAt time.Time, identity *auth.Identity, ownerID string) (string, time.Time, error) {
	if s == nil || s.client == nil {
		return "", time.Time{}, errNoSigner
	}
	invoiceNumber = strings.TrimSpace(invoiceNumber)
	if invoiceNumber == "" {
		return "", time.Time{}, errors.New("storage: invoice number is required")
	}
	if issuedAt.IsZero() {
		return "", time.Time{}, errors.New("storage: invoice issue date is required")
	}

	object, err := BuildObjectPath(PurposeInvoice, PathParams{
		IssuedYear:    issuedAt.UTC().Format("2006"),
		InvoiceNumber: invoiceNumber,
	})
	if err != nil {
		return "", time.Time{}, err
	}

	result, err := s.client.SignedURL(ctx, s.bucket, object, SignedURLOptions{
		Download: &DownloadOptions{
			ExpiresIn:   invoiceDownloadExpiry,
			Disposition: fmt.Sprintf("attachment; filename=%q", invoiceNumber+".xlsx"),
			OwnerID:     ownerID,
			Identity:    identity,
		},
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return result.URL, result.ExpiresAt, nil
}
