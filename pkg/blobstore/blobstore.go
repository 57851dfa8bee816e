package blobstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
	httppkg "github.com/trigg3rX/labelmarket-backend/pkg/http"
)

// Store is the blob storage capability used for datasets and label results.
type Store interface {
	// Store uploads data and returns its id and public URL
	Store(ctx context.Context, data []byte, filename, contentType string) (*Blob, error)

	// Fetch downloads the blob behind url
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Blob struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

const DefaultMaxBytes = 10 << 20

// classifyStatus maps a blob service response code onto the blob error sentinels.
func classifyStatus(status int, body string) error {
	switch {
	case status == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %s", pkgErrors.ErrPayloadTooLarge, body)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", pkgErrors.ErrBlobAccessDenied, status)
	case status >= http.StatusInternalServerError || status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP %d: %s", pkgErrors.ErrBlobServer, status, body)
	case status == http.StatusNotFound:
		return fmt.Errorf("blob: %w", pkgErrors.ErrNotFound)
	default:
		return fmt.Errorf("%w: unexpected HTTP %d: %s", pkgErrors.ErrBlobServer, status, body)
	}
}

// classifyTransportError maps a failed request (after retries) onto the blob sentinels.
func classifyTransportError(err error) error {
	var httpErr *httppkg.HTTPError
	if errors.As(err, &httpErr) {
		return classifyStatus(httpErr.StatusCode, httpErr.Message)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", pkgErrors.ErrBlobNetwork, err)
}

func checkPayload(data []byte, maxBytes int) error {
	if len(data) == 0 {
		return &pkgErrors.ValidationError{Field: "blob", Reason: "data cannot be empty"}
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", pkgErrors.ErrPayloadTooLarge, len(data), maxBytes)
	}
	return nil
}
