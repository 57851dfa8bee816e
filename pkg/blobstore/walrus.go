package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
	httppkg "github.com/trigg3rX/labelmarket-backend/pkg/http"
	"github.com/trigg3rX/labelmarket-backend/pkg/logging"
)

// storeResponse covers both publisher answers: a freshly certified blob, or one that
// was already stored with the same content.
type storeResponse struct {
	NewlyCreated *struct {
		BlobObject struct {
			BlobID string `json:"blobId"`
		} `json:"blobObject"`
	} `json:"newlyCreated"`
	AlreadyCertified *struct {
		BlobID string `json:"blobId"`
	} `json:"alreadyCertified"`
}

func (r *storeResponse) blobID() string {
	switch {
	case r.NewlyCreated != nil:
		return r.NewlyCreated.BlobObject.BlobID
	case r.AlreadyCertified != nil:
		return r.AlreadyCertified.BlobID
	}
	return ""
}

// WalrusStore stores blobs through a publisher and reads them back through an aggregator.
type WalrusStore struct {
	config     *Config
	logger     logging.Logger
	httpClient *httppkg.HTTPClient
}

var _ Store = (*WalrusStore)(nil)

func NewWalrusStore(config *Config, logger logging.Logger) (*WalrusStore, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	httpClient, err := httppkg.NewHTTPClient(httppkg.DefaultHTTPRetryConfig(), logger)
	if err != nil {
		return nil, err
	}

	return &WalrusStore{
		config:     config,
		logger:     logger,
		httpClient: httpClient,
	}, nil
}

// Store uploads are content addressed, so retrying a failed PUT cannot duplicate data.
func (s *WalrusStore) Store(ctx context.Context, data []byte, filename, contentType string) (*Blob, error) {
	if err := checkPayload(data, s.config.MaxBytes); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/blobs?epochs=%d", s.config.PublisherURL, s.config.Epochs)
	resp, err := s.httpClient.Put(ctx, url, "application/octet-stream", bytes.NewReader(data))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			s.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", pkgErrors.ErrBlobNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, string(body))
	}

	var storeResp storeResponse
	if err := json.Unmarshal(body, &storeResp); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal publisher response: %v", pkgErrors.ErrBlobServer, err)
	}
	blobID := storeResp.blobID()
	if blobID == "" {
		return nil, fmt.Errorf("%w: received empty blob id", pkgErrors.ErrBlobServer)
	}

	s.logger.Info("Stored blob", "filename", filename, "blob_id", blobID, "size", len(data))
	return &Blob{
		ID:          blobID,
		URL:         s.BlobURL(blobID),
		Filename:    filename,
		ContentType: contentType,
		Size:        len(data),
	}, nil
}

func (s *WalrusStore) BlobURL(blobID string) string {
	return fmt.Sprintf("%s/v1/blobs/%s", s.config.AggregatorURL, blobID)
}

// Fetch accepts either a full aggregator URL or a bare blob id.
func (s *WalrusStore) Fetch(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, &pkgErrors.ValidationError{Field: "url", Reason: "cannot be empty"}
	}
	if !strings.Contains(url, "://") {
		url = s.BlobURL(url)
	}

	resp, err := s.httpClient.Get(ctx, url)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			s.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, classifyStatus(resp.StatusCode, string(body))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read blob: %v", pkgErrors.ErrBlobNetwork, err)
	}
	return data, nil
}

func (s *WalrusStore) Close() {
	s.httpClient.Close()
}
