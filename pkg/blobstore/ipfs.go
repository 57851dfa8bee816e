package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	shell "github.com/ipfs/go-ipfs-api"

	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
	httppkg "github.com/trigg3rX/labelmarket-backend/pkg/http"
	"github.com/trigg3rX/labelmarket-backend/pkg/logging"
)

const ipfsScheme = "ipfs://"

// IPFSStore stores blobs on an IPFS node through its HTTP API. Blob URLs use the
// ipfs://<cid> form.
type IPFSStore struct {
	shell    *shell.Shell
	logger   logging.Logger
	maxBytes int
}

var _ Store = (*IPFSStore)(nil)

func NewIPFSStore(apiURL string, maxBytes int, logger logging.Logger) (*IPFSStore, error) {
	if strings.TrimSpace(apiURL) == "" {
		return nil, fmt.Errorf("IPFS API URL is required")
	}
	httpClient, err := httppkg.NewHTTPClient(httppkg.DefaultHTTPRetryConfig(), logger)
	if err != nil {
		return nil, err
	}
	return &IPFSStore{
		shell:    shell.NewShellWithClient(apiURL, httpClient.GetClient()),
		logger:   logger,
		maxBytes: maxBytes,
	}, nil
}

func (s *IPFSStore) Store(ctx context.Context, data []byte, filename, contentType string) (*Blob, error) {
	if err := checkPayload(data, s.maxBytes); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cid, err := s.shell.Add(bytes.NewReader(data), shell.Pin(true))
	if err != nil {
		return nil, fmt.Errorf("%w: ipfs add: %v", pkgErrors.ErrBlobNetwork, err)
	}

	s.logger.Info("Stored blob on IPFS", "filename", filename, "cid", cid, "size", len(data))
	return &Blob{
		ID:          cid,
		URL:         ipfsScheme + cid,
		Filename:    filename,
		ContentType: contentType,
		Size:        len(data),
	}, nil
}

func (s *IPFSStore) Fetch(ctx context.Context, url string) ([]byte, error) {
	cid := strings.TrimPrefix(url, ipfsScheme)
	if cid == "" {
		return nil, &pkgErrors.ValidationError{Field: "url", Reason: "cannot be empty"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader, err := s.shell.Cat(cid)
	if err != nil {
		return nil, fmt.Errorf("%w: ipfs cat: %v", pkgErrors.ErrBlobNetwork, err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			s.logger.Warn("Failed to close IPFS reader", "error", err)
		}
	}()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read blob: %v", pkgErrors.ErrBlobNetwork, err)
	}
	return data, nil
}
