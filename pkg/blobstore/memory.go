package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
)

// MemoryStore keeps blobs in process, addressed by content hash.
type MemoryStore struct {
	mu       sync.RWMutex
	blobs    map[string][]byte
	maxBytes int

	// FailWith, when set, is returned by every Store call.
	FailWith error
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(maxBytes int) *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte), maxBytes: maxBytes}
}

func (m *MemoryStore) Store(ctx context.Context, data []byte, filename, contentType string) (*Blob, error) {
	if err := checkPayload(data, m.maxBytes); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}

	sum := sha256.Sum256(data)
	id := hex.EncodeToString(sum[:16])
	m.blobs[id] = append([]byte(nil), data...)
	return &Blob{
		ID:          id,
		URL:         "mem://" + id,
		Filename:    filename,
		ContentType: contentType,
		Size:        len(data),
	}, nil
}

func (m *MemoryStore) Fetch(ctx context.Context, url string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id := strings.TrimPrefix(url, "mem://")
	data, ok := m.blobs[id]
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", id, pkgErrors.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
