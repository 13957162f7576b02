package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"

	"iconboard/core"
)

// assetStore keeps uploaded blobs in memory. Useful for tests and for
// running without any blob backend configured.
type assetStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewAssetStore creates a new in-memory asset store.
func NewAssetStore() *assetStore {
	return &assetStore{blobs: make(map[string][]byte)}
}

func (s *assetStore) Upload(ctx context.Context, data []byte, contentType string) (*core.StoredAsset, error) {
	path := ulid.Make().String()

	s.mu.Lock()
	s.blobs[path] = append([]byte(nil), data...)
	s.mu.Unlock()

	return &core.StoredAsset{URL: "/assets/" + path, Path: path}, nil
}

func (s *assetStore) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[path]; !ok {
		return fmt.Errorf("asset with path %s not found", path)
	}
	delete(s.blobs, path)
	return nil
}
