package filesystem

import (
	"context"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"iconboard/core"
)

type fsAssetStore struct {
	basePath string
}

// NewAssetStore creates a filesystem-backed asset store. Uploaded blobs are
// served from /assets/ by the HTTP layer.
func NewAssetStore(basePath string) *fsAssetStore {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		log.Fatalf("failed to create asset directory: %v", err)
	}
	return &fsAssetStore{basePath: basePath}
}

func (s *fsAssetStore) Upload(ctx context.Context, data []byte, contentType string) (*core.StoredAsset, error) {
	name := ulid.Make().String()
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		name += exts[0]
	}

	path := filepath.Join(s.basePath, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		logrus.WithError(err).Error("Failed to write asset file")
		return nil, fmt.Errorf("failed to store asset: %w", err)
	}

	return &core.StoredAsset{URL: "/assets/" + name, Path: name}, nil
}

func (s *fsAssetStore) Delete(ctx context.Context, path string) error {
	if filepath.Base(path) != path || path == "" || path == "." || path == ".." {
		return fmt.Errorf("invalid asset path: must be a simple name")
	}
	if err := os.Remove(filepath.Join(s.basePath, path)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("asset with path %s not found", path)
		}
		return err
	}
	return nil
}
