// Package assets decides where image payloads live: small ones are inlined
// into the object record as data URIs, large ones are uploaded to the
// configured asset store and referenced by URL.
package assets

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"iconboard/core"
)

// InlineThreshold is the payload size above which assets are uploaded
// instead of inlined.
const InlineThreshold = 100 * 1024

// Service routes asset payloads by size.
type Service struct {
	store core.AssetStore
}

// NewService creates a Service backed by store.
func NewService(store core.AssetStore) *Service {
	return &Service{store: store}
}

// Store returns a source string for data: a data URI when the payload is at
// or below InlineThreshold, otherwise the URL of the uploaded blob. The
// returned path is empty for inlined assets.
func (s *Service) Store(ctx context.Context, data []byte, contentType string) (src string, path string, err error) {
	if len(data) <= InlineThreshold {
		return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data)), "", nil
	}

	asset, err := s.store.Upload(ctx, data, contentType)
	if err != nil {
		return "", "", fmt.Errorf("failed to upload asset: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"path":       asset.Path,
		"size_bytes": len(data),
	}).Info("Asset uploaded")
	return asset.URL, asset.Path, nil
}

// Normalize rewrites an object source: a data URI whose decoded payload
// exceeds InlineThreshold is uploaded and replaced by its URL; anything else
// passes through unchanged.
func (s *Service) Normalize(ctx context.Context, src string) (string, error) {
	if !strings.HasPrefix(src, "data:") {
		return src, nil
	}

	contentType, data, err := decodeDataURI(src)
	if err != nil {
		return "", err
	}
	if len(data) <= InlineThreshold {
		return src, nil
	}

	normalized, _, err := s.Store(ctx, data, contentType)
	if err != nil {
		return "", err
	}
	return normalized, nil
}

// Remove deletes an uploaded asset. Cleanup failures are logged and
// swallowed: the owning object is already gone and the primary operation
// succeeded.
func (s *Service) Remove(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := s.store.Delete(ctx, path); err != nil {
		logrus.WithFields(logrus.Fields{
			"path":  path,
			"error": err,
		}).Warn("Failed to delete stale asset")
	}
}

func decodeDataURI(uri string) (contentType string, data []byte, err error) {
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return "", nil, fmt.Errorf("malformed data URI")
	}
	meta := uri[len("data:"):comma]
	if !strings.HasSuffix(meta, ";base64") {
		return "", nil, fmt.Errorf("unsupported data URI encoding; only base64 is handled")
	}
	contentType = strings.TrimSuffix(meta, ";base64")

	data, err = base64.StdEncoding.DecodeString(uri[comma+1:])
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode data URI payload: %w", err)
	}
	return contentType, data, nil
}
