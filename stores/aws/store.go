package aws

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"mime"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"iconboard/core"
)

type s3AssetStore struct {
	s3Client  *s3.Client
	bucket    string
	publicURL string
}

// NewAssetStore creates an S3-backed asset store. Public URLs are built from
// S3_PUBLIC_URL when set, otherwise from the default bucket endpoint.
func NewAssetStore(bucketName string) *s3AssetStore {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	publicURL := strings.TrimSuffix(os.Getenv("S3_PUBLIC_URL"), "/")
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://%s.s3.amazonaws.com", bucketName)
	}

	return &s3AssetStore{
		s3Client:  s3.NewFromConfig(cfg),
		bucket:    bucketName,
		publicURL: publicURL,
	}
}

func (s *s3AssetStore) Upload(ctx context.Context, data []byte, contentType string) (*core.StoredAsset, error) {
	key := "assets/" + ulid.Make().String()
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		key += exts[0]
	}

	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload asset: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"bucket":     s.bucket,
		"key":        key,
		"size_bytes": len(data),
	}).Info("Asset uploaded to S3")

	return &core.StoredAsset{
		URL:  s.publicURL + "/" + key,
		Path: key,
	}, nil
}

func (s *s3AssetStore) Delete(ctx context.Context, assetPath string) error {
	// Asset paths are generated keys; anything path-traversal shaped never
	// came from Upload.
	if assetPath == "" || path.Clean(assetPath) != assetPath {
		return fmt.Errorf("invalid asset path %q", assetPath)
	}

	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(assetPath),
	})
	if err != nil {
		return fmt.Errorf("failed to delete asset %s: %v", assetPath, err)
	}
	return nil
}
