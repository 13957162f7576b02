package stores

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"iconboard/core"
	"iconboard/stores/aws"
	"iconboard/stores/filesystem"
	"iconboard/stores/memory"
	"iconboard/stores/sqlite"
)

// Store is a union interface that includes all store types.
type Store interface {
	core.CanvasStore
	core.ObjectStore
}

func GetStore() Store {
	storageType := os.Getenv("STORAGE_TYPE")
	var store Store

	storageField := logrus.Fields{
		"storageType": storageType,
	}

	switch storageType {
	case "filesystem":
		basePath := os.Getenv("LOCAL_STORAGE_PATH")
		if basePath == "" {
			basePath = "./data" // Default path
		}
		storageField["basePath"] = basePath
		store = filesystem.NewStore(basePath)
	case "sqlite":
		dataSourceName := os.Getenv("DATA_SOURCE_NAME")
		if dataSourceName == "" {
			dataSourceName = "iconboard.db" // Default filename
		}
		storageField["dataSourceName"] = dataSourceName
		store = sqlite.NewStore(dataSourceName)
	default:
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	}
	logrus.WithFields(storageField).Info("Use storage")
	return store
}

// GetAssetStore selects the blob backend for oversized image payloads.
func GetAssetStore() core.AssetStore {
	assetType := os.Getenv("ASSET_STORAGE_TYPE")
	var store core.AssetStore

	assetField := logrus.Fields{
		"assetStorageType": assetType,
	}

	switch assetType {
	case "s3":
		bucketName := os.Getenv("S3_BUCKET_NAME")
		if bucketName == "" {
			logrus.Fatal("S3_BUCKET_NAME environment variable must be set for s3 asset storage")
		}
		assetField["bucketName"] = bucketName
		store = aws.NewAssetStore(bucketName)
	case "filesystem":
		basePath := os.Getenv("LOCAL_STORAGE_PATH")
		if basePath == "" {
			basePath = "./data"
		}
		assetPath := filepath.Join(basePath, "assets")
		assetField["basePath"] = assetPath
		store = filesystem.NewAssetStore(assetPath)
	default:
		store = memory.NewAssetStore()
		assetField["assetStorageType"] = "in-memory"
	}
	logrus.WithFields(assetField).Info("Use asset storage")
	return store
}
