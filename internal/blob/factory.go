package blob

import (
	"context"
	"epoccore/internal/infra/blob/fs"
	memorystore "epoccore/internal/infra/blob/memory"
	"fmt"
	"os"
	"strings"
)

// Config selects and parameterizes a blob backend.
type Config struct {
	Driver Driver
	// FSRoot is the directory root when Driver is fs (default ./archives).
	FSRoot string
	S3     S3Config
}

// ConfigFromEnv reads the blob configuration from the environment:
//
//	EPOC_BLOB_DRIVER: fs|s3|memory (default fs)
//	EPOC_BLOB_FS_ROOT: directory root when driver=fs
//	EPOC_BLOB_S3_BUCKET, EPOC_BLOB_S3_REGION, EPOC_BLOB_S3_ENDPOINT,
//	EPOC_BLOB_S3_PATH_STYLE: S3 settings when driver=s3
func ConfigFromEnv() Config {
	return Config{
		Driver: Driver(os.Getenv("EPOC_BLOB_DRIVER")),
		FSRoot: os.Getenv("EPOC_BLOB_FS_ROOT"),
		S3: S3Config{
			Bucket:    os.Getenv("EPOC_BLOB_S3_BUCKET"),
			Region:    os.Getenv("EPOC_BLOB_S3_REGION"),
			Endpoint:  os.Getenv("EPOC_BLOB_S3_ENDPOINT"),
			PathStyle: strings.EqualFold(os.Getenv("EPOC_BLOB_S3_PATH_STYLE"), "true"),
		},
	}
}

// Open constructs the Store selected by cfg. An empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewFilesystem constructs a filesystem-backed Store rooted at root.
func NewFilesystem(root string) (Store, error) {
	s, err := fs.New(root)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemory returns an in-memory Store suitable for tests.
func NewMemory() Store { return memorystore.New() }
