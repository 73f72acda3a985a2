package blob

import (
	"context"
	"testing"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	fs, err := Open(ctx, Config{FSRoot: t.TempDir()})
	if err != nil || fs.Driver() != DriverFilesystem {
		t.Fatalf("expected fs default: %v", err)
	}
	mem, err := Open(ctx, Config{Driver: DriverMemory})
	if err != nil || mem.Driver() != DriverMemory {
		t.Fatalf("expected memory: %v", err)
	}
	if _, err := Open(ctx, Config{Driver: DriverS3}); err == nil {
		t.Fatalf("expected s3 without bucket to fail")
	}
	if _, err := Open(ctx, Config{Driver: "tape"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if NewMockS3ForTests().Driver() != DriverS3 {
		t.Fatalf("expected s3 mock driver")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("EPOC_BLOB_DRIVER", "s3")
	t.Setenv("EPOC_BLOB_S3_BUCKET", "archives")
	t.Setenv("EPOC_BLOB_S3_PATH_STYLE", "TRUE")
	t.Setenv("EPOC_BLOB_FS_ROOT", "/srv/epoc")

	cfg := ConfigFromEnv()

	if cfg.Driver != DriverS3 || cfg.S3.Bucket != "archives" || !cfg.S3.PathStyle || cfg.FSRoot != "/srv/epoc" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
