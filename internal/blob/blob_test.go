package blob

import (
	"context"
	"strings"
	"testing"

	"widgetcore/internal/config"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	cases := []struct {
		cfg  config.BlobConfig
		want Driver
	}{
		{config.BlobConfig{Driver: "fs", FSRoot: root}, DriverFilesystem},
		{config.BlobConfig{FSRoot: root}, DriverFilesystem},
		{config.BlobConfig{Driver: "memory"}, DriverMemory},
		{config.BlobConfig{Driver: "s3", S3Bucket: "snapshots", S3Endpoint: "http://localhost:9000", S3PathStyle: true}, DriverS3},
	}
	for _, tc := range cases {
		store, err := Open(ctx, tc.cfg)
		if err != nil {
			t.Fatalf("Open(%+v): %v", tc.cfg, err)
		}
		if store.Driver() != tc.want {
			t.Fatalf("expected %s, got %s", tc.want, store.Driver())
		}
	}
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, config.BlobConfig{Driver: "gcs"}); err == nil || !strings.Contains(err.Error(), "unknown blob driver") {
		t.Fatalf("expected unknown driver error, got %v", err)
	}
	if _, err := Open(ctx, config.BlobConfig{Driver: "s3"}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}

func TestTestHelpers(t *testing.T) {
	if NewMemory().Driver() != DriverMemory {
		t.Fatalf("expected memory driver")
	}
	if NewMockS3ForTests().Driver() != DriverS3 {
		t.Fatalf("expected s3 driver")
	}
}
