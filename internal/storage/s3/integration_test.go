//go:build integration

package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/querybridge/querybridge/internal/storage"
)

func TestStoreRoundTripAgainstMinIO(t *testing.T) {
	endpoint := envOr("QUERYBRIDGE_TEST_S3_ENDPOINT", "")
	if endpoint == "" {
		t.Skip("QUERYBRIDGE_TEST_S3_ENDPOINT is not set")
	}

	cfg := Config{
		Endpoint:         endpoint,
		Region:           envOr("QUERYBRIDGE_TEST_S3_REGION", "us-east-1"),
		Bucket:           envOr("QUERYBRIDGE_TEST_S3_BUCKET", "querybridge-it"),
		AccessKeyID:      envOr("QUERYBRIDGE_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey:  envOr("QUERYBRIDGE_TEST_S3_SECRET_KEY", "miniostorage"),
		UseSSL:           false,
		Prefix:           "integration-tests",
		AutoCreateBucket: true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	store, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := store.Ready(ctx); err != nil {
		t.Fatalf("Ready() error = %v", err)
	}

	part, err := storage.BuildTableFilePath("it", "ad_events", 0)
	if err != nil {
		t.Fatalf("BuildTableFilePath() error = %v", err)
	}
	payload := []byte("querybridge-integration")
	info, err := store.Put(ctx, part, bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{ContentType: "application/vnd.apache.parquet"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if info.Key != part {
		t.Fatalf("Put() key = %q, want %q", info.Key, part)
	}

	manifest := storage.Manifest{
		Dataset:     "it",
		GeneratedAt: time.Now().UTC().Truncate(time.Second),
		Files:       []storage.TableFile{{TableName: "ad_events", ObjectPath: part, RowCount: 1, FileSizeBytes: int64(len(payload))}},
	}
	if _, err := storage.WriteManifest(ctx, store, manifest); err != nil {
		t.Fatalf("WriteManifest() error = %v", err)
	}
	readBack, err := storage.ReadManifest(ctx, store, "it")
	if err != nil {
		t.Fatalf("ReadManifest() error = %v", err)
	}
	if len(readBack.Files) != 1 || readBack.Files[0].ObjectPath != part {
		t.Fatalf("ReadManifest() = %+v", readBack)
	}

	keys, err := store.List(ctx, "datasets/it")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("List() = %v", keys)
	}

	reader, err := store.Get(ctx, part)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil || !bytes.Equal(got, payload) {
		t.Fatalf("Get() payload = %q, err = %v", got, err)
	}

	for _, key := range keys {
		if err := store.Delete(ctx, key); err != nil {
			t.Fatalf("Delete(%q) error = %v", key, err)
		}
	}
	if _, err := storage.ReadManifest(ctx, store, "it"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("ReadManifest() after delete error = %v, want ErrObjectNotFound", err)
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
