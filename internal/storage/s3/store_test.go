package s3

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/querybridge/querybridge/internal/storage"
)

func TestPutUsesPrefixAndNormalizedKey(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("bucket-a", "querybridge/dev", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	_, err = store.Put(context.Background(), "/datasets/adtech/manifest.json", bytes.NewBufferString("{}"), 2, storage.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if fake.lastPutBucket != "bucket-a" {
		t.Fatalf("bucket = %q", fake.lastPutBucket)
	}
	if fake.lastPutKey != "querybridge/dev/datasets/adtech/manifest.json" {
		t.Fatalf("key = %q", fake.lastPutKey)
	}
}

func TestPutRejectsPathTraversal(t *testing.T) {
	store, err := NewWithClient("bucket-a", "", &fakeClient{})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	_, err = store.Put(context.Background(), "../secrets.txt", bytes.NewBufferString("x"), 1, storage.PutOptions{})
	if err == nil {
		t.Fatal("expected path traversal validation error")
	}
}

func TestListStripsStorePrefix(t *testing.T) {
	fake := &fakeClient{listed: []string{
		"querybridge/dev/datasets/adtech/ad_events/part-00000.parquet",
		"querybridge/dev/datasets/adtech/manifest.json",
	}}
	store, err := NewWithClient("bucket-a", "querybridge/dev", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	keys, err := store.List(context.Background(), "datasets/adtech")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if fake.lastListPrefix != "querybridge/dev/datasets/adtech/" {
		t.Fatalf("list prefix = %q", fake.lastListPrefix)
	}
	if len(keys) != 2 || keys[0] != "datasets/adtech/ad_events/part-00000.parquet" {
		t.Fatalf("List() = %v", keys)
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	fake := &fakeClient{bucketExists: false}
	store, err := NewWithClient("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if !fake.createBucketCalled {
		t.Fatal("expected CreateBucket to be called")
	}
}

func TestDeleteIgnoresMissingObject(t *testing.T) {
	store, err := NewWithClient("bucket-a", "", &fakeClient{deleteErr: storage.ErrObjectNotFound})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if err := store.Delete(context.Background(), "datasets/adtech/old.parquet"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestParseEndpoint(t *testing.T) {
	endpoint, secure, err := parseEndpoint("https://minio.example.com", false)
	if err != nil {
		t.Fatalf("parseEndpoint() error = %v", err)
	}
	if endpoint != "minio.example.com" || !secure {
		t.Fatalf("endpoint/secure = %q/%v", endpoint, secure)
	}
}

type fakeClient struct {
	lastPutBucket      string
	lastPutKey         string
	lastListPrefix     string
	listed             []string
	bucketExists       bool
	createBucketCalled bool
	deleteErr          error
}

func (f *fakeClient) Put(_ context.Context, bucket, key string, reader io.Reader, size int64, _ string) (storage.ObjectInfo, error) {
	f.lastPutBucket = bucket
	f.lastPutKey = key
	_, _ = io.Copy(io.Discard, reader)
	return storage.ObjectInfo{Key: key, Size: size, ETag: "etag-1"}, nil
}

func (f *fakeClient) Get(_ context.Context, _, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(key)), nil
}

func (f *fakeClient) Delete(_ context.Context, _, _ string) error {
	return f.deleteErr
}

func (f *fakeClient) List(_ context.Context, _, prefix string) ([]string, error) {
	f.lastListPrefix = prefix
	return f.listed, nil
}

func (f *fakeClient) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, nil
}

func (f *fakeClient) CreateBucket(_ context.Context, _, _ string) error {
	f.createBucketCalled = true
	return nil
}

func TestReadyReportsMissingBucket(t *testing.T) {
	store, err := NewWithClient("bucket-a", "", &fakeClient{bucketExists: false})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if err := store.Ready(context.Background()); err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("Ready() error = %v", err)
	}

	store, err = NewWithClient("bucket-a", "", &fakeClient{bucketExists: true})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if err := store.Ready(context.Background()); err != nil {
		t.Fatalf("Ready() error = %v", err)
	}
}

func TestKeyspaceResolve(t *testing.T) {
	keys := newKeyspace("/querybridge/dev/")
	got, err := keys.resolve("datasets//adtech/./manifest.json")
	if err != nil {
		t.Fatalf("resolve() error = %v", err)
	}
	if got != "querybridge/dev/datasets/adtech/manifest.json" {
		t.Fatalf("resolve() = %q", got)
	}
	for _, bad := range []string{"", "..", "../x", "a/../../x"} {
		if _, err := keys.resolve(bad); err == nil {
			t.Fatalf("resolve(%q) expected error", bad)
		}
	}
	if got := keys.relative("querybridge/dev/datasets/adtech/manifest.json"); got != "datasets/adtech/manifest.json" {
		t.Fatalf("relative() = %q", got)
	}
}

func TestPutReturnsStoreRelativeKey(t *testing.T) {
	store, err := NewWithClient("bucket-a", "querybridge/dev", &fakeClient{})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	info, err := store.Put(context.Background(), "datasets/adtech/manifest.json", bytes.NewBufferString("{}"), 2, storage.PutOptions{})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if info.Key != "datasets/adtech/manifest.json" {
		t.Fatalf("info.Key = %q", info.Key)
	}
}
