package dataset

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/querybridge/querybridge/internal/storage"
)

type memoryStore struct {
	objects map[string][]byte
	deleted []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.objects[key] = data
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memoryStore) List(_ context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func TestPublishWritesPartsAndManifest(t *testing.T) {
	store := newMemoryStore()
	uploader, err := NewUploader(store, nil)
	if err != nil {
		t.Fatalf("NewUploader() error = %v", err)
	}
	uploader.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	cfg := Config{Campaigns: 6, Publishers: 4, Events: 250, RowsPerFile: 100, Seed: 5}
	tables := NewGenerator(cfg.Seed).Generate(cfg)
	manifest, err := uploader.Publish(context.Background(), "adtech", cfg, tables)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(manifest.Files) != 5 {
		t.Fatalf("files = %+v", manifest.Files)
	}
	if got := manifest.Tables(); len(got) != 3 || got[2] != TableAdEvents {
		t.Fatalf("Tables() = %v", got)
	}

	read, err := storage.ReadManifest(context.Background(), store, "adtech")
	if err != nil {
		t.Fatalf("ReadManifest() error = %v", err)
	}
	if read.Seed != 5 || !read.GeneratedAt.Equal(uploader.now()) {
		t.Fatalf("manifest = %+v", read)
	}

	var total int64
	for _, file := range read.Files {
		if file.TableName != TableAdEvents {
			continue
		}
		total += file.RowCount
		body := store.objects[file.ObjectPath]
		rows, err := parquet.Read[AdEvent](bytes.NewReader(body), int64(len(body)))
		if err != nil {
			t.Fatalf("parquet.Read(%s) error = %v", file.ObjectPath, err)
		}
		if int64(len(rows)) != file.RowCount {
			t.Fatalf("%s rows = %d, manifest says %d", file.ObjectPath, len(rows), file.RowCount)
		}
	}
	if total != 250 {
		t.Fatalf("event rows = %d", total)
	}
	if last := read.Files[len(read.Files)-1]; last.ObjectPath != "datasets/adtech/ad_events/part-00002.parquet" || last.RowCount != 50 {
		t.Fatalf("last file = %+v", last)
	}
}

func TestPublishPrunesStaleParts(t *testing.T) {
	store := newMemoryStore()
	store.objects["datasets/adtech/ad_events/part-00007.parquet"] = []byte("old")
	store.objects["datasets/other/ad_events/part-00007.parquet"] = []byte("other dataset")
	uploader, err := NewUploader(store, nil)
	if err != nil {
		t.Fatalf("NewUploader() error = %v", err)
	}

	cfg := Config{Campaigns: 2, Publishers: 2, Events: 10, RowsPerFile: 100, Seed: 1}
	if _, err := uploader.Publish(context.Background(), "adtech", cfg, NewGenerator(1).Generate(cfg)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "datasets/adtech/ad_events/part-00007.parquet" {
		t.Fatalf("deleted = %v", store.deleted)
	}
	if _, ok := store.objects["datasets/other/ad_events/part-00007.parquet"]; !ok {
		t.Fatal("other dataset was pruned")
	}
	if _, ok := store.objects["datasets/adtech/manifest.json"]; !ok {
		t.Fatal("manifest missing")
	}
}

func TestPublishEmptyTableStillWritesPart(t *testing.T) {
	store := newMemoryStore()
	uploader, err := NewUploader(store, nil)
	if err != nil {
		t.Fatalf("NewUploader() error = %v", err)
	}
	cfg := Config{Campaigns: 1, Publishers: 1, Events: 0, RowsPerFile: 10}
	manifest, err := uploader.Publish(context.Background(), "adtech", cfg, NewGenerator(1).Generate(cfg))
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(manifest.Files) != 3 || manifest.Files[2].RowCount != 0 {
		t.Fatalf("files = %+v", manifest.Files)
	}
}

func TestNewUploaderRequiresStore(t *testing.T) {
	if _, err := NewUploader(nil, nil); err == nil {
		t.Fatal("expected error")
	}
}
