package dataset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/querybridge/querybridge/internal/storage"
)

const parquetContentType = "application/vnd.apache.parquet"

type Uploader struct {
	store storage.ObjectStore
	log   *slog.Logger
	now   func() time.Time
}

func NewUploader(store storage.ObjectStore, logger *slog.Logger) (*Uploader, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Uploader{store: store, log: logger, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Publish uploads every table as Parquet parts, then the manifest, then
// removes parts an earlier, larger run left behind. Readers only follow the
// manifest, so they never see a half-written dataset listed.
func (p *Uploader) Publish(ctx context.Context, dataset string, cfg Config, tables Tables) (storage.Manifest, error) {
	rowsPerFile := cfg.RowsPerFile
	if rowsPerFile <= 0 {
		rowsPerFile = DefaultConfig().RowsPerFile
	}
	manifest := storage.Manifest{Dataset: dataset, GeneratedAt: p.now(), Seed: cfg.Seed}

	campaignFiles, err := uploadTable(ctx, p, dataset, TableCampaigns, tables.Campaigns, rowsPerFile)
	if err != nil {
		return storage.Manifest{}, err
	}
	publisherFiles, err := uploadTable(ctx, p, dataset, TablePublishers, tables.Publishers, rowsPerFile)
	if err != nil {
		return storage.Manifest{}, err
	}
	eventFiles, err := uploadTable(ctx, p, dataset, TableAdEvents, tables.Events, rowsPerFile)
	if err != nil {
		return storage.Manifest{}, err
	}
	manifest.Files = slices.Concat(campaignFiles, publisherFiles, eventFiles)

	key, err := storage.WriteManifest(ctx, p.store, manifest)
	if err != nil {
		return storage.Manifest{}, fmt.Errorf("write manifest: %w", err)
	}
	p.log.Info("dataset manifest written", slog.String("key", key), slog.Int("files", len(manifest.Files)))

	if err := p.prune(ctx, dataset, manifest); err != nil {
		return manifest, err
	}
	return manifest, nil
}

func uploadTable[T any](ctx context.Context, p *Uploader, dataset, table string, rows []T, rowsPerFile int) ([]storage.TableFile, error) {
	files := make([]storage.TableFile, 0, len(rows)/rowsPerFile+1)
	for part, start := 0, 0; start < len(rows) || part == 0; part, start = part+1, start+rowsPerFile {
		end := min(start+rowsPerFile, len(rows))
		body, err := EncodeParquet(rows[start:end])
		if err != nil {
			return nil, fmt.Errorf("encode %s part %d: %w", table, part, err)
		}
		key, err := storage.BuildTableFilePath(dataset, table, part)
		if err != nil {
			return nil, err
		}
		info, err := p.store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), storage.PutOptions{ContentType: parquetContentType})
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", key, err)
		}
		size := info.Size
		if size == 0 {
			size = int64(len(body))
		}
		files = append(files, storage.TableFile{
			TableName:     table,
			ObjectPath:    key,
			RowCount:      int64(end - start),
			FileSizeBytes: size,
		})
		p.log.Debug("uploaded table part", slog.String("key", key), slog.Int("rows", end-start))
	}
	return files, nil
}

func (p *Uploader) prune(ctx context.Context, dataset string, manifest storage.Manifest) error {
	prefix := path.Join("datasets", dataset) + "/"
	keys, err := p.store.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list dataset objects: %w", err)
	}
	live := make([]string, 0, len(manifest.Files))
	for _, file := range manifest.Files {
		live = append(live, file.ObjectPath)
	}
	for _, key := range keys {
		if !strings.HasSuffix(key, ".parquet") || slices.Contains(live, key) {
			continue
		}
		if err := p.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete stale part %s: %w", key, err)
		}
		p.log.Info("removed stale dataset part", slog.String("key", key))
	}
	return nil
}

// EncodeParquet writes rows as a single Parquet file.
func EncodeParquet[T any](rows []T) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[T](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
