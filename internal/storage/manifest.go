package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

type TableFile struct {
	TableName     string `json:"table_name"`
	ObjectPath    string `json:"object_path"`
	RowCount      int64  `json:"row_count"`
	FileSizeBytes int64  `json:"file_size_bytes"`
}

// Manifest lists the Parquet files that make up one published dataset.
type Manifest struct {
	Dataset     string      `json:"dataset"`
	GeneratedAt time.Time   `json:"generated_at"`
	Seed        int64       `json:"seed"`
	Files       []TableFile `json:"files"`
}

func (m Manifest) Tables() []string {
	seen := map[string]struct{}{}
	tables := make([]string, 0, len(m.Files))
	for _, file := range m.Files {
		if _, ok := seen[file.TableName]; ok {
			continue
		}
		seen[file.TableName] = struct{}{}
		tables = append(tables, file.TableName)
	}
	return tables
}

func WriteManifest(ctx context.Context, store ObjectStore, manifest Manifest) (string, error) {
	key, err := BuildManifestPath(manifest.Dataset)
	if err != nil {
		return "", err
	}
	body, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	if _, err := store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), PutOptions{ContentType: "application/json"}); err != nil {
		return "", err
	}
	return key, nil
}

func ReadManifest(ctx context.Context, store ObjectStore, dataset string) (Manifest, error) {
	key, err := BuildManifestPath(dataset)
	if err != nil {
		return Manifest{}, err
	}
	reader, err := store.Get(ctx, key)
	if err != nil {
		return Manifest{}, err
	}
	defer func() { _ = reader.Close() }()

	body, err := io.ReadAll(reader)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest %q: %w", key, err)
	}
	var manifest Manifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest %q: %w", key, err)
	}
	if len(manifest.Files) == 0 {
		return Manifest{}, fmt.Errorf("manifest %q lists no files", key)
	}
	return manifest, nil
}
