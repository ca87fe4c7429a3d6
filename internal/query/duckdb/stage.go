package duckdb

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/querybridge/querybridge/internal/storage"
)

// stage downloads every manifest file into workDir and groups the local
// paths by table.
func (e *Engine) stage(ctx context.Context, workDir string, files []storage.TableFile) (map[string][]string, error) {
	grouped := map[string][]string{}
	for index, file := range files {
		localPath := filepath.Join(workDir, fmt.Sprintf("%s_%03d.parquet", localName(file.TableName), index))
		if err := e.download(ctx, file, localPath); err != nil {
			return nil, err
		}
		grouped[file.TableName] = append(grouped[file.TableName], localPath)
	}
	return grouped, nil
}

// download copies one object to localPath. A size recorded in the manifest
// must match what was read, which catches parts replaced by a later publish.
func (e *Engine) download(ctx context.Context, file storage.TableFile, localPath string) error {
	reader, err := e.Store.Get(ctx, file.ObjectPath)
	if err != nil {
		return fmt.Errorf("get object %q: %w", file.ObjectPath, err)
	}
	defer func() { _ = reader.Close() }()

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create %q: %w", localPath, err)
	}
	written, err := io.Copy(out, reader)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("stage %q: %w", file.ObjectPath, err)
	}
	if file.FileSizeBytes > 0 && written != file.FileSizeBytes {
		return fmt.Errorf("stage %q: read %d bytes, manifest says %d", file.ObjectPath, written, file.FileSizeBytes)
	}
	return nil
}

func localName(table string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(table)
	if name == "" {
		return "table"
	}
	return name
}
