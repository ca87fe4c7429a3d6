package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/querybridge/querybridge/internal/query"
	"github.com/querybridge/querybridge/internal/storage"
)

// Engine serves a published dataset: every call stages the manifest's
// Parquet files into a temp dir and exposes one view per table.
type Engine struct {
	Store   storage.ObjectStore
	Dataset string
}

func NewEngine(store storage.ObjectStore, dataset string) *Engine {
	return &Engine{Store: store, Dataset: dataset}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if strings.TrimSpace(request.SQL) == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if e.Store == nil {
		return query.Result{}, fmt.Errorf("object store is required")
	}

	start := time.Now()
	manifest, err := storage.ReadManifest(ctx, e.Store, e.Dataset)
	if err != nil {
		return query.Result{}, fmt.Errorf("load dataset %q: %w", e.Dataset, err)
	}

	workDir, err := os.MkdirTemp("", "querybridge-duckdb-")
	if err != nil {
		return query.Result{}, fmt.Errorf("create query temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	groupedPaths, err := e.stage(ctx, workDir, manifest.Files)
	if err != nil {
		return query.Result{}, err
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	for _, tableName := range manifest.Tables() {
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(tableName), quoteStringArray(groupedPaths[tableName]))
		if _, err := db.ExecContext(ctx, viewSQL); err != nil {
			return query.Result{}, fmt.Errorf("create view for table %q: %w", tableName, err)
		}
	}

	columns, rows, truncated, err := query.RunSQL(ctx, db, request.SQL, request.RowLimit)
	if err != nil {
		return query.Result{}, err
	}
	return query.Result{
		Backend:   query.BackendDuckDB,
		Columns:   columns,
		Rows:      rows,
		Truncated: truncated,
		Duration:  time.Since(start),
	}, nil
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}
