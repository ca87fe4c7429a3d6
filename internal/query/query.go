package query

import (
	"context"
	"time"
)

// Record is one result row keyed by column name. Column order lives in
// Result.Columns.
type Record map[string]any

type Request struct {
	SQL      string
	RowLimit int
}

type Result struct {
	Backend   string
	Columns   []string
	Rows      []Record
	Truncated bool
	Duration  time.Duration
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

// Backend names accepted by QUERYBRIDGE_ENGINE_BACKEND.
const (
	BackendFirebolt = "firebolt"
	BackendDuckDB   = "duckdb"
	BackendPostgres = "postgres"
)

func (r Result) RowCount() int {
	return len(r.Rows)
}

// Values returns the rows as positional slices in Columns order.
func (r Result) Values() [][]any {
	out := make([][]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		values := make([]any, len(r.Columns))
		for i, column := range r.Columns {
			values[i] = row[column]
		}
		out = append(out, values)
	}
	return out
}

// ColumnsOf collects keys in first-seen order across rows. Keys within a
// row are taken sorted because maps carry no order.
func ColumnsOf(rows []Record) []string {
	seen := map[string]struct{}{}
	columns := make([]string, 0)
	for _, row := range rows {
		for _, key := range sortedKeys(row) {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			columns = append(columns, key)
		}
	}
	return columns
}

// Limit truncates rows to limit when limit is positive.
func Limit(rows []Record, limit int) ([]Record, bool) {
	if limit <= 0 || len(rows) <= limit {
		return rows, false
	}
	return rows[:limit], true
}
