package query

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// RunSQL executes sqlText on db and materializes at most rowLimit rows. It is
// shared by the database/sql backed engines. Queries are fetched with one
// extra row so truncation can be reported.
func RunSQL(ctx context.Context, db queryer, sqlText string, rowLimit int) ([]string, []Record, bool, error) {
	sqlText = StripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return nil, nil, false, fmt.Errorf("sql is required")
	}
	if rowLimit > 0 && wrappable(sqlText) {
		// The newline ends a trailing "--" comment before the closing paren.
		sqlText = fmt.Sprintf("SELECT * FROM (%s\n) AS q LIMIT %d", sqlText, rowLimit+1)
	}

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, nil, false, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, false, fmt.Errorf("query columns: %w", err)
	}

	records := make([]Record, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, false, fmt.Errorf("scan row: %w", err)
		}
		record := make(Record, len(columns))
		for i, column := range columns {
			record[column] = normalizeValue(values[i])
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, false, fmt.Errorf("iterate rows: %w", err)
	}
	records, truncated := Limit(records, rowLimit)
	return columns, records, truncated, nil
}

// wrappable reports whether sqlText can be used as a subquery. DESCRIBE, SHOW
// and EXPLAIN cannot, so their rows are limited after the fact.
func wrappable(sqlText string) bool {
	upper := strings.ToUpper(strings.TrimLeft(sqlText, " \t\r\n("))
	return strings.HasPrefix(upper, "SELECT") ||
		strings.HasPrefix(upper, "WITH") ||
		strings.HasPrefix(upper, "VALUES")
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

func normalizeValue(value any) any {
	if typed, ok := value.([]byte); ok {
		return string(typed)
	}
	return value
}

func sortedKeys(row Record) []string {
	keys := make([]string, 0, len(row))
	for key := range row {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
