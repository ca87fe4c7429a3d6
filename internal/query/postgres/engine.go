package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/querybridge/querybridge/internal/query"
)

// Engine runs statements inside a read-only transaction that is always
// rolled back.
type Engine struct {
	db *sql.DB
}

func NewEngine(db *sql.DB) *Engine {
	return &Engine{db: db}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if strings.TrimSpace(request.SQL) == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if e.db == nil {
		return query.Result{}, fmt.Errorf("postgres db is required")
	}

	start := time.Now()
	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return query.Result{}, fmt.Errorf("begin read-only tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	columns, rows, truncated, err := query.RunSQL(ctx, tx, request.SQL, request.RowLimit)
	if err != nil {
		return query.Result{}, err
	}
	return query.Result{
		Backend:   query.BackendPostgres,
		Columns:   columns,
		Rows:      rows,
		Truncated: truncated,
		Duration:  time.Since(start),
	}, nil
}
