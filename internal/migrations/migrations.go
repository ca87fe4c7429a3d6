// Package migrations creates the AdTech demo schema in Postgres so the
// postgres backend can serve the same questions as Firebolt.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

const versionTable = "querybridge_schema_migrations"

var fileNamePattern = regexp.MustCompile(`^([0-9]+)_.+\.(up|down)\.sql$`)

type Runner struct {
	fsys fs.FS
}

func NewRunner() *Runner {
	return &Runner{fsys: embeddedFS}
}

type script struct {
	version int64
	up      string
	down    string
}

// Up applies every pending script in version order, each in its own
// transaction, and returns how many ran.
func (r *Runner) Up(ctx context.Context, db *sql.DB) (int, error) {
	scripts, err := loadScripts(r.fsys)
	if err != nil {
		return 0, err
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return 0, err
	}
	ran := 0
	for _, s := range scripts {
		if slices.Contains(applied, s.version) {
			continue
		}
		if err := runInTx(ctx, db, s.up, `INSERT INTO `+versionTable+` (version) VALUES ($1)`, s.version); err != nil {
			return ran, fmt.Errorf("apply migration %d: %w", s.version, err)
		}
		ran++
	}
	return ran, nil
}

// Down reverts up to steps applied scripts, newest first.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	scripts, err := loadScripts(r.fsys)
	if err != nil {
		return 0, err
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return 0, err
	}
	slices.Reverse(applied)

	ran := 0
	for _, version := range applied {
		if ran >= max(steps, 1) {
			break
		}
		index := slices.IndexFunc(scripts, func(s script) bool { return s.version == version })
		if index < 0 {
			return ran, fmt.Errorf("applied migration %d is missing from source", version)
		}
		if err := runInTx(ctx, db, scripts[index].down, `DELETE FROM `+versionTable+` WHERE version = $1`, version); err != nil {
			return ran, fmt.Errorf("revert migration %d: %w", version, err)
		}
		ran++
	}
	return ran, nil
}

// appliedVersions creates the version table when needed and returns the
// recorded versions in ascending order.
func appliedVersions(ctx context.Context, db *sql.DB) ([]int64, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+versionTable+` (
	version BIGINT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return nil, fmt.Errorf("ensure migration table: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT version FROM `+versionTable+` ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	versions := make([]int64, 0)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

func runInTx(ctx context.Context, db *sql.DB, body, bookkeeping string, version int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, version); err != nil {
		return err
	}
	return tx.Commit()
}

func loadScripts(fsys fs.FS) ([]script, error) {
	entries, err := fs.ReadDir(fsys, "sql")
	if err != nil {
		return nil, fmt.Errorf("read migration dir: %w", err)
	}

	byVersion := map[int64]*script{}
	for _, entry := range entries {
		matches := fileNamePattern.FindStringSubmatch(path.Base(entry.Name()))
		if entry.IsDir() || matches == nil {
			continue
		}
		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version for %q: %w", entry.Name(), err)
		}
		body, err := fs.ReadFile(fsys, path.Join("sql", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", entry.Name(), err)
		}
		s, ok := byVersion[version]
		if !ok {
			s = &script{version: version}
			byVersion[version] = s
		}
		if matches[2] == "up" {
			s.up = string(body)
		} else {
			s.down = string(body)
		}
	}

	scripts := make([]script, 0, len(byVersion))
	for _, s := range byVersion {
		if strings.TrimSpace(s.up) == "" || strings.TrimSpace(s.down) == "" {
			return nil, fmt.Errorf("migration %d needs both up and down SQL", s.version)
		}
		scripts = append(scripts, *s)
	}
	slices.SortFunc(scripts, func(a, b script) int { return int(a.version - b.version) })
	return scripts, nil
}
