// Package sqlite is the local store backend: one database file per site,
// one table per declared site table.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/use-agent/webexporter/store"
)

func init() {
	store.Register("sqlite", Open)
}

// Repo is a site store backed by SQLite.
type Repo struct {
	db     *sql.DB
	schema store.Schema
}

// Open opens (creating when needed) <cfg.Dir>/<site>.db, or cfg.DSN when
// set, and ensures every table of schema exists.
func Open(ctx context.Context, cfg store.Config, schema store.Schema) (store.Backend, error) {
	dsn := cfg.DSN
	if dsn == "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create %s: %w", cfg.Dir, err)
		}
		dsn = filepath.Join(cfg.Dir, schema.SiteID+".db")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time keeps SQLITE_BUSY out of concurrent pipelines.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	r := &Repo{db: db, schema: schema}
	if err := r.ensureTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) ensureTables(ctx context.Context) error {
	for _, t := range r.schema.TableNames() {
		q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key TEXT PRIMARY KEY,
	extractor_id TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`, sqlIdent(t))
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table %s: %w", t, err)
		}
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *Repo) put(ctx context.Context, ex execer, extractorID, table string, value any) error {
	row, err := store.Prepare(r.schema, extractorID, table, value)
	if err != nil {
		return err
	}
	q := `INSERT OR REPLACE INTO ` + sqlIdent(table) + ` (key, extractor_id, value, updated_at) VALUES (?, ?, ?, ?)`
	_, err = ex.ExecContext(ctx, q, row.Key, row.ExtractorID, string(row.Value), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite: put %s/%s: %w", table, row.Key, err)
	}
	return nil
}

// Put inserts or replaces one row.
func (r *Repo) Put(ctx context.Context, extractorID, table string, value any) error {
	return r.put(ctx, r.db, extractorID, table, value)
}

// PutMany writes values in one transaction, skipping rows that fail.
func (r *Repo) PutMany(ctx context.Context, extractorID, table string, values []any) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return len(values), err
	}
	defer tx.Rollback()

	failed := 0
	var last error
	for _, v := range values {
		if err := r.put(ctx, tx, extractorID, table, v); err != nil {
			failed++
			last = err
		}
	}
	if err := tx.Commit(); err != nil {
		return len(values), fmt.Errorf("sqlite: commit %s: %w", table, err)
	}
	if failed > 0 {
		return failed, store.PartialFailure(table, failed, len(values), last)
	}
	return 0, nil
}

// GetAll returns every row of table in key order.
func (r *Repo) GetAll(ctx context.Context, table string) ([]any, error) {
	if _, ok := r.schema.Tables[table]; !ok {
		return nil, fmt.Errorf("sqlite: site %s has no table %s", r.schema.SiteID, table)
	}
	rows, err := r.db.QueryContext(ctx, `SELECT value FROM `+sqlIdent(table)+` ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []any{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		v, err := store.Decode([]byte(body))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
