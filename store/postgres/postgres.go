// Package postgres is the remote store backend. Each site lives in its own
// schema; rows are kept as JSONB keyed by their primary key.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/use-agent/webexporter/store"
)

func init() {
	store.Register("postgres", Open)
}

// Repo is a site store backed by a pgx pool.
type Repo struct {
	pool   *pgxpool.Pool
	schema store.Schema
}

// Open connects to cfg.DSN and ensures the site schema and its tables.
func Open(ctx context.Context, cfg store.Config, schema store.Schema) (store.Backend, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	r := &Repo{pool: pool, schema: schema}
	if err := r.ensureTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

func (r *Repo) table(name string) string {
	return pgx.Identifier{r.schema.SiteID, name}.Sanitize()
}

func (r *Repo) ensureTables(ctx context.Context) error {
	schemaSQL := "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{r.schema.SiteID}.Sanitize()
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema %s: %w", r.schema.SiteID, err)
	}
	for _, t := range r.schema.TableNames() {
		q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key TEXT PRIMARY KEY,
	extractor_id TEXT NOT NULL,
	value JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, r.table(t))
		if _, err := r.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("create table %s: %w", t, err)
		}
	}
	return nil
}

// Put upserts one row.
func (r *Repo) Put(ctx context.Context, extractorID, table string, value any) error {
	row, err := store.Prepare(r.schema, extractorID, table, value)
	if err != nil {
		return err
	}
	q := `INSERT INTO ` + r.table(table) + ` (key, extractor_id, value, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (key) DO UPDATE SET extractor_id = EXCLUDED.extractor_id, value = EXCLUDED.value, updated_at = now()`
	if _, err := r.pool.Exec(ctx, q, row.Key, row.ExtractorID, string(row.Value)); err != nil {
		return fmt.Errorf("postgres: put %s/%s: %w", table, row.Key, err)
	}
	return nil
}

// PutMany upserts rows one by one so a bad row does not abort the rest.
func (r *Repo) PutMany(ctx context.Context, extractorID, table string, values []any) (int, error) {
	failed := 0
	var last error
	for i, v := range values {
		if err := ctx.Err(); err != nil {
			return failed + len(values) - i, err
		}
		if err := r.Put(ctx, extractorID, table, v); err != nil {
			failed++
			last = err
		}
	}
	if failed > 0 {
		return failed, store.PartialFailure(table, failed, len(values), last)
	}
	return 0, nil
}

// GetAll returns every row of table in key order.
func (r *Repo) GetAll(ctx context.Context, table string) ([]any, error) {
	if _, ok := r.schema.Tables[table]; !ok {
		return nil, fmt.Errorf("postgres: site %s has no table %s", r.schema.SiteID, table)
	}
	rows, err := r.pool.Query(ctx, `SELECT value::text FROM `+r.table(table)+` ORDER BY key`)
	if err != nil {
		return nil, err
	}
	bodies, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(bodies))
	for _, b := range bodies {
		v, err := store.Decode([]byte(b))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
