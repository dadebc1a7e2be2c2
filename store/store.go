// Package store persists extracted rows per site. Each site gets its own
// backend handle, holding one keyed table per entry of the site's db.tables.
package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"

	"github.com/use-agent/webexporter/jsonpath"
	"github.com/use-agent/webexporter/models"
)

// Config selects and configures a backend.
type Config struct {
	Kind string // "sqlite" or "postgres"
	Dir  string // sqlite: directory holding <site>.db files
	DSN  string
}

// Schema is the table layout of one site: table name to primary key path.
type Schema struct {
	SiteID string
	Tables map[string]string
}

// TableNames returns the tables in name order.
func (s Schema) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for n := range s.Tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Backend is an open per-site store.
type Backend interface {
	Put(ctx context.Context, extractorID, table string, value any) error
	PutMany(ctx context.Context, extractorID, table string, values []any) (int, error)
	GetAll(ctx context.Context, table string) ([]any, error)
	Close()
}

type factory func(ctx context.Context, cfg Config, schema Schema) (Backend, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]factory{}
)

// Register makes a backend available under kind. Backends call it from
// init; registering a kind twice panics.
func Register(kind string, f factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if kind == "" {
		panic("store: Register called with empty kind")
	}
	if f == nil {
		panic("store: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("store: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Open opens the backend for one site.
func Open(ctx context.Context, cfg Config, schema Schema) (Backend, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("store: missing kind")
	}
	factoriesMu.RLock()
	f := factories[cfg.Kind]
	factoriesMu.RUnlock()
	if f == nil {
		return nil, fmt.Errorf("store: unsupported kind %q", cfg.Kind)
	}
	return f(ctx, cfg, schema)
}

// Row is a value ready to be written.
type Row struct {
	Key         string
	ExtractorID string
	Value       []byte
}

// Prepare checks that table belongs to the schema, stamps extractorID into
// a copy of value, reads its primary key and encodes it.
func Prepare(schema Schema, extractorID, table string, value any) (Row, error) {
	pk, ok := schema.Tables[table]
	if !ok {
		return Row{}, models.Errorf(models.ErrCodeNotFound, "site %s has no table %s", schema.SiteID, table)
	}
	m, ok := value.(map[string]any)
	if !ok {
		return Row{}, models.Errorf(models.ErrCodeInvalidInput, "%s: rows must be objects, got %T", table, value)
	}
	m = maps.Clone(m)
	m["extractor_id"] = extractorID

	path, err := jsonpath.Parse(pk)
	if err != nil {
		return Row{}, err
	}
	keyVal := path.Get(m, nil)
	if keyVal == nil {
		return Row{}, models.Errorf(models.ErrCodeInvalidInput, "%s: row has no key at %s", table, pk)
	}
	key, err := cast.ToStringE(keyVal)
	if err != nil {
		return Row{}, models.NewError(models.ErrCodeInvalidInput, table+": unusable key", err)
	}

	body, err := json.Marshal(m)
	if err != nil {
		return Row{}, fmt.Errorf("store: encode %s row: %w", table, err)
	}
	return Row{Key: key, ExtractorID: extractorID, Value: body}, nil
}

// Decode is the inverse of the encoding done by Prepare.
func Decode(body []byte) (any, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("store: decode row: %w", err)
	}
	return v, nil
}

// PartialFailure reports failed of total rows rejected by PutMany.
func PartialFailure(table string, failed, total int, last error) error {
	return models.NewError(models.ErrCodeStorePartialFailure,
		fmt.Sprintf("%s: %d of %d rows failed", table, failed, total), last)
}
