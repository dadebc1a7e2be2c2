package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/use-agent/webexporter/models"
	"github.com/use-agent/webexporter/pipeline"
)

// Schemas resolves a site id to its table layout.
type Schemas interface {
	Schema(siteID string) (Schema, bool)
}

// Registry opens backends lazily, one per site, and keeps them until
// CloseAll. It implements pipeline.Stores.
type Registry struct {
	cfg     Config
	schemas Schemas

	mu   sync.Mutex
	open map[string]Backend
}

func NewRegistry(cfg Config, schemas Schemas) *Registry {
	return &Registry{cfg: cfg, schemas: schemas, open: make(map[string]Backend)}
}

// Store returns the backend of siteID, opening it on first use.
func (r *Registry) Store(ctx context.Context, siteID string) (pipeline.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.open[siteID]; ok {
		return b, nil
	}
	schema, ok := r.schemas.Schema(siteID)
	if !ok {
		return nil, models.Errorf(models.ErrCodeNotFound, "unknown site %s", siteID)
	}
	b, err := Open(ctx, r.cfg, schema)
	if err != nil {
		return nil, err
	}
	slog.Info("store opened", "site", siteID, "kind", r.cfg.Kind)
	r.open[siteID] = b
	return b, nil
}

// CloseAll closes every open backend. The registry can be used again
// afterwards.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for site, b := range r.open {
		b.Close()
		delete(r.open, site)
	}
}
