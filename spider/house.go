// Package spider runs spider pipelines on browser tabs, at most one per tab.
package spider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/use-agent/webexporter/models"
	"github.com/use-agent/webexporter/pipeline"
)

// Catalog resolves a spider definition.
type Catalog interface {
	Spider(siteID, spiderID string) ([]*pipeline.Step, bool)
}

// Runner executes a spider's steps. *pipeline.Interpreter satisfies it.
type Runner interface {
	Run(ctx context.Context, f *pipeline.Frame, model any) (any, error)
}

// Status describes a running spider.
type Status struct {
	TabID    int       `json:"tab_id"`
	SiteID   string    `json:"site_id"`
	SpiderID string    `json:"spider_id"`
	Started  time.Time `json:"started"`
}

type run struct {
	Status
	cancel context.CancelFunc
	done   chan struct{}
}

// House tracks running spiders by tab.
type House struct {
	catalog Catalog
	runner  Runner
	log     pipeline.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running map[int]*run
}

func NewHouse(catalog Catalog, runner Runner, log pipeline.Logger) *House {
	ctx, cancel := context.WithCancel(context.Background())
	return &House{
		catalog: catalog,
		runner:  runner,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[int]*run),
	}
}

// Start launches spider spiderID of siteID on tab tabID and returns
// without waiting for it.
func (h *House) Start(tabID int, siteID, spiderID string) error {
	steps, ok := h.catalog.Spider(siteID, spiderID)
	if !ok {
		return models.Errorf(models.ErrCodeNotFound, "no spider %s/%s", siteID, spiderID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, busy := h.running[tabID]; busy {
		return models.Errorf(models.ErrCodeSpiderRunning, "spider is already running on tab %d", tabID)
	}
	if h.ctx.Err() != nil {
		return models.Errorf(models.ErrCodeCancelled, "spider house closed")
	}

	ctx, cancel := context.WithCancel(h.ctx)
	r := &run{
		Status: Status{TabID: tabID, SiteID: siteID, SpiderID: spiderID, Started: time.Now()},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	h.running[tabID] = r
	h.log.Log(fmt.Sprintf("Starting spider %s on tab %d", spiderID, tabID))

	go h.run(ctx, r, steps)
	return nil
}

func (h *House) run(ctx context.Context, r *run, steps []*pipeline.Step) {
	defer func() {
		r.cancel()
		h.mu.Lock()
		delete(h.running, r.TabID)
		h.mu.Unlock()
		close(r.done)
	}()

	f := &pipeline.Frame{
		Steps:    steps,
		SiteID:   r.SiteID,
		SpiderID: r.SpiderID,
		TabID:    r.TabID,
	}
	_, err := h.runner.Run(ctx, f, nil)
	switch {
	case err == nil:
		h.log.Log(fmt.Sprintf("Spider %s on tab %d finished", r.SpiderID, r.TabID))
	case errors.Is(err, models.ErrCancelled):
		h.log.Log(fmt.Sprintf("Spider %s on tab %d stopped", r.SpiderID, r.TabID))
	default:
		slog.Error("spider failed", "site", r.SiteID, "spider", r.SpiderID, "tab", r.TabID, "error", err)
		h.log.Log(fmt.Sprintf("Spider %s on tab %d failed: %v", r.SpiderID, r.TabID, err))
	}
}

// Stop cancels the spider on tabID and waits for it to return or for ctx
// to end.
func (h *House) Stop(ctx context.Context, tabID int) error {
	h.mu.Lock()
	r, ok := h.running[tabID]
	h.mu.Unlock()
	if !ok {
		return models.Errorf(models.ErrCodeSpiderNotRunning, "no spider is running on tab %d", tabID)
	}
	r.cancel()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether a spider runs on tabID.
func (h *House) Running(tabID int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.running[tabID]
	return ok
}

// List returns the running spiders ordered by tab.
func (h *House) List() []Status {
	h.mu.Lock()
	out := make([]Status, 0, len(h.running))
	for _, r := range h.running {
		out = append(out, r.Status)
	}
	h.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TabID < out[j].TabID })
	return out
}

// Close stops every spider and waits for them. Start fails afterwards.
func (h *House) Close() {
	h.mu.Lock()
	h.cancel()
	runs := make([]*run, 0, len(h.running))
	for _, r := range h.running {
		runs = append(runs, r)
	}
	h.mu.Unlock()
	for _, r := range runs {
		<-r.done
	}
}
