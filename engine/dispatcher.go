// Package engine matches captured network exchanges against extractor
// rules and runs the matching pipelines on the captured bodies.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/use-agent/webexporter/pipeline"
)

// Dispatcher is stopped until Start. While running it receives exchanges
// from its Source; pipelines run on tracked goroutines so the capture path
// only pays for streaming the body.
type Dispatcher struct {
	rules  *Registry
	interp *pipeline.Interpreter
	source Source
	events *Events
	log    pipeline.Logger

	mu         sync.Mutex
	running    bool
	closed     bool
	exportKind string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a stopped Dispatcher. log may be nil.
func NewDispatcher(rules *Registry, interp *pipeline.Interpreter, source Source, events *Events, log pipeline.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		rules:      rules,
		interp:     interp,
		source:     source,
		events:     events,
		log:        log,
		exportKind: "url",
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start attaches to the source. Starting a running dispatcher is a no-op.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("engine: dispatcher closed")
	}
	if d.running {
		return nil
	}
	if err := d.source.Attach(d.Handle); err != nil {
		return fmt.Errorf("engine: attach source: %w", err)
	}
	d.running = true
	slog.Info("dispatcher started", "rules", len(d.rules.Rules()))
	return nil
}

// Stop detaches from the source. In-flight pipelines keep running.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return nil
	}
	d.running = false
	if err := d.source.Detach(); err != nil {
		return fmt.Errorf("engine: detach source: %w", err)
	}
	slog.Info("dispatcher stopped")
	return nil
}

// Running reports whether the dispatcher is attached.
func (d *Dispatcher) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// SetExportKind sets the export kind used by export steps that name none.
func (d *Dispatcher) SetExportKind(kind string) {
	d.mu.Lock()
	d.exportKind = kind
	d.mu.Unlock()
}

// ExportKind returns the current default export kind.
func (d *Dispatcher) ExportKind() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exportKind
}

// Close stops the dispatcher, cancels in-flight pipelines and waits for
// them to return.
func (d *Dispatcher) Close() error {
	err := d.Stop()
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cancel()
	d.wg.Wait()
	return err
}

// Handle processes one exchange. It is the Handler given to the Source.
func (d *Dispatcher) Handle(ex *Exchange) {
	if !d.Running() || strings.EqualFold(ex.Method, "OPTIONS") {
		return
	}
	matches := d.rules.Match(ex.URL)
	if len(matches) == 0 {
		return
	}

	chunks, err := d.capture(ex)
	if err != nil {
		slog.Error("capture failed", "url", ex.URL, "request_id", ex.ID, "error", err)
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	kind := d.exportKind
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.runRules(d.ctx, ex, chunks, matches, kind)
	}()
}

// capture forwards the body chunk by chunk while keeping a copy.
func (d *Dispatcher) capture(ex *Exchange) ([][]byte, error) {
	if ex.Open == nil {
		return nil, errors.New("exchange cannot be filtered")
	}
	filter, err := ex.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := filter.Disconnect(); err != nil {
			slog.Warn("stream disconnect failed", "url", ex.URL, "error", err)
		}
	}()

	var chunks [][]byte
	for {
		chunk, err := filter.Next(d.ctx)
		if errors.Is(err, io.EOF) {
			return chunks, nil
		}
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
		if err := filter.Write(chunk); err != nil {
			return nil, err
		}
	}
}

// Result is the outcome of one rule run by Extract.
type Result struct {
	SiteID      string `json:"site_id"`
	ExtractorID string `json:"extractor_id"`
	Model       any    `json:"model,omitempty"`
	Err         error  `json:"-"`
}

// Extract runs the rules matching ex synchronously and returns their
// results. It does not require the dispatcher to be running.
func (d *Dispatcher) Extract(ctx context.Context, ex *Exchange) ([]Result, error) {
	matches := d.rules.Match(ex.URL)
	if len(matches) == 0 {
		return nil, nil
	}
	chunks, err := d.capture(ex)
	if err != nil {
		return nil, fmt.Errorf("engine: capture %s: %w", ex.URL, err)
	}
	return d.runRules(ctx, ex, chunks, matches, d.ExportKind()), nil
}

// runRules runs every matched rule in order. A failing rule is logged and
// does not stop the others.
func (d *Dispatcher) runRules(ctx context.Context, ex *Exchange, chunks [][]byte, matches []Match, kind string) []Result {
	base := &pipeline.Frame{
		TabID: ex.TabID,
		Request: &pipeline.Request{
			ID:            ex.ID,
			URL:           ex.URL,
			Method:        ex.Method,
			Type:          ex.Type,
			Referer:       ex.Referer,
			CookieStoreID: ex.CookieStoreID,
		},
		Chunks:     chunks,
		ExportKind: kind,
	}
	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		f := base.Clone()
		f.Steps = m.Rule.Steps
		f.SiteID = m.Rule.SiteID
		f.ExtractorID = m.Rule.ExtractorID
		f.Match = m.Groups

		if d.events != nil {
			d.events.Emit(pipeline.EventName(f.SiteID, f.ExtractorID))
		}
		slog.Debug("running extractor", "site", f.SiteID, "extractor", f.ExtractorID, "url", ex.URL)
		model, err := d.interp.Run(ctx, f, nil)
		if err != nil {
			slog.Error("extractor failed",
				"site", f.SiteID, "extractor", f.ExtractorID, "url", ex.URL, "error", err)
			if d.log != nil {
				d.log.Log(fmt.Sprintf("%s/%s failed: %v", f.SiteID, f.ExtractorID, err))
			}
		}
		results = append(results, Result{SiteID: f.SiteID, ExtractorID: f.ExtractorID, Model: model, Err: err})
	}
	return results
}
