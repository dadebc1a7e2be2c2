package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/use-agent/webexporter/exporter"
)

func mustSteps(t *testing.T, src string) []*Step {
	t.Helper()
	steps, err := ParseSteps([]byte(src))
	require.NoError(t, err)
	return steps
}

type recordLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordLogger) Log(msg string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, msg)
	return int64(len(l.lines))
}

func (l *recordLogger) Extend(id int64, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines[id-1] += msg
}

func (l *recordLogger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

type fakeStore struct {
	tables  map[string][]any
	puts    []any
	failed  int
	bulkErr error
}

func (s *fakeStore) Put(_ context.Context, _, table string, value any) error {
	s.puts = append(s.puts, value)
	return nil
}

func (s *fakeStore) PutMany(_ context.Context, _, table string, values []any) (int, error) {
	s.puts = append(s.puts, values...)
	return s.failed, s.bulkErr
}

func (s *fakeStore) GetAll(_ context.Context, table string) ([]any, error) {
	return s.tables[table], nil
}

type fakeStores struct {
	store *fakeStore
}

func (f fakeStores) Store(context.Context, string) (Store, error) {
	return f.store, nil
}

type fakeExporter struct {
	reqs []exporter.Request
}

func (e *fakeExporter) Export(_ context.Context, req exporter.Request) error {
	e.reqs = append(e.reqs, req)
	return nil
}

type fakeTabs struct {
	url       string
	navigated []string
	reloads   int
	clicks    int
	clickFn   func(n int) bool
}

func (t *fakeTabs) URL(context.Context, int) (string, error) { return t.url, nil }

func (t *fakeTabs) Navigate(_ context.Context, _ int, url string) error {
	t.navigated = append(t.navigated, url)
	return nil
}

func (t *fakeTabs) Reload(context.Context, int) error {
	t.reloads++
	return nil
}

func (t *fakeTabs) Click(context.Context, int, string) (bool, error) {
	t.clicks++
	return t.clickFn(t.clicks), nil
}

// fakeEvents fires the events listed in ready immediately and blocks on
// everything else until ctx ends.
type fakeEvents struct {
	mu     sync.Mutex
	ready  map[string]bool
	waited []string
}

func (e *fakeEvents) Wait(ctx context.Context, name string) error {
	e.mu.Lock()
	e.waited = append(e.waited, name)
	ok := e.ready[name]
	e.mu.Unlock()
	if ok {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}
