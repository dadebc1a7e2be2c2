package spider

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/webexporter/models"
	"github.com/use-agent/webexporter/pipeline"
)

type catalog map[string][]*pipeline.Step

func (c catalog) Spider(site, id string) ([]*pipeline.Step, bool) {
	s, ok := c[site+"/"+id]
	return s, ok
}

type lines struct {
	mu  sync.Mutex
	all []string
}

func (l *lines) Log(msg string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = append(l.all, msg)
	return int64(len(l.all))
}

func (l *lines) Extend(int64, string) {}

func (l *lines) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.all...)
}

// blockingRunner runs until its context ends or release is closed.
type blockingRunner struct {
	release chan struct{}
	frames  chan *pipeline.Frame
}

func (r *blockingRunner) Run(ctx context.Context, f *pipeline.Frame, _ any) (any, error) {
	r.frames <- f
	select {
	case <-ctx.Done():
		return nil, models.NewError(models.ErrCodeCancelled, "pipeline cancelled", ctx.Err())
	case <-r.release:
		return nil, nil
	}
}

func newHouse(t *testing.T) (*House, *blockingRunner, *lines) {
	t.Helper()
	r := &blockingRunner{release: make(chan struct{}), frames: make(chan *pipeline.Frame, 4)}
	l := &lines{}
	h := NewHouse(catalog{"site/crawl": {{Use: "loop"}}}, r, l)
	t.Cleanup(h.Close)
	return h, r, l
}

func TestStartRunsOnTab(t *testing.T) {
	h, r, l := newHouse(t)

	require.NoError(t, h.Start(3, "site", "crawl"))
	f := <-r.frames
	assert.Equal(t, 3, f.TabID)
	assert.Equal(t, "site", f.SiteID)
	assert.Equal(t, "crawl", f.SpiderID)
	assert.True(t, h.Running(3))
	assert.Equal(t, []Status{{TabID: 3, SiteID: "site", SpiderID: "crawl", Started: h.List()[0].Started}}, h.List())

	close(r.release)
	require.Eventually(t, func() bool { return !h.Running(3) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"Starting spider crawl on tab 3", "Spider crawl on tab 3 finished"}, l.get())
}

func TestStartTwiceOnSameTab(t *testing.T) {
	h, r, _ := newHouse(t)
	require.NoError(t, h.Start(1, "site", "crawl"))
	<-r.frames

	err := h.Start(1, "site", "crawl")
	assert.ErrorIs(t, err, models.ErrSpiderRunning)

	require.NoError(t, h.Start(2, "site", "crawl"))
	<-r.frames
	assert.Len(t, h.List(), 2)
}

func TestStartUnknownSpider(t *testing.T) {
	h, _, _ := newHouse(t)
	assert.ErrorIs(t, h.Start(1, "site", "nope"), models.ErrNotFound)
}

func TestStopCancelsAndWaits(t *testing.T) {
	h, r, l := newHouse(t)
	require.NoError(t, h.Start(5, "site", "crawl"))
	<-r.frames

	require.NoError(t, h.Stop(context.Background(), 5))
	assert.False(t, h.Running(5))
	assert.Contains(t, l.get(), "Spider crawl on tab 5 stopped")

	assert.ErrorIs(t, h.Stop(context.Background(), 5), models.ErrSpiderNotRunning)
}

func TestCloseStopsEverything(t *testing.T) {
	h, r, _ := newHouse(t)
	require.NoError(t, h.Start(1, "site", "crawl"))
	<-r.frames
	h.Close()
	assert.Empty(t, h.List())
	assert.Error(t, h.Start(2, "site", "crawl"))
}
