package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/use-agent/webexporter/exporter"
)

// Store is the per-site table store used by the store and table_join
// operators.
type Store interface {
	Put(ctx context.Context, extractorID, table string, value any) error
	// PutMany writes every value it can. When some rows fail it returns
	// their count with an error matching models.ErrStorePartialFailure.
	PutMany(ctx context.Context, extractorID, table string, values []any) (failed int, err error)
	GetAll(ctx context.Context, table string) ([]any, error)
}

// Stores hands out the store of a site.
type Stores interface {
	Store(ctx context.Context, siteID string) (Store, error)
}

// Exporter receives export requests.
type Exporter interface {
	Export(ctx context.Context, req exporter.Request) error
}

// Tabs drives the browser tab a spider runs in.
type Tabs interface {
	URL(ctx context.Context, tabID int) (string, error)
	Navigate(ctx context.Context, tabID int, url string) error
	Reload(ctx context.Context, tabID int) error
	Click(ctx context.Context, tabID int, selector string) (bool, error)
}

// Logger is the user-facing progress log. Log returns an id that Extend can
// append to.
type Logger interface {
	Log(msg string) int64
	Extend(id int64, msg string)
}

// Events lets a pipeline wait for named dispatcher events such as
// "<site>::<extractor>::start".
type Events interface {
	Wait(ctx context.Context, name string) error
}

// slogLogger is the Logger used when none is configured.
type slogLogger struct {
	next atomic.Int64
}

func (l *slogLogger) Log(msg string) int64 {
	id := l.next.Add(1)
	slog.Info(msg, "log_id", id)
	return id
}

func (l *slogLogger) Extend(id int64, msg string) {
	slog.Info(msg, "log_id", id)
}
