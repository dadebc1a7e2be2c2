package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/use-agent/webexporter/exporter"
	"github.com/use-agent/webexporter/jsonpath"
	"github.com/use-agent/webexporter/models"
	"github.com/use-agent/webexporter/pyformat"
)

// DefaultWaitTimeout bounds a wait on an extractor event when the step sets
// no timeout.
const DefaultWaitTimeout = 30 * time.Second

func (in *Interpreter) opExport(ctx context.Context, f *Frame, s *Step, input, model any) (any, error) {
	if in.exporter == nil {
		return nil, missing(s, "exporter")
	}
	items, ok := jsonpath.Slice(input)
	if !ok {
		items = []any{input}
	}
	kind := s.Kind
	if kind == "" {
		kind = f.ExportKind
	}
	req := exporter.Request{
		Kind:       kind,
		Items:      items,
		Filename:   s.Filename,
		DefaultExt: s.DefaultExt,
		Context:    model,
	}
	if f.Request != nil {
		req.Referer = f.Request.URL
		req.CookieStoreID = f.Request.CookieStoreID
	}
	return nil, in.exporter.Export(ctx, req)
}

// opWait blocks until every configured condition holds: the extractor event
// fired and/or the delay elapsed.
func (in *Interpreter) opWait(ctx context.Context, f *Frame, s *Step, _, _ any) (any, error) {
	if s.Extractor == "" && s.Seconds <= 0 {
		return nil, invalid(s, "requires extractor or seconds")
	}
	g, gctx := errgroup.WithContext(ctx)

	if s.Extractor != "" {
		if in.events == nil {
			return nil, missing(s, "event source")
		}
		timeout := DefaultWaitTimeout
		if s.Timeout > 0 {
			timeout = time.Duration(s.Timeout) * time.Millisecond
		}
		name := EventName(f.SiteID, s.Extractor)
		g.Go(func() error {
			wctx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			err := in.events.Wait(wctx, name)
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return models.Errorf(models.ErrCodeWaitTimeout, "no %s event within %s", name, timeout)
			}
			return err
		})
	}
	if s.Seconds > 0 {
		d := time.Duration(s.Seconds * float64(time.Second))
		g.Go(func() error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx.Err())
		}
		return nil, err
	}
	return nil, nil
}

// EventName is the name of the event emitted when an extractor of a site
// starts running.
func EventName(siteID, extractorID string) string {
	return siteID + "::" + extractorID + "::start"
}

func (in *Interpreter) opSpiderRefresh(ctx context.Context, f *Frame, s *Step, input, _ any) (any, error) {
	if in.tabs == nil {
		return nil, missing(s, "tabs")
	}
	if s.URL == "" {
		in.log.Log("spider_refresh: reloading tab")
		return nil, in.tabs.Reload(ctx, f.TabID)
	}

	fields := f.Fields()
	if m, ok := input.(map[string]any); ok {
		maps.Copy(fields, m)
	}
	target, err := pyformat.Format(s.URL, fields)
	if err != nil {
		return nil, models.NewError(models.ErrCodeInvalidStep, "spider_refresh: url template", err)
	}
	current, err := in.tabs.URL(ctx, f.TabID)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(current)
	if err != nil {
		return nil, fmt.Errorf("spider_refresh: tab url: %w", err)
	}
	ref, err := base.Parse(target)
	if err != nil {
		return nil, models.NewError(models.ErrCodeInvalidStep, "spider_refresh: bad url "+target, err)
	}
	in.log.Log("spider_refresh: navigating to " + ref.String())
	return nil, in.tabs.Navigate(ctx, f.TabID, ref.String())
}

// opSpiderClick never fails the run; whether the click happened is left in
// f.TestResult for a following if/elif.
func (in *Interpreter) opSpiderClick(ctx context.Context, f *Frame, s *Step, _, _ any) (any, error) {
	if in.tabs == nil {
		return nil, missing(s, "tabs")
	}
	ok, err := in.tabs.Click(ctx, f.TabID, s.Selector)
	if err != nil {
		slog.Error("spider_click failed", "tab", f.TabID, "selector", s.Selector, "error", err)
		ok = false
	} else if ok {
		in.log.Log("spider_click: success")
	} else {
		in.log.Log("spider_click: failed")
	}
	f.TestResult = ok
	return nil, nil
}

func (in *Interpreter) opDebug(_ context.Context, f *Frame, s *Step, input, _ any) (any, error) {
	slog.Debug("pipeline debug",
		"site", f.SiteID, "extractor", f.ExtractorID, "spider", f.SpiderID,
		"step", s.Use, "input", input)
	msg := s.Message
	if msg == "" {
		msg = "DEBUG: {0}"
	}
	text, err := pyformat.Format(msg, input)
	if err != nil {
		text = msg + " " + jsonpath.Stringify(input)
	}
	in.log.Log(text)
	return nil, nil
}

func (in *Interpreter) opConst(_ context.Context, _ *Frame, s *Step, _, _ any) (any, error) {
	return s.Value, nil
}
