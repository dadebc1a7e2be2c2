// Package scraper drives a Chromium instance through rod: it owns the tabs
// spiders run in and captures their network traffic for the dispatcher.
package scraper

import (
	"context"
	"log/slog"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/webexporter/models"
)

// Config holds browser launch settings.
type Config struct {
	Headless      bool
	NoSandbox     bool
	Stealth       bool
	Bin           string
	Proxy         string
	ActionTimeout time.Duration
}

// TabInfo describes an open tab.
type TabInfo struct {
	ID    int    `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Browser is a launched Chromium with numbered tabs. It is safe for
// concurrent use.
type Browser struct {
	rod *rod.Browser
	cfg Config

	mu     sync.Mutex
	tabs   map[int]*rod.Page
	next   int
	onOpen func(id int, page *rod.Page)
}

// Launch starts Chromium and connects to it.
func Launch(cfg Config) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}
	if cfg.Stealth {
		l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
		l.Delete(flags.Flag("enable-automation"))
	}
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	rb := rod.New().ControlURL(controlURL)
	if err := rb.Connect(); err != nil {
		return nil, models.NewError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = actionTimeout
	}
	return &Browser{rod: rb, cfg: cfg, tabs: make(map[int]*rod.Page)}, nil
}

// Open creates a tab, navigates it to rawURL and returns its id. referer,
// when set, is sent with every request of the tab.
func (b *Browser) Open(ctx context.Context, rawURL, referer string) (int, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return 0, models.NewError(models.ErrCodeInvalidInput, "invalid url", err)
	}
	page, err := b.rod.Page(proto.TargetCreateTarget{})
	if err != nil {
		return 0, models.NewError(models.ErrCodeBrowserCrash, "failed to create tab", err)
	}
	if b.cfg.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}
	if referer != "" {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: proto.NetworkHeaders{"Referer": gson.New(referer)},
		}.Call(page)
	}

	b.mu.Lock()
	b.next++
	id := b.next
	b.tabs[id] = page
	hook := b.onOpen
	b.mu.Unlock()

	// The capture hook must be in place before the first navigation.
	if hook != nil {
		hook(id, page)
	}
	if err := b.Navigate(ctx, id, rawURL); err != nil {
		return id, err
	}
	slog.Info("tab opened", "tab", id, "url", rawURL)
	return id, nil
}

func (b *Browser) page(id int) (*rod.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.tabs[id]
	if !ok {
		return nil, models.Errorf(models.ErrCodeNotFound, "no tab %d", id)
	}
	return p, nil
}

// Tabs lists the open tabs by id.
func (b *Browser) Tabs() []TabInfo {
	b.mu.Lock()
	ids := make([]int, 0, len(b.tabs))
	for id := range b.tabs {
		ids = append(ids, id)
	}
	b.mu.Unlock()
	sort.Ints(ids)

	out := make([]TabInfo, 0, len(ids))
	for _, id := range ids {
		p, err := b.page(id)
		if err != nil {
			continue
		}
		info := TabInfo{ID: id}
		if ti, err := p.Info(); err == nil {
			info.URL, info.Title = ti.URL, ti.Title
		}
		out = append(out, info)
	}
	return out
}

// pages returns a snapshot of the open tabs.
func (b *Browser) pages() map[int]*rod.Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[int]*rod.Page, len(b.tabs))
	for id, p := range b.tabs {
		out[id] = p
	}
	return out
}

func (b *Browser) setOnOpen(fn func(int, *rod.Page)) {
	b.mu.Lock()
	b.onOpen = fn
	b.mu.Unlock()
}

// CloseTab closes one tab.
func (b *Browser) CloseTab(id int) error {
	p, err := b.page(id)
	if err != nil {
		return err
	}
	b.mu.Lock()
	delete(b.tabs, id)
	b.mu.Unlock()
	return p.Close()
}

// Close closes every tab and the browser.
func (b *Browser) Close() {
	for id, p := range b.pages() {
		if err := p.Close(); err != nil {
			slog.Debug("close tab", "tab", id, "error", err)
		}
	}
	if err := b.rod.Close(); err != nil {
		slog.Warn("close browser", "error", err)
	}
	slog.Info("browser closed")
}
