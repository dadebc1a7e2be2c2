package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/webexporter/api"
	"github.com/use-agent/webexporter/config"
	"github.com/use-agent/webexporter/downloader"
	"github.com/use-agent/webexporter/engine"
	"github.com/use-agent/webexporter/exporter"
	"github.com/use-agent/webexporter/logger"
	"github.com/use-agent/webexporter/pipeline"
	"github.com/use-agent/webexporter/scraper"
	"github.com/use-agent/webexporter/sites"
	"github.com/use-agent/webexporter/spider"
	"github.com/use-agent/webexporter/store"
	_ "github.com/use-agent/webexporter/store/postgres"
	_ "github.com/use-agent/webexporter/store/sqlite"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("webexporter starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"sites", cfg.Sites.Dir,
		"store", cfg.Store.Kind,
	)

	// ── 3. Load site definitions and build the rule registry ────────
	catalog, err := sites.Load(cfg.Sites.Dir)
	if err != nil {
		slog.Error("failed to load sites", "error", err)
		os.Exit(1)
	}
	rules := engine.NewRegistry()
	if err := catalog.Register(rules); err != nil {
		slog.Error("failed to register extractors", "error", err)
		os.Exit(1)
	}
	slog.Info("sites loaded", "sites", len(catalog.Sites()), "rules", len(rules.Rules()))

	// ── 4. Collaborators ────────────────────────────────────────────
	hub := logger.NewHub(cfg.Log.History)
	stores := store.NewRegistry(store.Config{
		Kind: cfg.Store.Kind,
		Dir:  cfg.Store.Dir,
		DSN:  cfg.Store.DSN,
	}, catalog)
	defer stores.CloseAll()

	exports := exporter.New(downloader.New(downloader.Config{
		Dir:      cfg.Download.Dir,
		Rate:     cfg.Download.Rate,
		Burst:    cfg.Download.Burst,
		Timeout:  cfg.Download.Timeout,
		MaxBytes: cfg.Download.MaxBytes,
	}))
	events := engine.NewEvents()

	opts := []pipeline.Option{
		pipeline.WithStores(stores),
		pipeline.WithExporter(exports),
		pipeline.WithLogger(hub),
		pipeline.WithEvents(events),
	}
	deps := api.Deps{Export: exports, Logs: hub, Sites: catalog}

	// ── 5. Browser (optional) ───────────────────────────────────────
	var source engine.Source = engine.NewMemorySource()
	if cfg.Browser.Enabled {
		b, err := scraper.Launch(scraper.Config{
			Headless:      cfg.Browser.Headless,
			NoSandbox:     cfg.Browser.NoSandbox,
			Stealth:       cfg.Browser.Stealth,
			Bin:           cfg.Browser.BrowserBin,
			Proxy:         cfg.Browser.Proxy,
			ActionTimeout: cfg.Browser.ActionTimeout,
		})
		if err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer b.Close()

		source = scraper.NewCapture(b, scraper.CaptureOptions{
			BlockAds:   cfg.Browser.BlockAds,
			BlockTypes: cfg.Browser.BlockedResourceTypes,
		})
		opts = append(opts, pipeline.WithTabs(b))
		deps.Tabs = b
	} else {
		slog.Warn("browser disabled, only the extract endpoint can feed extractors")
	}

	// ── 6. Engine ───────────────────────────────────────────────────
	interp := pipeline.New(opts...)
	dispatcher := engine.NewDispatcher(rules, interp, source, events, hub)
	house := spider.NewHouse(catalog, interp, hub)
	deps.Recorder = dispatcher
	deps.Spiders = house

	// ── 7. Setup router and start HTTP server ───────────────────────
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	router := api.NewRouter(ctx, deps, cfg, time.Now())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 8. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Ends the log streams, which would otherwise hold Shutdown open.
	stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	house.Close()
	if err := dispatcher.Close(); err != nil {
		slog.Error("dispatcher close", "error", err)
	}
	// Stores and the browser close via defer.
	slog.Info("webexporter stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
