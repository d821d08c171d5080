package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/use-agent/adsaver/api"
	"github.com/use-agent/adsaver/api/handler"
	"github.com/use-agent/adsaver/cache"
	"github.com/use-agent/adsaver/config"
	"github.com/use-agent/adsaver/history"
	"github.com/use-agent/adsaver/quota"
	"github.com/use-agent/adsaver/scraper"
	"github.com/use-agent/adsaver/store"
	"github.com/use-agent/adsaver/webhook"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return serve(ctx, configFrom(cmd))
		},
	}
}

// newExtractor wires the browser engine, pipeline and extractor.
func newExtractor(cfg *config.Config) (*scraper.Manager, *scraper.Extractor) {
	classifier := scraper.NewClassifier(cfg.Pipeline)
	manager := scraper.NewManager(cfg.Browser, classifier)
	pipeline := scraper.NewPipeline(cfg.Pipeline, scraper.NewHeuristics(cfg.Pipeline.MediaCDN))
	return manager, scraper.NewExtractor(manager, pipeline, cfg.Pipeline.RequestTimeout)
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("adsaver starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxSessions", cfg.Browser.MaxSessions,
		"redis", cfg.Redis.Host != "",
	)

	// ── 1. Browser engine ───────────────────────────────────────────
	manager, extractor := newExtractor(cfg)
	if err := manager.Start(); err != nil {
		return fmt.Errorf("starting browser engine: %w", err)
	}
	defer manager.Close()

	// ── 2. Storage, quotas and history ──────────────────────────────
	st := store.New(cfg.Redis)
	defer st.Close()
	pingCtx, cancelPing := context.WithTimeout(ctx, 3*time.Second)
	if err := st.Ping(pingCtx); err != nil {
		slog.Warn("store not reachable yet, continuing", "error", err)
	}
	cancelPing()

	qs := quota.New(st, cfg.Quota)
	hs := history.New(st, cfg.History)

	// ── 3. Cache, batches and downloads ─────────────────────────────
	cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	go cc.Run(ctx, 5*time.Minute)

	batches := handler.NewBatches(extractor, hs, webhook.NewNotifier(cfg.Batch.WebhookSecret), cfg.Batch)
	go batches.Run(ctx)

	downloader, err := scraper.NewDownloader(cfg.Download, cfg.Browser.UserAgent, cfg.Browser.Proxy)
	if err != nil {
		return err
	}
	defer downloader.Close()

	// ── 4. Router and server ────────────────────────────────────────
	router := api.NewRouter(cfg, &api.Services{
		Engine:     manager,
		Parser:     &handler.Parser{Extractor: extractor, Cache: cc, Quota: qs, History: hs},
		Batches:    batches,
		Downloader: downloader,
		Quota:      qs,
		History:    hs,
		StartTime:  time.Now(),
		Version:    version,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// ── 5. Graceful shutdown ────────────────────────────────────────
	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// manager.Close() runs via defer and kills Chrome.
	slog.Info("adsaver stopped")
	return nil
}
