package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"tagmirror/internal/blobstore"
	"tagmirror/internal/config"
	"tagmirror/internal/domain"
	"tagmirror/internal/httpserver"
	"tagmirror/internal/mastodon"
	"tagmirror/internal/sqlite"
	"tagmirror/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := sqlite.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("open index database: %w", err)
	}
	defer store.Close()

	blobs, err := blobstore.New(cfg.Storage.DataDir, cfg.Storage.CacheSize)
	if err != nil {
		return fmt.Errorf("open content store: %w", err)
	}

	client := mastodon.NewClient(cfg.Mastodon.BaseURL, cfg.Mastodon.UserAgent)

	statusService := domain.NewStatusService(client, blobs, store, store, store, logger)
	hashtagService := domain.NewHashtagService(store, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The sqlite file is disposable: with an empty index, re-index
	// whatever is already on disk before the workers start.
	count, err := store.CountStatuses(ctx)
	if err != nil {
		return fmt.Errorf("count indexed statuses: %w", err)
	}
	if count == 0 {
		logger.Info("index is empty, rebuilding from content store")
		if err := statusService.RebuildIndex(ctx); err != nil {
			return fmt.Errorf("rebuild index: %w", err)
		}
	}

	supervisor := worker.NewSupervisor(logger)
	supervisor.Register(worker.NewTimelineUpdater(cfg.Timeline.UpdateFrequency, statusService, logger))
	supervisor.Register(worker.NewStatusRefresher(cfg.Refresh.Tiers, cfg.Refresh.ListLimit, statusService, logger))
	if cfg.Streaming.Enabled {
		supervisor.Register(mastodon.NewStreamListener(cfg.StreamingURL(), statusService, hashtagService, logger))
	}
	supervisor.Start(ctx)

	server := httpserver.NewServer(cfg, statusService, hashtagService, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("server started", "port", cfg.Port, "instance", cfg.Mastodon.BaseURL)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)

	supervisor.Stop()
	supervisor.Wait()

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}
