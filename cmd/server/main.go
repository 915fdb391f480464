package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"overlay-streamer/internal/overlay"
	"overlay-streamer/internal/platform/config"
	"overlay-streamer/internal/platform/logger"
	"overlay-streamer/internal/platform/metrics"
	"overlay-streamer/internal/server"
	"overlay-streamer/internal/stream"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err := run(cfg, log); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	met := metrics.New()

	artifacts, err := stream.NewArtifacts(cfg.HLSRoot, log)
	if err != nil {
		return err
	}
	sup := stream.NewSupervisor(artifacts, log,
		stream.WithCommand(stream.FFmpegCommand(cfg.FFmpegPath)),
		stream.WithMetrics(met),
	)
	defer sup.StopAll()

	store, err := overlay.Open(ctx, cfg.StoreURI, cfg.MongoDatabase, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			log.Warn("overlay store close failed", "error", err)
		}
	}()

	handler := server.NewRouter(server.Deps{
		Streams:         stream.NewHandler(sup, artifacts, log),
		Overlays:        overlay.NewHandler(overlay.NewService(store, met), log),
		Supervisor:      sup,
		Metrics:         met,
		Log:             log,
		StreamRateLimit: cfg.StreamRateLimit,
	})
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting",
			"addr", cfg.Addr(),
			"hls_root", artifacts.Root(),
			"ffmpeg", cfg.FFmpegPath,
			"reap_interval", cfg.ReapInterval.String(),
			"log_level", cfg.LogLevel,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sup.RunReaper(gctx, cfg.ReapInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, draining connections")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
