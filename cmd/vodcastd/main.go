package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"vodcast/internal/config"
	"vodcast/internal/coordinator"
	"vodcast/internal/extractor"
	"vodcast/internal/filestore"
	"vodcast/internal/metrics"
	"vodcast/internal/pathutil"
	"vodcast/internal/pipeline"
	"vodcast/internal/reconcile"
	"vodcast/internal/rss"
	"vodcast/internal/scheduler"
	"vodcast/internal/server"
	"vodcast/internal/store"
)

const (
	maxDownloadErrors = 3
	shutdownTimeout   = 15 * time.Second
)

func main() {
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(jsonHandler))

	settings, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if settings.LogFormat == "text" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	paths := pathutil.New(settings.DataDir, settings.BaseURL)
	files := filestore.New()

	s, err := store.Open(ctx, paths.DatabasePath("vodcast.sqlite"))
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer s.Close()

	ytdlp := extractor.NewYtDlp("")
	ytdlp.PotProviderURL = settings.PotProviderURL
	x := extractor.NewBreakerWrapper(ytdlp)

	enqueuer := pipeline.NewEnqueuer(s, x)
	downloader := pipeline.NewDownloader(s, x, files, paths, maxDownloadErrors, settings.CookiesPath)
	pruner := pipeline.NewPruner(s, files, paths)
	rssGen := rss.NewGenerator(paths, files)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	coord := coordinator.New(s, x, enqueuer, downloader, pruner, rssGen)
	coord.Metrics = m

	if settings.ConfigFile != "" {
		feeds, err := config.LoadFeeds(settings.ConfigFile)
		if err != nil {
			slog.Error("failed to load feed configuration", "error", err)
			os.Exit(1)
		}
		if err := reconcile.New(s).Reconcile(ctx, feeds); err != nil {
			slog.Error("failed to reconcile feed configuration", "error", err)
			os.Exit(1)
		}
		slog.Info("reconciled configured feeds", "count", len(feeds))
	}

	sch := scheduler.New(coord, s, slog.Default())
	sch.SetMetrics(m)
	if err := sch.Start(ctx); err != nil {
		slog.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sch.Stop(context.Background())

	srv, err := server.New(server.Config{
		Host:            settings.ServerHost,
		PublicPort:      settings.ServerPort,
		AdminPort:       settings.AdminServerPort,
		TrustedProxies:  settings.TrustedProxies,
		Store:           s,
		Paths:           paths,
		Coordinator:     coord,
		Scheduler:       sch,
		MetricsRegistry: reg,
	})
	if err != nil {
		slog.Error("failed to build http servers", "error", err)
		os.Exit(1)
	}

	errCh := make(chan error, 2)
	srv.Start(errCh)

	slog.Info("vodcast started", "data_dir", settings.DataDir)

	select {
	case <-ctx.Done():
	case sig := <-sigChan:
		slog.Info("received signal, shutting down gracefully", "signal", sig.String())
		cancel()
	case err := <-errCh:
		slog.Error("http server failed", "error", err)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during http shutdown", "error", err)
		os.Exit(2)
	}
}
