package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/config"
	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/dispatch"
	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/export"
	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/metrics"
	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/peer"
	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/rdio"
	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/server"
	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/session"
)

const (
	defaultConfigPath = "config.yml"
	serviceName       = "whackerlink-rdio"
	serviceVersion    = "1.0.0"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", defaultConfigPath, "Path to configuration file")
	flag.StringVar(&configPath, "c", defaultConfigPath, "Path to configuration file (shorthand)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("master", peer.URL(cfg.Master.Address, cfg.Master.Port)),
		slog.String("radio_id", cfg.Master.RadioID),
		slog.Int("talkgroups", len(cfg.Talkgroups)),
		slog.String("rdio_endpoint", cfg.Rdio.Endpoint),
		slog.String("system_id", cfg.Rdio.SystemID),
		slog.Int("export_workers", cfg.Export.Workers),
		slog.Int("export_queue_size", cfg.Export.QueueSize),
		slog.String("log_level", cfg.Logging.Level),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Service stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(reg)

	uploader, err := rdio.NewClient(rdio.Config{
		Endpoint: cfg.Rdio.Endpoint,
		APIKey:   cfg.Rdio.APIKey,
		Timeout:  cfg.Rdio.GetTimeoutDuration(),
	})
	if err != nil {
		return fmt.Errorf("failed to create upload client: %w", err)
	}
	defer uploader.Close()

	logger.Info("Upload client initialized", slog.String("upload_url", uploader.UploadURL()))

	exporter, err := export.NewExporter(export.Config{
		Workers:        cfg.Export.Workers,
		QueueSize:      cfg.Export.QueueSize,
		EnqueueTimeout: cfg.Export.GetEnqueueTimeoutDuration(),
		SpoolDir:       cfg.Export.SpoolDir,
		KeepFailed:     cfg.Export.KeepFailed,
		MaxAttempts:    cfg.Export.MaxAttempts,
		RetryBackoff:   cfg.Export.GetRetryBackoffDuration(),
		SystemID:       cfg.Rdio.SystemID,
		SystemLabel:    cfg.Rdio.SystemLabel,
	}, uploader, logger, appMetrics)
	if err != nil {
		return fmt.Errorf("failed to create exporter: %w", err)
	}
	exporter.Start()

	registry := session.NewRegistry(logger, appMetrics)

	dispatcher := dispatch.NewDispatcher(dispatch.Config{
		RadioID:    cfg.Master.RadioID,
		Talkgroups: cfg.Talkgroups,
	}, registry, exporter, logger, appMetrics)

	client := peer.NewClient(peer.Config{
		URL:          peer.URL(cfg.Master.Address, cfg.Master.Port),
		AuthKey:      cfg.Master.AuthKey,
		ReconnectMin: cfg.Peer.GetReconnectMinDuration(),
		ReconnectMax: cfg.Peer.GetReconnectMaxDuration(),
	}, dispatcher.Handlers(), logger, appMetrics)
	dispatcher.SetSender(client)

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		service := server.ServiceInfo{Name: serviceName, Version: serviceVersion}
		httpServer = server.NewHTTPServer(service, cfg.HTTP, logger, cfg, server.Sources{
			Peer:     client,
			Sessions: registry,
			Exporter: exporter,
			Uploads:  uploader,
			Gatherer: reg,
		}, appMetrics)

		if err := httpServer.Start(); err != nil {
			exporter.Close()
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	logger.Info("Service started successfully, waiting for signals...")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return client.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		if httpServer == nil {
			return nil
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
		return nil
	})

	err = g.Wait()

	logger.Info("Starting graceful shutdown...")

	if n := dispatcher.Shutdown(); n > 0 {
		logger.Info("Queued in-progress calls for export", slog.Int("calls", n))
	}
	exporter.Close()

	stats := uploader.GetStats()
	logger.Info("Final upload statistics",
		slog.Uint64("total_requests", stats.TotalRequests),
		slog.Uint64("success_requests", stats.SuccessRequests),
		slog.Uint64("failed_requests", stats.FailedRequests),
	)

	return err
}
