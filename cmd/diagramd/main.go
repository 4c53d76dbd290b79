// Package main implements the entry point for the diagramd service: the
// websocket gateway and graph core behind the visual diagram editor.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/sorryhyun/DiPeO-sub002/canvas"
	"github.com/sorryhyun/DiPeO-sub002/config"
	"github.com/sorryhyun/DiPeO-sub002/diagramstore"
	"github.com/sorryhyun/DiPeO-sub002/gateway/ws"
	"github.com/sorryhyun/DiPeO-sub002/graphstore"
	"github.com/sorryhyun/DiPeO-sub002/metric"
	"github.com/sorryhyun/DiPeO-sub002/natsclient"
	"github.com/sorryhyun/DiPeO-sub002/registry"
	"github.com/sorryhyun/DiPeO-sub002/serializer"
	"github.com/sorryhyun/DiPeO-sub002/validation"
)

const (
	Version = "0.1.0"
	appName = "diagramd"

	shutdownTimeout = 10 * time.Second
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to JSON configuration file")
	envFile := flag.String("env-file", "", "path to .env file with DIPEO_* overrides")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			return fmt.Errorf("loading env file: %w", err)
		}
	} else {
		// Best effort; a missing .env is not an error.
		_ = godotenv.Load()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	slog.Info("Starting diagramd", "version", Version, "listen_addr", cfg.ListenAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsRegistry := metric.NewMetricsRegistry()
	metrics := metricsRegistry.CoreMetrics()

	reg, err := registry.Builtin()
	if err != nil {
		return err
	}

	natsClient := natsclient.NewClient(cfg.NATSURL,
		natsclient.WithClientName(appName),
		natsclient.WithClientLogger(logger),
	)
	if err := natsClient.Connect(ctx); err != nil {
		return err
	}
	defer func() { _ = natsClient.Close() }()

	bucket, err := natsClient.EnsureKVBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "persisted diagrams",
	})
	if err != nil {
		return err
	}
	diagrams := diagramstore.NewStore(natsClient.NewKVStore(bucket),
		diagramstore.WithLogger(logger))

	store := graphstore.NewStore(
		graphstore.WithRegistry(reg),
		graphstore.WithLogger(logger),
		graphstore.WithMetrics(metrics),
		graphstore.WithHistoryDepth(cfg.HistoryDepth),
	)

	adapter, err := canvas.NewAdapter(
		canvas.WithCacheSize(cfg.CacheSize),
		canvas.WithAdapterLogger(logger),
	)
	if err != nil {
		return err
	}
	defer func() { _ = adapter.Close() }()

	batcher := canvas.NewPositionBatcher(store,
		canvas.WithFrameInterval(cfg.FrameInterval()),
		canvas.WithBatcherLogger(logger),
	)
	defer batcher.Close()

	gateway := ws.NewGateway(
		store,
		adapter,
		batcher,
		validation.NewValidator(validation.WithMetrics(metrics)),
		serializer.NewSerializer(reg,
			serializer.WithLogger(logger),
			serializer.WithMetrics(metrics)),
		diagrams,
		ws.WithLogger(logger),
		ws.WithMetrics(metrics),
	)
	defer gateway.Close()

	mux := http.NewServeMux()
	mux.Handle("/ws", gateway)
	mux.Handle("/metrics", metricsRegistry.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !natsClient.IsConnected() {
			http.Error(w, "nats disconnected", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
