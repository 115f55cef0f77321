package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"mintgate/observability/logging"
)

const shutdownTimeout = 10 * time.Second

func openDatabase(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		return gorm.Open(postgres.Open(trimmed), &gorm.Config{})
	}
	return gorm.Open(sqlite.Open(trimmed), &gorm.Config{})
}

func main() {
	configPath := flag.String("config", "", "path to the mint-auditd config file")
	flag.Parse()
	path := strings.TrimSpace(*configPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("MINT_AUDITD_CONFIG"))
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.Setup(logging.Options{
		Service: "mint-auditd",
		Env:     cfg.Environment,
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
	})

	db, err := openDatabase(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("open audit database: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		log.Fatalf("migrate audit schema: %v", err)
	}

	store, err := NewCheckpointStore(cfg.CheckpointPath)
	if err != nil {
		log.Fatalf("open checkpoint store: %v", err)
	}
	defer store.Close()

	indexer, err := NewIndexer(db, store, logger)
	if err != nil {
		log.Fatalf("build indexer: %v", err)
	}
	subscriber, err := NewSubscriber(cfg.NodeWSURL, indexer, store, logger, cfg.ReconnectMin, cfg.ReconnectMax)
	if err != nil {
		log.Fatalf("build subscriber: %v", err)
	}
	exporter, err := NewExporter(db, cfg.ExportDir, logger)
	if err != nil {
		log.Fatalf("build exporter: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 3)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := subscriber.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()
	go func() {
		ticker := time.NewTicker(cfg.ExportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if _, err := exporter.Run(ctx, now.Add(-cfg.ExportWindow), now); err != nil {
					logger.Error("scheduled export failed", "error", err)
				}
			}
		}
	}()

	logger.Info("mint-auditd started",
		"listen", cfg.ListenAddress,
		"stream", cfg.NodeWSURL,
		"exportEvery", cfg.ExportInterval,
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("fatal error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
}
