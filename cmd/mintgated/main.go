package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mintgate/config"
	"mintgate/core"
	"mintgate/crypto"
	"mintgate/native/drop"
	"mintgate/observability/logging"
	telemetry "mintgate/observability/otel"
	"mintgate/rpc"
	"mintgate/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configFile := flag.String("config", "./config.toml", "path to the node configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("MINTGATE_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Options{
		Service: "mintgated",
		Env:     env,
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
	})

	if endpoint := strings.TrimSpace(cfg.Telemetry.OTLPEndpoint); endpoint != "" {
		shutdown, err := telemetry.Init(context.Background(), telemetry.Config{
			ServiceName: "mintgated",
			Environment: env,
			Endpoint:    endpoint,
			Insecure:    cfg.Telemetry.OTLPInsecure,
			Headers:     telemetry.ParseHeaders(cfg.Telemetry.OTLPHeaders),
			Metrics:     true,
			Traces:      true,
		})
		if err != nil {
			logger.Error("init telemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = shutdown(context.Background())
		}()
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("open database", "dataDir", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	node, err := core.NewNode(db, core.Options{
		ChainID:     cfg.ChainID,
		NetworkName: cfg.NetworkName,
		Pauses:      cfg.Pauses.Modules(),
		Backlog:     cfg.WSBacklog,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("build node", "error", err)
		os.Exit(1)
	}

	alloc, err := cfg.GenesisAlloc()
	if err != nil {
		logger.Error("parse genesis alloc", "error", err)
		os.Exit(1)
	}
	if len(alloc) > 0 {
		if err := node.InitGenesis(alloc); err != nil {
			logger.Error("apply genesis alloc", "error", err)
			os.Exit(1)
		}
	}

	rpcServer := rpc.NewServer(node, rpc.ServerConfig{
		MintsPerMinute: cfg.RPCRateLimit,
		MintBurst:      cfg.RPCBurst,
	})
	apiServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           rpcServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("rpc server: %w", err)
		}
	}()
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	registry := drop.RegistryAddress()
	logger.Info("mintgated started",
		"rpc", cfg.RPCAddress,
		"metrics", cfg.MetricsAddress,
		"chainId", cfg.ChainID,
		"network", cfg.NetworkName,
		"registry", crypto.MustNewAddress(crypto.MintPrefix, registry[:]).String(),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("fatal error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("rpc shutdown", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics shutdown", "error", err)
	}
}
