package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	gwauth "mintgate/gateway/auth"
	"mintgate/gateway/middleware"
	"mintgate/observability/logging"
	telemetry "mintgate/observability/otel"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to the storefront gateway config file")
	flag.Parse()
	path := strings.TrimSpace(*configPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("MINTGATE_STOREFRONT_CONFIG"))
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.Setup(logging.Options{
		Service: "storefront-gateway",
		Env:     cfg.Environment,
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
	})

	otelCfg := telemetry.FromEnv("storefront-gateway", cfg.Environment)
	if otelCfg.Enabled() {
		shutdownTelemetry, err := telemetry.Init(context.Background(), otelCfg)
		if err != nil {
			log.Fatalf("init telemetry: %v", err)
		}
		defer func() {
			_ = shutdownTelemetry(context.Background())
		}()
	}

	store, err := NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open sqlite store: %v", err)
	}
	defer store.Close()

	var persistence gwauth.NoncePersistence
	if strings.TrimSpace(cfg.NonceStorePath) != "" {
		nonceStore, err := gwauth.NewLevelDBNoncePersistence(cfg.NonceStorePath)
		if err != nil {
			log.Fatalf("open nonce store: %v", err)
		}
		defer nonceStore.Close()
		persistence = nonceStore
	}

	tenants := gwauth.NewAuthenticator(gwauth.Options{
		Secrets:       cfg.Secrets(),
		TimestampSkew: cfg.TimestampSkew,
		NonceTTL:      cfg.NonceTTL,
		NonceCapacity: cfg.NonceCapacity,
		Persistence:   persistence,
	})
	if persistence != nil {
		hydrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := tenants.HydrateNonces(hydrateCtx, time.Now().Add(-cfg.NonceTTL)); err != nil {
			logger.Warn("hydrate nonce cache", "error", err)
		}
		cancel()
	}

	admin := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:   cfg.Admin.Enabled,
		Secret:    cfg.Admin.Secret,
		Issuer:    cfg.Admin.Issuer,
		Audience:  cfg.Admin.Audience,
		ClockSkew: cfg.Admin.ClockSkew,
	}, logger)
	limiter := middleware.NewRateLimiter(cfg.RateLimitGroups())
	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: "storefront-gateway",
		LogRequests: true,
		Enabled:     true,
	}, logger)

	node := NewRPCNodeClient(cfg.NodeURL, cfg.NodeAuthToken)
	server := NewServer(node, store, ServerConfig{
		Tenants: tenants,
		Admin:   admin,
		Limiter: limiter,
		Obs:     obs,
		CORS: middleware.CORSConfig{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: cfg.CORS.AllowedMethods,
			AllowedHeaders: cfg.CORS.AllowedHeaders,
		},
		Logger: logger,
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      otelhttp.NewHandler(server.Handler(), "storefront-gateway"),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("storefront gateway listening", "address", cfg.ListenAddress, "node", cfg.NodeURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down storefront gateway")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
