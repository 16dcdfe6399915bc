// Command banca-gateway serves the banking front-end: accounts through a
// layered cache and transfers through the idempotent submission pipeline.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"banca-client/pkg/api"
	"banca-client/pkg/backend"
	"banca-client/pkg/cache"
	"banca-client/pkg/cache/memory"
	"banca-client/pkg/cache/redis"
	"banca-client/pkg/chain"
	"banca-client/pkg/config"
	"banca-client/pkg/directory"
	"banca-client/pkg/logging"
	"banca-client/pkg/metrics"
	metricsmemory "banca-client/pkg/metrics/memory"
	promMetrics "banca-client/pkg/metrics/prometheus"
	"banca-client/pkg/session"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	// A missing .env is fine; the environment may already be set
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLoggerFromEnv(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	logging.SetGlobal(logger)

	logger.Info("starting banca gateway",
		zap.String("api", cfg.APIBaseURL),
		zap.String("max_transfer", cfg.Transfers.MaxAmount.String()),
	)

	// Metrics: Prometheus for scraping, in-memory for /metrics/json
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promCollector := promMetrics.NewPrometheusCollector("banca")
	if err := promCollector.Register(registry); err != nil {
		logger.Fatal("Failed to register metrics", zap.Error(err))
	}
	memCollector := metricsmemory.NewMemoryCollector()
	collector := metrics.Multi{promCollector, memCollector}

	// Layer 1: per-process memory
	layers := []cache.CacheLayer{
		memory.NewMemoryCache(memory.MemoryCacheConfig{
			Name:            "L1-memory",
			MaxSize:         cfg.Cache.MaxEntries,
			DefaultTTL:      cfg.Cache.AccountsTTL,
			CleanupInterval: time.Minute,
		}),
	}

	// Layer 2: shared Redis, optional
	var storeOpts []directory.StoreOption
	if cfg.Cache.RedisAddr != "" {
		redisConfig := redis.DefaultRedisCacheConfig()
		redisConfig.Name = "L2-redis"
		redisConfig.Addr = cfg.Cache.RedisAddr
		redisConfig.Password = cfg.Cache.RedisPassword
		redisConfig.KeyPrefix = cfg.Cache.RedisKeyPrefix
		redisConfig.DefaultTTL = cfg.Cache.AccountsTTL

		redisCache, err := redis.NewRedisCache(redisConfig)
		if err != nil {
			logger.Warn("Redis unavailable, continuing with memory cache only", zap.Error(err))
		} else {
			layers = append(layers, redisCache)
			storeOpts = append(storeOpts, directory.WithPurger(redisCache))
		}
	}

	// The per-process layer expires sooner than the shared one
	var strategy chain.TTLStrategy = chain.UniformTTLStrategy{}
	if len(layers) > 1 {
		strategy = chain.DecayingTTLStrategy{DecayFactor: 0.5}
	}

	cacheChain, err := chain.NewWithConfig(chain.Config{
		TTLStrategy: strategy,
		Metrics:     collector,
		Logger:      logger.Named("chain"),
	}, layers...)
	if err != nil {
		logger.Fatal("Failed to create cache chain", zap.Error(err))
	}

	storeOpts = append(storeOpts, directory.WithLogger(logger.Named("directory")))
	store := directory.NewStore(cacheChain, directory.Config{
		AccountsTTL:     cfg.Cache.AccountsTTL,
		TransactionsTTL: cfg.Cache.TransactionsTTL,
		KeyPrefix:       directory.DefaultConfig().KeyPrefix,
	}, storeOpts...)

	client, err := backend.New(backend.Config{
		BaseURL:     cfg.APIBaseURL,
		Environment: cfg.Environment,
		Timeout:     cfg.Client.Timeout,
	}, backend.WithMetrics(collector), backend.WithLogger(logger.Named("backend")))
	if err != nil {
		logger.Fatal("Failed to create backend client", zap.Error(err))
	}

	probeCtx, probeCancel := context.WithTimeout(context.Background(), cfg.Client.Timeout)
	if err := client.Health(probeCtx); err != nil {
		logger.Warn("Backend not reachable at startup", zap.String("baseURL", cfg.APIBaseURL), zap.Error(err))
	}
	probeCancel()

	verifier := tokenVerifier(cfg.Auth, logger.Logger)

	server, err := api.NewServer(api.Dependencies{
		Config:    cfg,
		Verifier:  verifier,
		Backend:   client,
		Store:     store,
		Metrics:   collector,
		Snapshots: memCollector,
		Registry:  registry,
		Logger:    logger.Named("api"),
	}, api.ServerConfigFrom(cfg.Server))
	if err != nil {
		logger.Fatal("Failed to create gateway", zap.Error(err))
	}

	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start gateway", zap.Error(err))
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gateway")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		logger.Error("Gateway shutdown error", zap.Error(err))
	}
	if err := cacheChain.Flush(2 * time.Second); err != nil {
		logger.Warn("Pending cache writes not flushed", zap.Error(err))
	}
	if err := cacheChain.Close(); err != nil {
		logger.Warn("Cache close error", zap.Error(err))
	}

	logger.Info("gateway stopped")
}

// tokenVerifier prefers the identity provider's key set; a shared secret is
// only accepted outside prod (config validation enforces that).
func tokenVerifier(auth config.AuthConfig, logger *zap.Logger) *session.Verifier {
	var opts []session.VerifierOption
	if auth.Issuer != "" {
		opts = append(opts, session.WithIssuer(auth.Issuer))
	}
	if auth.Audience != "" {
		opts = append(opts, session.WithAudience(auth.Audience))
	}

	switch {
	case auth.JWKSURL != "":
		logger.Info("verifying tokens against key set", zap.String("jwks", auth.JWKSURL))
		return session.NewJWKSVerifier(auth.JWKSURL, nil, opts...)
	case auth.HMACSecret != "":
		logger.Warn("verifying tokens with a shared secret")
		return session.NewHMACVerifier([]byte(auth.HMACSecret), opts...)
	default:
		logger.Fatal("No token verification configured; set auth.jwks_url or auth.hmac_secret")
		return nil
	}
}
