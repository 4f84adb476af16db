package main

import (
	"context"   // Lifecycle and Redis ping
	"errors"    // Error inspection
	"net/http"  // HTTP server
	"os"        // Signals
	"os/signal" // Signal handling
	"syscall"   // SIGTERM
	"time"      // Shutdown timeout

	"digital_wallet/internal/api"        // Custom package for API handlers
	"digital_wallet/internal/config"     // Custom package for configuration
	"digital_wallet/internal/db"         // Database connection
	"digital_wallet/internal/fraud"      // Fraud scorer, scanner and scheduler
	"digital_wallet/internal/ledger"     // Ledger engine and review resolver
	"digital_wallet/internal/metrics"    // Prometheus collectors
	"digital_wallet/internal/repository" // Storage access

	"github.com/gin-gonic/gin"                                  // Gin web framework
	"github.com/prometheus/client_golang/prometheus"            // Metrics registry
	"github.com/prometheus/client_golang/prometheus/collectors" // Runtime collectors
	"github.com/redis/go-redis/v9"                              // Redis client
	"github.com/sirupsen/logrus"                                // Logrus for structured logging
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.IsProd {
		logrus.SetFormatter(&logrus.JSONFormatter{}) // Machine readable logs in production
	}
	if cfg.JWTSecret == "" {
		logrus.Fatal("JWT_SECRET must be set")
	}

	// Connect to the database
	gdb, err := db.Open(cfg)
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}

	// Setup Redis client; without REDIS_ADDR caching, idempotency and the scan lock are off
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr, // Redis server address
			Password: cfg.RedisPass, // Redis password
			DB:       cfg.RedisDB,   // Redis database number
		})
		// Test Redis connection
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logrus.Fatalf("failed to connect to Redis: %v", err)
		}
	} else {
		logrus.Warn("REDIS_ADDR not set, running without cache and idempotency keys")
	}

	// Metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Storage, scoring and the ledger
	users := repository.NewUserRepository(gdb)
	wallets := repository.NewWalletStore(gdb)
	txs := repository.NewTransactionRepository(gdb)
	scorer := fraud.NewScorer(cfg.Fraud)
	engine := ledger.NewEngine(gdb, wallets, txs, users, scorer, ledger.Options{
		HistoryWindow: cfg.Fraud.HistoryWindow, // History used for synchronous scoring
		Metrics:       m,                       // Prometheus collectors
	})
	resolver := ledger.NewResolver(engine)
	scanner := fraud.NewScanner(txs, scorer, fraud.ScannerOptions{
		Lookback:      cfg.Fraud.ScanLookback,  // Age of re-scored transactions
		HistoryWindow: cfg.Fraud.HistoryWindow, // History per re-scored transaction
		Metrics:       m,                       // Prometheus collectors
	})
	scheduler := fraud.NewScheduler(scanner, cfg.Fraud.ScanInterval, fraud.NewRedisLocker(redisClient, "lock:fraud-scan"), nil)

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}
	r := api.NewRouter(api.Deps{
		Engine:       engine,
		Resolver:     resolver,
		Scheduler:    scheduler,
		Users:        users,
		Wallets:      wallets,
		Transactions: txs,
		Redis:        redisClient,
		Metrics:      m,
		Gatherer:     registry,
		JWTSecret:    cfg.JWTSecret,
	})
	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := scheduler.Start(ctx); err != nil {
		logrus.Fatalf("failed to start fraud scan scheduler: %v", err)
	}

	srv := &http.Server{Addr: ":" + cfg.AppPort, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logrus.WithField("port", cfg.AppPort).Info("Server running") // Log server start
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done() // Wait for SIGINT or SIGTERM
	logrus.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("HTTP shutdown failed")
	}
	scheduler.Stop() // Waits for an in-flight scan
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
