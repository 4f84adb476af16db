package api

import (
	"net/http" // HTTP status codes

	"digital_wallet/internal/domain"     // Transaction kinds
	"digital_wallet/internal/fraud"      // Fraud scan scheduler
	"digital_wallet/internal/ledger"     // Ledger engine and review resolver
	"digital_wallet/internal/metrics"    // Prometheus collectors
	"digital_wallet/internal/middleware" // Custom package for middleware
	"digital_wallet/internal/repository" // Read models

	"github.com/gin-gonic/gin"                                // Gin web framework
	"github.com/prometheus/client_golang/prometheus"          // Metrics registry
	"github.com/prometheus/client_golang/prometheus/promhttp" // Metrics endpoint
	"github.com/redis/go-redis/v9"                            // Redis client
)

// Deps is everything the HTTP surface talks to
type Deps struct {
	Engine       *ledger.Engine
	Resolver     *ledger.Resolver
	Scheduler    *fraud.Scheduler
	Users        *repository.UserRepository
	Wallets      *repository.WalletStore
	Transactions *repository.TransactionRepository
	Redis        *redis.Client       // Optional, disables caching and idempotency when nil
	Metrics      *metrics.Metrics    // Optional
	Gatherer     prometheus.Gatherer // Serves /metrics when set
	JWTSecret    string
}

// NewRouter wires the routes onto a fresh gin engine
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()                                    // Gin router instance
	r.Use(gin.Recovery(), middleware.RequestLogger()) // Recover panics and log requests

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	// Auth routes
	r.POST("/auth/register", RegisterHandler(d.Users))        // Registration endpoint
	r.POST("/auth/login", LoginHandler(d.Users, d.JWTSecret)) // Login endpoint

	// Wallet routes (protected by JWT)
	walletGroup := r.Group("/wallet")
	walletGroup.Use(middleware.JWTAuthMiddleware(d.JWTSecret))
	walletGroup.GET("", GetWalletHandler(d.Engine, d.Redis, d.Metrics))                          // Get wallet endpoint
	walletGroup.GET("/transactions", GetTransactionHistoryHandler(d.Engine, d.Redis, d.Metrics)) // Transaction history endpoint

	// Mutations replay their first response when retried with the same Idempotency-Key
	mutations := walletGroup.Group("", middleware.Idempotency(d.Redis))
	mutations.POST("/transactions", SubmitTransactionHandler(d.Engine, d.Redis))           // Generic submission endpoint
	mutations.POST("/deposit", MovementHandler(d.Engine, d.Redis, domain.KindDeposit))     // Deposit endpoint
	mutations.POST("/withdraw", MovementHandler(d.Engine, d.Redis, domain.KindWithdrawal)) // Withdrawal endpoint
	mutations.POST("/transfer", MovementHandler(d.Engine, d.Redis, domain.KindTransfer))   // Transfer endpoint

	// Admin routes (protected, admin only)
	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.JWTAuthMiddleware(d.JWTSecret), middleware.AdminOnlyMiddleware(d.Users))
	adminGroup.GET("/transactions", ListTransactionsHandler(d.Transactions))         // List transactions endpoint
	adminGroup.GET("/transactions/flagged", ListFlaggedHandler(d.Transactions))      // Review queue endpoint
	adminGroup.GET("/transactions/:id/logs", TransactionLogsHandler(d.Transactions)) // Audit trail endpoint
	adminGroup.POST("/transactions/:id/review", ReviewHandler(d.Resolver, d.Redis))  // Review endpoint
	adminGroup.GET("/fraud-scan", GetFraudScanHandler(d.Scheduler))                  // Latest scan summary
	adminGroup.POST("/fraud-scan", RunFraudScanHandler(d.Scheduler))                 // Run a scan now
	adminGroup.GET("/wallets", ListWalletsHandler(d.Wallets, d.Users))               // List wallets endpoint

	return r
}
