package api

import (
	"net/http" // HTTP status codes
	"strings"  // Kind normalisation

	"digital_wallet/internal/domain"     // Importing domain models
	"digital_wallet/internal/ledger"     // Ledger engine
	"digital_wallet/internal/metrics"    // Cache hit counters
	"digital_wallet/internal/middleware" // Authenticated user id
	"digital_wallet/internal/utils"      // Utility functions

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Exact decimal amounts
)

// TransactionRequest is the body of POST /wallet/transactions
type TransactionRequest struct {
	Kind          string          `json:"kind" binding:"required"`     // DEPOSIT, WITHDRAWAL or TRANSFER
	Currency      string          `json:"currency" binding:"required"` // Currency code
	Amount        decimal.Decimal `json:"amount"`                      // Must be positive, checked by the ledger
	ReceiverEmail string          `json:"receiver_email"`              // Required for transfers
	Description   string          `json:"description"`                 // Optional free text
}

// MovementRequest is the body of the deposit, withdraw and transfer shortcuts
type MovementRequest struct {
	Currency      string          `json:"currency" binding:"required"` // Currency code
	Amount        decimal.Decimal `json:"amount"`                      // Must be positive, checked by the ledger
	ReceiverEmail string          `json:"receiver_email"`              // Transfers only
	Description   string          `json:"description"`                 // Optional free text
}

// historyPage is the cached shape of one history page
type historyPage struct {
	Transactions []domain.Transaction `json:"transactions"` // Transactions on the page
	Page         int                  `json:"page"`         // Current page
	PageSize     int                  `json:"page_size"`    // Page size
	Total        int64                `json:"total"`        // Total number of transactions
	TotalPages   int                  `json:"total_pages"`  // Total pages
	Cached       bool                 `json:"cached"`       // Served from cache
}

// GetWalletHandler retrieves the user's wallet, creating it on first access
func GetWalletHandler(engine *ledger.Engine, rdb *redis.Client, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.CurrentUserID(c) // Get userID from context
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"code": "Unauthorized", "error": "Unauthorized"})
			return
		}
		ctx := c.Request.Context()
		cacheKey := utils.WalletKey(userID) // Create a cache key
		var cached domain.Wallet
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached) // Try to get cached wallet
		if rdb != nil {
			m.Cache(err == nil && found)
		}
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{"wallet": cached, "cached": true}) // Return cached wallet
			return
		}
		wallet, err := engine.Wallet(ctx, userID) // Fetch or create the wallet
		if err != nil {
			respondError(c, err)
			return
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, wallet, utils.CacheTTL) // Cache the wallet
		c.JSON(http.StatusOK, gin.H{"wallet": wallet, "cached": false})
	}
}

// SubmitTransactionHandler submits a deposit, withdrawal or transfer
func SubmitTransactionHandler(engine *ledger.Engine, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TransactionRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		submit(c, engine, rdb, ledger.SubmitRequest{
			Kind:          domain.TransactionKind(strings.ToUpper(strings.TrimSpace(req.Kind))), // Validated by the ledger
			Currency:      req.Currency,                                                         // Currency code
			Amount:        req.Amount,                                                           // Amount
			ReceiverEmail: req.ReceiverEmail,                                                    // Transfer target
			Description:   req.Description,                                                      // Free text
		})
	}
}

// MovementHandler serves the single-kind shortcuts such as POST /wallet/deposit
func MovementHandler(engine *ledger.Engine, rdb *redis.Client, kind domain.TransactionKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MovementRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		submit(c, engine, rdb, ledger.SubmitRequest{
			Kind:          kind,              // Fixed by the route
			Currency:      req.Currency,      // Currency code
			Amount:        req.Amount,        // Amount
			ReceiverEmail: req.ReceiverEmail, // Transfer target
			Description:   req.Description,   // Free text
		})
	}
}

// submit hands req to the ledger and answers 201 when it settled, 202 when it is held for review
func submit(c *gin.Context, engine *ledger.Engine, rdb *redis.Client, req ledger.SubmitRequest) {
	userID, ok := middleware.CurrentUserID(c) // Get userID from context
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "Unauthorized", "error": "Unauthorized"})
		return
	}
	req.SenderID = userID
	t, err := engine.Submit(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	if t.Status == domain.StatusFlagged {
		// Nothing moved, only the sender's history changed
		utils.InvalidateUser(c.Request.Context(), rdb, t.SenderID)
		c.JSON(http.StatusAccepted, gin.H{"transaction": t, "message": "Transaction held for review"})
		return
	}
	utils.InvalidateUser(c.Request.Context(), rdb, t.SenderID, t.ReceiverID) // Balances changed
	c.JSON(http.StatusCreated, gin.H{"transaction": t})
}

// GetTransactionHistoryHandler returns the user's transactions with pagination, most recent first
func GetTransactionHistoryHandler(engine *ledger.Engine, rdb *redis.Client, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.CurrentUserID(c) // Get userID from context
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"code": "Unauthorized", "error": "Unauthorized"})
			return
		}
		ctx := c.Request.Context()
		page, pageSize, offset := pagination(c)              // Read pagination parameters
		cacheKey := utils.HistoryKey(userID, page, pageSize) // Create a cache key
		var cached historyPage
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached) // Try to get cached page
		if rdb != nil {
			m.Cache(err == nil && found)
		}
		if err == nil && found {
			cached.Cached = true
			c.JSON(http.StatusOK, cached) // Return cached page
			return
		}
		txs, total, err := engine.History(ctx, userID, offset, pageSize) // Fetch the page
		if err != nil {
			respondError(c, err)
			return
		}
		if txs == nil {
			txs = []domain.Transaction{} // Render an empty list, not null
		}
		resp := historyPage{
			Transactions: txs,                         // Transactions on the page
			Page:         page,                        // Current page
			PageSize:     pageSize,                    // Page size
			Total:        total,                       // Total number of transactions
			TotalPages:   totalPages(total, pageSize), // Total pages
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, utils.CacheTTL) // Cache the page
		c.JSON(http.StatusOK, resp)
	}
}
