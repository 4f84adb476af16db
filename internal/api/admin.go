package api

import (
	"errors"   // Error inspection
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"strings"  // String manipulation
	"time"     // Date filters

	"digital_wallet/internal/domain"     // Importing domain models
	"digital_wallet/internal/fraud"      // Fraud scan scheduler
	"digital_wallet/internal/ledger"     // Review resolver
	"digital_wallet/internal/middleware" // Authenticated user id
	"digital_wallet/internal/repository" // Read models
	"digital_wallet/internal/utils"      // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
)

// ReviewRequest is the body of POST /admin/transactions/:id/review
type ReviewRequest struct {
	Action string `json:"action"` // approve or reject, anything else is InvalidAction
}

// parseTime accepts RFC 3339 timestamps or plain dates
func parseTime(v string) (*time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseFilter reads the admin listing filters from the query string
func parseFilter(c *gin.Context) (repository.Filter, bool) {
	var f repository.Filter
	if userID := c.Query("user_id"); userID != "" {
		id, err := strconv.ParseUint(userID, 10, 64)
		if err != nil {
			badRequest(c, "user_id must be a number")
			return f, false
		}
		f.UserID = uint(id) // Filter by user ID
	}
	kind := c.Query("kind")
	if kind == "" {
		kind = c.Query("type") // Older clients send type
	}
	if kind != "" {
		f.Kind = domain.TransactionKind(strings.ToUpper(kind)) // Filter by transaction kind
	}
	if status := c.Query("status"); status != "" {
		f.Status = domain.TransactionStatus(strings.ToUpper(status)) // Filter by status
	}
	if from := c.Query("from"); from != "" {
		t, err := parseTime(from)
		if err != nil {
			badRequest(c, "from must be RFC 3339 or YYYY-MM-DD")
			return f, false
		}
		f.From = t // Filter by start date
	}
	if to := c.Query("to"); to != "" {
		t, err := parseTime(to)
		if err != nil {
			badRequest(c, "to must be RFC 3339 or YYYY-MM-DD")
			return f, false
		}
		f.To = t // Filter by end date
	}
	return f, true
}

// listTransactions renders one filtered page
func listTransactions(c *gin.Context, txs *repository.TransactionRepository, f repository.Filter) {
	page, pageSize, offset := pagination(c) // Read pagination parameters
	items, total, err := txs.List(c.Request.Context(), f, offset, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []domain.Transaction{} // Render an empty list, not null
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": items,                       // List of transactions
		"page":         page,                        // Current page
		"page_size":    pageSize,                    // Page size
		"total":        total,                       // Total number of transactions
		"total_pages":  totalPages(total, pageSize), // Total pages
	})
}

// ListTransactionsHandler returns all transactions, with optional filtering by user, kind, status or date
func ListTransactionsHandler(txs *repository.TransactionRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := parseFilter(c)
		if !ok {
			return
		}
		listTransactions(c, txs, f)
	}
}

// ListFlaggedHandler returns the transactions awaiting review
func ListFlaggedHandler(txs *repository.TransactionRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, ok := parseFilter(c)
		if !ok {
			return
		}
		f.Status = domain.StatusFlagged // Only the review queue
		listTransactions(c, txs, f)
	}
}

// transactionID reads the :id path parameter
func transactionID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "Invalid transaction id")
		return 0, false
	}
	return uint(id), true
}

// TransactionLogsHandler returns the audit trail of a transaction
func TransactionLogsHandler(txs *repository.TransactionRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := transactionID(c)
		if !ok {
			return
		}
		if _, err := txs.Get(c.Request.Context(), id); err != nil {
			respondError(c, err) // Unknown transaction
			return
		}
		logs, err := txs.Logs(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		if logs == nil {
			logs = []domain.TransactionLog{}
		}
		c.JSON(http.StatusOK, gin.H{"transaction_id": id, "logs": logs})
	}
}

// ReviewHandler approves or rejects a flagged transaction
func ReviewHandler(resolver *ledger.Resolver, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := transactionID(c)
		if !ok {
			return
		}
		var req ReviewRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		reviewerID, _ := middleware.CurrentUserID(c) // Admin making the decision
		t, err := resolver.Review(c.Request.Context(), id, strings.ToLower(strings.TrimSpace(req.Action)), reviewerID)
		if err != nil {
			respondError(c, err)
			return
		}
		utils.InvalidateUser(c.Request.Context(), rdb, t.SenderID, t.ReceiverID) // Balances and histories may have changed
		c.JSON(http.StatusOK, gin.H{"transaction": t})
	}
}

// scanResponse renders a scan summary
func scanResponse(c *gin.Context, summary fraud.Summary, fresh bool) {
	c.JSON(http.StatusOK, gin.H{"summary": summary, "fresh": fresh})
}

// GetFraudScanHandler returns the latest scan summary, running a scan when none exists yet
func GetFraudScanHandler(scheduler *fraud.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if summary, ok := scheduler.LastSummary(); ok {
			scanResponse(c, summary, false)
			return
		}
		runScan(c, scheduler)
	}
}

// RunFraudScanHandler runs a scan immediately
func RunFraudScanHandler(scheduler *fraud.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		runScan(c, scheduler)
	}
}

func runScan(c *gin.Context, scheduler *fraud.Scheduler) {
	summary, err := scheduler.RunNow(c.Request.Context())
	if errors.Is(err, fraud.ErrScanInProgress) {
		c.JSON(http.StatusConflict, gin.H{"code": "ScanInProgress", "error": err.Error()})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	scanResponse(c, summary, true)
}

// WalletAdminResponse pairs a wallet with its owner's email
type WalletAdminResponse struct {
	Wallet domain.Wallet `json:"wallet"` // Wallet with balances
	Email  string        `json:"email"`  // Owner email
}

// ListWalletsHandler returns all wallets with their owners
func ListWalletsHandler(wallets *repository.WalletStore, users *repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, pageSize, offset := pagination(c) // Read pagination parameters
		ctx := c.Request.Context()
		list, total, err := wallets.List(ctx, offset, pageSize)
		if err != nil {
			respondError(c, err)
			return
		}
		ids := make([]uint, len(list))
		for i, w := range list {
			ids[i] = w.UserID
		}
		emails, err := users.EmailsByID(ctx, ids) // Resolve owner emails in one query
		if err != nil {
			respondError(c, err)
			return
		}
		resp := make([]WalletAdminResponse, len(list))
		for i, w := range list {
			resp[i] = WalletAdminResponse{Wallet: w, Email: emails[w.UserID]}
		}
		c.JSON(http.StatusOK, gin.H{
			"wallets":     resp,                        // List of wallets
			"page":        page,                        // Current page
			"page_size":   pageSize,                    // Page size
			"total":       total,                       // Total number of wallets
			"total_pages": totalPages(total, pageSize), // Total pages
		})
	}
}
