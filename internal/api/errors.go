package api

import (
	"net/http" // HTTP status codes
	"strconv"  // Query parsing

	"digital_wallet/internal/ledger" // Error taxonomy

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// respondError writes the ledger error as {"code", "error"} with its HTTP status
func respondError(c *gin.Context, err error) {
	code, class := ledger.Classify(err)
	switch class {
	case ledger.ClassValidation, ledger.ClassInsufficientFunds:
		c.JSON(http.StatusBadRequest, gin.H{"code": code, "error": err.Error()})
	case ledger.ClassNotFound:
		c.JSON(http.StatusNotFound, gin.H{"code": code, "error": err.Error()})
	default:
		// Storage details stay in the log
		logrus.WithFields(logrus.Fields{
			"path":       c.FullPath(),             // Route pattern
			"request_id": c.GetString("requestID"), // Request identifier
		}).WithError(err).Error("Internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"code": code, "error": "Internal server error"})
	}
}

// badRequest writes a validation error that never reached the ledger
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": "InvalidRequest", "error": message})
}

// pagination reads page and page_size, page size capped at 100
func pagination(c *gin.Context) (page, pageSize, offset int) {
	page = 1      // Default page number
	pageSize = 20 // Default page size
	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v // Set page if valid
		}
	}
	// Check and set page size within limits
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v // Set page size
		}
	}
	return page, pageSize, (page - 1) * pageSize
}

// totalPages rounds total/pageSize up
func totalPages(total int64, pageSize int) int {
	return (int(total) + pageSize - 1) / pageSize
}
