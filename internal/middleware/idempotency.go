package middleware

import (
	"bytes"    // Response capture
	"net/http" // HTTP status codes
	"strconv"  // Key formatting
	"time"     // TTLs

	"digital_wallet/internal/utils" // Redis JSON helpers

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Structured logging
)

const (
	// IdempotencyHeader is the standard HTTP header for idempotency keys
	IdempotencyHeader = "Idempotency-Key"

	// IdempotencyTTL defines how long responses are kept for replay
	IdempotencyTTL = 24 * time.Hour

	// idempotencyLockTTL prevents indefinite locks if a request crashes
	idempotencyLockTTL = 10 * time.Second
)

// cachedResponse is what a replay sends back
type cachedResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// bodyRecorder captures the response while writing it to the client
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the first response of a mutation retried with the same
// Idempotency-Key, so a retried POST never moves money twice. Keys are scoped
// per user and route. Without Redis or without the header requests pass through.
func Idempotency(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		userID, _ := CurrentUserID(c)
		if rdb == nil || key == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		scope := strconv.FormatUint(uint64(userID), 10) + ":" + c.FullPath() + ":" + key
		cacheKey := "idempotency:" + scope     // Stored response
		lockKey := "lock:idempotency:" + scope // In-flight marker

		var cached cachedResponse
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			c.Header("Idempotent-Replayed", "true")
			c.Data(cached.Status, "application/json; charset=utf-8", cached.Body)
			c.Abort()
			return
		}

		acquired, err := rdb.SetNX(ctx, lockKey, "1", idempotencyLockTTL).Result()
		if err != nil {
			logrus.WithError(err).Warn("Idempotency lock unavailable, processing without it")
			c.Next()
			return
		}
		if !acquired {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"code": "RequestInProgress", "error": "A request with this Idempotency-Key is in progress"})
			return
		}
		defer rdb.Del(ctx, lockKey)

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		// Server errors are not cached so the client may retry them.
		if rec.Status() < http.StatusInternalServerError {
			resp := cachedResponse{Status: rec.Status(), Body: rec.body.Bytes()}
			if err := utils.SetCache(ctx, rdb, cacheKey, resp, IdempotencyTTL); err != nil {
				logrus.WithError(err).WithField("key", key).Warn("Failed to store idempotent response")
			}
		}
	}
}
