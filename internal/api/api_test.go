package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"digital_wallet/internal/config"
	"digital_wallet/internal/db"
	"digital_wallet/internal/dbtest"
	"digital_wallet/internal/fraud"
	"digital_wallet/internal/ledger"
	"digital_wallet/internal/metrics"
	"digital_wallet/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
	logrus.SetOutput(io.Discard)
}

type server struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
}

func newServer(t *testing.T, rdb *redis.Client) *server {
	gdb := dbtest.Open(t)
	require.NoError(t, db.SeedAdmin(gdb, "root@example.com", "admin-password"))

	users := repository.NewUserRepository(gdb)
	wallets := repository.NewWalletStore(gdb)
	txs := repository.NewTransactionRepository(gdb)
	scorer := fraud.NewScorer(config.DefaultFraudConfig())
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	engine := ledger.NewEngine(gdb, wallets, txs, users, scorer, ledger.Options{Metrics: m})
	scanner := fraud.NewScanner(txs, scorer, fraud.ScannerOptions{Metrics: m})

	return &server{t: t, db: gdb, router: NewRouter(Deps{
		Engine:       engine,
		Resolver:     ledger.NewResolver(engine),
		Scheduler:    fraud.NewScheduler(scanner, time.Hour, fraud.NewRedisLocker(rdb, "lock:fraud-scan"), nil),
		Users:        users,
		Wallets:      wallets,
		Transactions: txs,
		Redis:        rdb,
		Metrics:      m,
		Gatherer:     registry,
		JWTSecret:    testSecret,
	})}
}

// do sends a JSON request and decodes the JSON response into a map
func (s *server) do(method, path, token string, body any, headers ...string) (int, map[string]any) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	out := map[string]any{}
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" && bytes.HasPrefix(bytes.TrimSpace(w.Body.Bytes()), []byte("{")) {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func (s *server) register(email string) string {
	s.t.Helper()
	code, _ := s.do(http.MethodPost, "/auth/register", "", gin.H{"email": email, "password": "password123"})
	require.Equal(s.t, http.StatusCreated, code)
	return s.login(email, "password123")
}

func (s *server) login(email, password string) string {
	s.t.Helper()
	code, body := s.do(http.MethodPost, "/auth/login", "", gin.H{"email": email, "password": password})
	require.Equal(s.t, http.StatusOK, code, body)
	return body["token"].(string)
}

func transaction(body map[string]any) map[string]any {
	tx, _ := body["transaction"].(map[string]any)
	return tx
}

func TestAuth(t *testing.T) {
	s := newServer(t, nil)
	s.register("alice@example.com")

	code, body := s.do(http.MethodPost, "/auth/register", "", gin.H{"email": "ALICE@example.com", "password": "password123"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "EmailTaken", body["code"])

	code, _ = s.do(http.MethodPost, "/auth/register", "", gin.H{"email": "not-an-email", "password": "password123"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodPost, "/auth/register", "", gin.H{"email": "short@example.com", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(http.MethodPost, "/auth/login", "", gin.H{"email": "alice@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(http.MethodGet, "/wallet", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = s.do(http.MethodGet, "/wallet", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestWalletFlow(t *testing.T) {
	s := newServer(t, nil)
	alice := s.register("alice@example.com")
	bob := s.register("bob@example.com")

	code, body := s.do(http.MethodGet, "/wallet", alice, nil)
	require.Equal(t, http.StatusOK, code)
	balances := body["wallet"].(map[string]any)["balances"].(map[string]any)
	assert.Equal(t, "0", balances["USD"])

	code, body = s.do(http.MethodPost, "/wallet/deposit", alice, gin.H{"currency": "USD", "amount": "100"})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "COMPLETED", transaction(body)["status"])

	code, body = s.do(http.MethodPost, "/wallet/transfer", alice, gin.H{"currency": "USD", "amount": 30, "receiver_email": "bob@example.com", "description": "lunch"})
	require.Equal(t, http.StatusCreated, code, body)

	code, body = s.do(http.MethodPost, "/wallet/withdraw", alice, gin.H{"currency": "USD", "amount": "1000"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InsufficientFunds", body["code"])

	code, body = s.do(http.MethodPost, "/wallet/transfer", alice, gin.H{"currency": "USD", "amount": "1", "receiver_email": "ghost@example.com"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "ReceiverNotFound", body["code"])

	code, body = s.do(http.MethodPost, "/wallet/transactions", alice, gin.H{"kind": "REFUND", "currency": "USD", "amount": "1"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidKind", body["code"])

	code, body = s.do(http.MethodPost, "/wallet/deposit", alice, gin.H{"currency": "USD", "amount": "0"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidAmount", body["code"])

	code, body = s.do(http.MethodGet, "/wallet/transactions?page_size=1", alice, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["total"])
	assert.EqualValues(t, 2, body["total_pages"])
	items := body["transactions"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "TRANSFER", items[0].(map[string]any)["kind"])

	code, body = s.do(http.MethodGet, "/wallet/transactions", bob, nil)
	require.Equal(t, http.StatusOK, code)
	items = body["transactions"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Received from alice@example.com: lunch", items[0].(map[string]any)["description"])

	code, body = s.do(http.MethodGet, "/wallet", bob, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "30", body["wallet"].(map[string]any)["balances"].(map[string]any)["USD"])
}

func TestAdminReviewFlow(t *testing.T) {
	s := newServer(t, nil)
	alice := s.register("alice@example.com")
	s.register("bob@example.com")
	admin := s.login("root@example.com", "admin-password")
	dbtest.Fund(t, s.db, 2, "USD", "20000")

	code, _ := s.do(http.MethodGet, "/admin/transactions", alice, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body := s.do(http.MethodPost, "/wallet/transactions", alice, gin.H{"kind": "transfer", "currency": "usd", "amount": "12000", "receiver_email": "bob@example.com"})
	require.Equal(t, http.StatusAccepted, code, body)
	held := transaction(body)
	assert.Equal(t, "FLAGGED", held["status"])
	assert.Equal(t, fraud.ReasonLargeTransfer, held["flag_reason"])
	id := int(held["id"].(float64))

	code, body = s.do(http.MethodGet, "/admin/transactions/flagged", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["total"])

	path := "/admin/transactions/" + jsonNumber(id)
	code, body = s.do(http.MethodPost, path+"/review", admin, gin.H{"action": "escalate"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidAction", body["code"])

	code, body = s.do(http.MethodPost, path+"/review", admin, gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidAction", body["code"], "a missing action is an invalid action")

	code, body = s.do(http.MethodPost, path+"/review", admin, gin.H{"action": "approve"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "COMPLETED", transaction(body)["status"])

	code, body = s.do(http.MethodPost, path+"/review", admin, gin.H{"action": "approve"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "NotFlagged", body["code"])

	code, body = s.do(http.MethodPost, "/admin/transactions/999/review", admin, gin.H{"action": "approve"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "TransactionNotFound", body["code"])

	code, body = s.do(http.MethodGet, path+"/logs", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["logs"], 2)

	code, body = s.do(http.MethodGet, "/admin/transactions?kind=transfer&user_id=3", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["total"])

	code, _ = s.do(http.MethodGet, "/admin/transactions?from=yesterday", admin, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(http.MethodGet, "/admin/wallets", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["total"])
}

func TestFraudScanEndpoints(t *testing.T) {
	s := newServer(t, nil)
	admin := s.login("root@example.com", "admin-password")

	code, body := s.do(http.MethodGet, "/admin/fraud-scan", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["fresh"], "first read runs a scan")

	code, body = s.do(http.MethodGet, "/admin/fraud-scan", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["fresh"])

	code, body = s.do(http.MethodPost, "/admin/fraud-scan", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["fresh"])
	summary := body["summary"].(map[string]any)
	assert.EqualValues(t, 0, summary["flagged_count"])
}

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t, nil)
	code, body := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	alice := s.register("alice@example.com")
	s.do(http.MethodPost, "/wallet/deposit", alice, gin.H{"currency": "USD", "amount": "5"})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `wallet_ledger_submissions_total{kind="DEPOSIT",status="COMPLETED"} 1`)
}

func TestRedisBackedCacheAndIdempotency(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := newServer(t, rdb)
	alice := s.register("alice@example.com")

	_, first := s.do(http.MethodGet, "/wallet", alice, nil)
	assert.Equal(t, false, first["cached"])
	_, second := s.do(http.MethodGet, "/wallet", alice, nil)
	assert.Equal(t, true, second["cached"])

	deposit := gin.H{"currency": "USD", "amount": "10"}
	code, a := s.do(http.MethodPost, "/wallet/deposit", alice, deposit, "Idempotency-Key", "dep-1")
	require.Equal(t, http.StatusCreated, code)
	code, b := s.do(http.MethodPost, "/wallet/deposit", alice, deposit, "Idempotency-Key", "dep-1")
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, transaction(a)["id"], transaction(b)["id"], "retry replays the first response")

	// Deposit invalidated the wallet cache and the retry moved nothing
	_, wallet := s.do(http.MethodGet, "/wallet", alice, nil)
	assert.Equal(t, false, wallet["cached"])
	assert.Equal(t, "10", wallet["wallet"].(map[string]any)["balances"].(map[string]any)["USD"])

	// The same key on another route is a new request
	code, w := s.do(http.MethodPost, "/wallet/withdraw", alice, gin.H{"currency": "USD", "amount": "4"}, "Idempotency-Key", "dep-1")
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "WITHDRAWAL", transaction(w)["kind"])
	assert.NotEqual(t, transaction(a)["id"], transaction(w)["id"])

	// A request still holding the key is rejected
	require.NoError(t, rdb.Set(context.Background(), "lock:idempotency:2:/wallet/deposit:dep-2", "1", time.Minute).Err())
	code, body := s.do(http.MethodPost, "/wallet/deposit", alice, deposit, "Idempotency-Key", "dep-2")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "RequestInProgress", body["code"])

	// Scan lock held by another instance
	admin := s.login("root@example.com", "admin-password")
	require.NoError(t, rdb.Set(context.Background(), "lock:fraud-scan:run", "other", time.Minute).Err())
	code, body = s.do(http.MethodPost, "/admin/fraud-scan", admin, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "ScanInProgress", body["code"])
}

func jsonNumber(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
