// Package dbtest provides migrated in-memory databases for package tests.
package dbtest

import (
	"context"     // Seeding queries
	"fmt"         // DSN formatting
	"strings"     // Name sanitising
	"sync/atomic" // Unique database names
	"testing"     // Test helpers

	"digital_wallet/internal/db"         // Dialect config and migration
	"digital_wallet/internal/domain"     // Importing domain models
	"digital_wallet/internal/repository" // Wallet store

	"github.com/shopspring/decimal"       // Exact decimal arithmetic
	"github.com/stretchr/testify/require" // Fail fast assertions
	"gorm.io/driver/sqlite"               // In-memory database
	"gorm.io/gorm"                        // GORM ORM library
)

var seq atomic.Int64

// Open returns a fresh migrated SQLite database private to the test. The pool
// holds one connection, so units of work run one after another.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))
	gdb, err := gorm.Open(sqlite.Open(dsn), db.GormConfig(true))
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))
	return gdb
}

// User inserts an active user with the given email
func User(t testing.TB, gdb *gorm.DB, email string) *domain.User {
	t.Helper()
	u := &domain.User{Email: email, FullName: email, Password: "x", Role: domain.RoleUser, IsActive: true}
	require.NoError(t, repository.NewUserRepository(gdb).Create(context.Background(), u))
	return u
}

// Fund sets the user's balance in currency, creating the wallet if needed
func Fund(t testing.TB, gdb *gorm.DB, userID uint, currency, amount string) *domain.Wallet {
	t.Helper()
	ctx := context.Background()
	w, err := repository.NewWalletStore(gdb).GetOrCreate(ctx, userID)
	require.NoError(t, err)
	w.Balances[currency] = decimal.RequireFromString(amount)
	require.NoError(t, gdb.Model(&domain.Wallet{}).Where("id = ?", w.ID).Update("balances", w.Balances).Error)
	return w
}

// Balance reads the user's current balance in currency
func Balance(t testing.TB, gdb *gorm.DB, userID uint, currency string) decimal.Decimal {
	t.Helper()
	w, err := repository.NewWalletStore(gdb).GetByUser(context.Background(), userID)
	require.NoError(t, err)
	return w.Balances.Get(currency)
}
