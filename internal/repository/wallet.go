package repository

import (
	"context" // Request scoped queries
	"errors"  // Error inspection
	"fmt"     // Error wrapping
	"sort"    // Lock ordering

	"digital_wallet/internal/domain" // Importing domain models

	"github.com/shopspring/decimal" // Exact decimal arithmetic
	"gorm.io/gorm"                  // GORM ORM library
	"gorm.io/gorm/clause"           // Row locking
)

// WalletStore owns wallet rows. Balances change only through Credit and Debit,
// which must run on a transaction handle holding the wallet's row lock.
type WalletStore struct {
	db *gorm.DB
}

// NewWalletStore creates a wallet store
func NewWalletStore(db *gorm.DB) *WalletStore {
	return &WalletStore{db: db}
}

// WithTx returns a store bound to an open unit of work
func (s *WalletStore) WithTx(tx *gorm.DB) *WalletStore {
	return &WalletStore{db: tx}
}

// GetOrCreate returns the user's wallet, creating it with zero balances on
// first access. A soft-deleted wallet is never recreated.
func (s *WalletStore) GetOrCreate(ctx context.Context, userID uint) (*domain.Wallet, error) {
	db := s.db.WithContext(ctx)
	w, err := s.findByUser(db, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	w = &domain.Wallet{UserID: userID, Balances: domain.NewBalances()}
	if err := db.Create(w).Error; err != nil {
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("create wallet: %w", err)
		}
		// Lost the race against a concurrent first access.
		return s.findByUser(db, userID)
	}
	return w, nil
}

// GetByUser returns the user's wallet without creating it
func (s *WalletStore) GetByUser(ctx context.Context, userID uint) (*domain.Wallet, error) {
	w, err := s.findByUser(s.db.WithContext(ctx), userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	return w, err
}

func (s *WalletStore) findByUser(db *gorm.DB, userID uint) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := db.Unscoped().Where("user_id = ?", userID).First(&w).Error; err != nil {
		return nil, err
	}
	if w.DeletedAt.Valid {
		return nil, ErrWalletNotFound
	}
	return &w, nil
}

// Lock takes exclusive row locks on the given wallets in ascending id order,
// so two transfers in opposite directions cannot deadlock, and returns the
// locked rows keyed by id.
func (s *WalletStore) Lock(ctx context.Context, ids ...uint) (map[uint]*domain.Wallet, error) {
	ordered := append([]uint(nil), ids...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })
	locked := make(map[uint]*domain.Wallet, len(ordered))
	for _, id := range ordered {
		if _, ok := locked[id]; ok {
			continue
		}
		var w domain.Wallet
		err := s.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&w, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("lock wallet %d: %w", id, err)
		}
		locked[id] = &w
	}
	return locked, nil
}

// Credit adds amount to the locked wallet's currency balance
func (s *WalletStore) Credit(ctx context.Context, w *domain.Wallet, currency string, amount decimal.Decimal) error {
	if w.Balances == nil {
		w.Balances = domain.Balances{}
	}
	w.Balances[currency] = w.Balances.Get(currency).Add(amount)
	return s.save(ctx, w)
}

// Debit subtracts amount from the locked wallet's currency balance. It fails
// with ErrInsufficientFunds, leaving the wallet untouched, when the balance is
// lower than amount.
func (s *WalletStore) Debit(ctx context.Context, w *domain.Wallet, currency string, amount decimal.Decimal) error {
	current := w.Balances.Get(currency)
	if current.LessThan(amount) {
		return ErrInsufficientFunds
	}
	w.Balances[currency] = current.Sub(amount)
	return s.save(ctx, w)
}

func (s *WalletStore) save(ctx context.Context, w *domain.Wallet) error {
	err := s.db.WithContext(ctx).Model(&domain.Wallet{}).Where("id = ?", w.ID).Update("balances", w.Balances).Error
	if err != nil {
		return fmt.Errorf("update wallet %d: %w", w.ID, err)
	}
	return nil
}

// List returns a page of wallets and the total count
func (s *WalletStore) List(ctx context.Context, offset, limit int) ([]domain.Wallet, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&domain.Wallet{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var wallets []domain.Wallet
	err := s.db.WithContext(ctx).Order("id").Offset(offset).Limit(limit).Find(&wallets).Error
	return wallets, total, err
}
