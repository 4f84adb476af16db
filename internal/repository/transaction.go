package repository

import (
	"context" // Request scoped queries
	"errors"  // Error inspection
	"fmt"     // Error wrapping
	"time"    // Windows

	"digital_wallet/internal/domain" // Importing domain models

	"gorm.io/gorm"        // GORM ORM library
	"gorm.io/gorm/clause" // Row locking
)

// TransactionRepository is the append-only record of transaction attempts
// and their outcome, plus the audit log attached to them.
type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a transaction repository
func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// WithTx returns a repository bound to an open unit of work
func (r *TransactionRepository) WithTx(tx *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: tx}
}

// Create inserts a transaction record
func (r *TransactionRepository) Create(ctx context.Context, t *domain.Transaction) error {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

// Save writes every column of an existing record
func (r *TransactionRepository) Save(ctx context.Context, t *domain.Transaction) error {
	if err := r.db.WithContext(ctx).Save(t).Error; err != nil {
		return fmt.Errorf("save transaction %d: %w", t.ID, err)
	}
	return nil
}

// Get returns a transaction by id
func (r *TransactionRepository) Get(ctx context.Context, id uint) (*domain.Transaction, error) {
	var t domain.Transaction
	err := r.db.WithContext(ctx).First(&t, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetForUpdate returns a transaction by id holding its row lock
func (r *TransactionRepository) GetForUpdate(ctx context.Context, id uint) (*domain.Transaction, error) {
	var t domain.Transaction
	err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&t, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindInbound returns the receiver-side record linked to a transfer, if any
func (r *TransactionRepository) FindInbound(ctx context.Context, primaryID uint) (*domain.Transaction, error) {
	var t domain.Transaction
	err := r.db.WithContext(ctx).Where("linked_transaction_id = ?", primaryID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListByOwner returns a page of the user's ledger, most recent first
func (r *TransactionRepository) ListByOwner(ctx context.Context, ownerID uint, offset, limit int) ([]domain.Transaction, int64, error) {
	q := r.db.WithContext(ctx).Model(&domain.Transaction{}).Where("owner_id = ?", ownerID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var txs []domain.Transaction
	err := q.Order("created_at desc").Order("id desc").Offset(offset).Limit(limit).Find(&txs).Error
	return txs, total, err
}

// History returns the user's transactions, sent or received, created in
// [since, until]. Receiver-side copies are excluded so a transfer counts once.
func (r *TransactionRepository) History(ctx context.Context, userID uint, since, until time.Time) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	err := r.db.WithContext(ctx).
		Where("(sender_id = ? OR receiver_id = ?)", userID, userID).
		Where("linked_transaction_id IS NULL").
		Where("created_at >= ? AND created_at <= ?", since, until).
		Order("created_at asc").
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("load history for user %d: %w", userID, err)
	}
	return txs, nil
}

// ScanCandidates returns the transactions a fraud scan should re-score:
// created since the given time, not flagged, not failed, never reviewed and
// not a receiver-side copy.
func (r *TransactionRepository) ScanCandidates(ctx context.Context, since time.Time) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	err := r.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Where("status IN ?", []domain.TransactionStatus{domain.StatusCompleted, domain.StatusPending}).
		Where("reviewed_at IS NULL").
		Where("linked_transaction_id IS NULL").
		Order("created_at asc").
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("load scan candidates: %w", err)
	}
	return txs, nil
}

// MarkFlagged sets the flag on a transaction that is not deleted and not yet
// flagged. A non-empty expected status additionally requires the row to still
// be in that status. It reports false when the row no longer qualifies.
func (r *TransactionRepository) MarkFlagged(ctx context.Context, id uint, expected domain.TransactionStatus, reason string) (bool, error) {
	q := r.db.WithContext(ctx).Model(&domain.Transaction{}).Where("id = ? AND status <> ?", id, domain.StatusFlagged)
	if expected != "" {
		q = q.Where("status = ?", expected)
	}
	res := q.Updates(map[string]any{"status": domain.StatusFlagged, "flag_reason": reason})
	if res.Error != nil {
		return false, fmt.Errorf("flag transaction %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Filter narrows an admin listing
type Filter struct {
	UserID uint
	Kind   domain.TransactionKind
	Status domain.TransactionStatus
	From   *time.Time
	To     *time.Time
}

// List returns a filtered page of primary records, most recent first
func (r *TransactionRepository) List(ctx context.Context, f Filter, offset, limit int) ([]domain.Transaction, int64, error) {
	q := r.db.WithContext(ctx).Model(&domain.Transaction{}).Where("linked_transaction_id IS NULL")
	if f.UserID != 0 {
		q = q.Where("(sender_id = ? OR receiver_id = ?)", f.UserID, f.UserID)
	}
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var txs []domain.Transaction
	err := q.Order("created_at desc").Order("id desc").Offset(offset).Limit(limit).Find(&txs).Error
	return txs, total, err
}

// AppendLog records an audit entry
func (r *TransactionRepository) AppendLog(ctx context.Context, transactionID uint, event, detail string, actorID *uint) error {
	entry := domain.TransactionLog{TransactionID: transactionID, Event: event, Detail: detail, ActorID: actorID}
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("append log for transaction %d: %w", transactionID, err)
	}
	return nil
}

// Logs returns the audit trail of a transaction, oldest first
func (r *TransactionRepository) Logs(ctx context.Context, transactionID uint) ([]domain.TransactionLog, error) {
	var logs []domain.TransactionLog
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).Order("id asc").Find(&logs).Error
	return logs, err
}
