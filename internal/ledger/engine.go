// Package ledger applies deposits, withdrawals and transfers to wallet
// balances and resolves transactions held for fraud review.
package ledger

import (
	"context" // Request scoped operations
	"errors"  // Error inspection
	"fmt"     // Error wrapping
	"regexp"  // Currency code validation
	"strings" // Normalisation
	"time"    // Timestamps

	"digital_wallet/internal/db"         // Retrying unit of work
	"digital_wallet/internal/domain"     // Importing domain models
	"digital_wallet/internal/fraud"      // Suspicion scoring
	"digital_wallet/internal/metrics"    // Prometheus collectors
	"digital_wallet/internal/repository" // Wallet store and transaction repository

	"github.com/shopspring/decimal" // Exact decimal arithmetic
	"github.com/sirupsen/logrus"    // Structured logging
	"gorm.io/gorm"                  // GORM ORM library
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{2,10}$`)

// Users is the identity collaborator the engine needs
type Users interface {
	ResolveUserByEmail(ctx context.Context, email string) (uint, error)
	EmailsByID(ctx context.Context, ids []uint) (map[uint]string, error)
}

// SubmitRequest describes a transaction requested by SenderID
type SubmitRequest struct {
	Kind          domain.TransactionKind
	SenderID      uint
	Currency      string
	Amount        decimal.Decimal
	ReceiverEmail string
	Description   string
}

// Options tune an Engine
type Options struct {
	HistoryWindow time.Duration      // History loaded for scoring, default 24h
	Logger        logrus.FieldLogger // Defaults to the standard logrus logger
	Metrics       *metrics.Metrics   // Optional
	Clock         func() time.Time   // Defaults to time.Now in UTC
}

// Engine validates transactions, scores them and applies their balance
// effects in one unit of work.
type Engine struct {
	db            *gorm.DB
	wallets       *repository.WalletStore
	txs           *repository.TransactionRepository
	users         Users
	scorer        *fraud.Scorer
	historyWindow time.Duration
	log           logrus.FieldLogger
	metrics       *metrics.Metrics
	now           func() time.Time
}

// NewEngine creates a ledger engine
func NewEngine(gdb *gorm.DB, wallets *repository.WalletStore, txs *repository.TransactionRepository, users Users, scorer *fraud.Scorer, opts Options) *Engine {
	e := &Engine{
		db:            gdb,
		wallets:       wallets,
		txs:           txs,
		users:         users,
		scorer:        scorer,
		historyWindow: opts.HistoryWindow,
		log:           opts.Logger,
		metrics:       opts.Metrics,
		now:           opts.Clock,
	}
	if e.historyWindow <= 0 {
		e.historyWindow = 24 * time.Hour
	}
	if e.log == nil {
		e.log = logrus.StandardLogger()
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	return e
}

// Submit validates the request, scores it and either holds it as Flagged
// without touching balances or applies it and marks it Completed.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (*domain.Transaction, error) {
	t, err := e.prepare(ctx, req)
	if err != nil {
		code, _ := Classify(err)
		e.metrics.Error(code)
		e.log.WithFields(logrus.Fields{
			"sender_id": req.SenderID, // Requesting user
			"kind":      req.Kind,     // Transaction kind
			"amount":    req.Amount,   // Requested amount
			"currency":  req.Currency, // Requested currency
			"code":      code,         // Error code
		}).Info("Transaction rejected")
		return nil, err
	}

	if err = e.record(ctx, t); err != nil {
		code, _ := Classify(err)
		e.metrics.Error(code)
		e.log.WithFields(logrus.Fields{
			"sender_id": t.SenderID, // Requesting user
			"kind":      t.Kind,     // Transaction kind
			"amount":    t.Amount,   // Requested amount
			"currency":  t.Currency, // Requested currency
			"error":     err.Error(),
		}).Error("Transaction failed")
		return nil, err
	}

	e.metrics.Submission(string(t.Kind), string(t.Status))
	e.log.WithFields(logrus.Fields{
		"transaction_id": t.ID,         // New transaction
		"sender_id":      t.SenderID,   // Sender
		"receiver_id":    t.ReceiverID, // Receiver
		"kind":           t.Kind,       // Transaction kind
		"amount":         t.Amount,     // Amount
		"currency":       t.Currency,   // Currency
		"status":         t.Status,     // Completed or Flagged
		"flag_reason":    t.Reason(),   // Empty unless flagged
	}).Info("Transaction submitted")
	return t, nil
}

// record scores t against the sender's recent history and then holds or settles it
func (e *Engine) record(ctx context.Context, t *domain.Transaction) error {
	history, err := e.txs.History(ctx, t.SenderID, t.CreatedAt.Add(-e.historyWindow), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	verdict := e.scorer.Evaluate(t, history)
	if verdict.Suspicious {
		return e.hold(ctx, t, verdict)
	}
	return e.settle(ctx, t)
}

// prepare runs the fail-fast validation and builds the pending record
func (e *Engine) prepare(ctx context.Context, req SubmitRequest) (*domain.Transaction, error) {
	if !req.Amount.IsPositive() || !domain.AmountFits(req.Amount) {
		return nil, ErrInvalidAmount
	}
	if !req.Kind.Valid() {
		return nil, ErrInvalidKind
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if !currencyPattern.MatchString(currency) {
		return nil, ErrInvalidCurrency
	}

	receiverID := req.SenderID
	var receiverWallet *domain.Wallet
	if req.Kind == domain.KindTransfer {
		if strings.TrimSpace(req.ReceiverEmail) == "" {
			return nil, ErrReceiverNotFound
		}
		id, err := e.users.ResolveUserByEmail(ctx, req.ReceiverEmail)
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrReceiverNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("resolve receiver: %w", err)
		}
		if id == req.SenderID {
			return nil, ErrSelfTransferNotAllowed
		}
		receiverID = id
		if receiverWallet, err = e.wallets.GetOrCreate(ctx, receiverID); err != nil {
			return nil, err
		}
	}

	senderWallet, err := e.wallets.GetOrCreate(ctx, req.SenderID)
	if err != nil {
		return nil, err
	}
	if receiverWallet == nil {
		receiverWallet = senderWallet
	}

	// Advisory only: the authoritative check runs under the wallet lock.
	if req.Kind != domain.KindDeposit {
		if balance := senderWallet.Balances.Get(currency); balance.LessThan(req.Amount) {
			return nil, insufficient(currency, balance)
		}
	}

	return &domain.Transaction{
		OwnerID:          req.SenderID,
		WalletID:         senderWallet.ID,
		SenderID:         req.SenderID,
		ReceiverID:       receiverID,
		SenderWalletID:   senderWallet.ID,
		ReceiverWalletID: receiverWallet.ID,
		Amount:           req.Amount,
		Currency:         currency,
		Kind:             req.Kind,
		Status:           domain.StatusPending,
		Description:      strings.TrimSpace(req.Description),
		CreatedAt:        e.now(),
	}, nil
}

func insufficient(currency string, balance decimal.Decimal) error {
	return fmt.Errorf("%w: %s balance is %s", ErrInsufficientFunds, currency, balance.String())
}

// hold persists t as Flagged; balances stay untouched until review
func (e *Engine) hold(ctx context.Context, t *domain.Transaction, v fraud.Verdict) error {
	e.metrics.Verdict(v.Rule, "submit")
	template := *t
	reason := v.Reason
	template.Status = domain.StatusFlagged
	template.FlagReason = &reason
	return db.Transaction(ctx, e.db, func(tx *gorm.DB) error {
		rec := template
		txs := e.txs.WithTx(tx)
		if err := txs.Create(ctx, &rec); err != nil {
			return err
		}
		if err := txs.AppendLog(ctx, rec.ID, domain.EventFlagged, v.Reason, nil); err != nil {
			return err
		}
		*t = rec
		return nil
	})
}

// settle applies t's balance effects and records it as Completed
func (e *Engine) settle(ctx context.Context, t *domain.Transaction) error {
	var from string
	if t.Kind == domain.KindTransfer {
		var err error
		if from, err = e.senderLabel(ctx, t.SenderID); err != nil {
			return err
		}
	}
	template := *t
	return db.Transaction(ctx, e.db, func(tx *gorm.DB) error {
		rec := template
		if err := e.apply(ctx, tx, &rec); err != nil {
			return err
		}
		txs := e.txs.WithTx(tx)
		if err := txs.Create(ctx, &rec); err != nil {
			return err
		}
		if err := txs.AppendLog(ctx, rec.ID, domain.EventCompleted, "", nil); err != nil {
			return err
		}
		if rec.Kind == domain.KindTransfer {
			if err := e.createInbound(ctx, tx, &rec, from); err != nil {
				return err
			}
		}
		*t = rec
		return nil
	})
}

// apply takes the wallet locks in ascending id order, re-validates funds and
// moves the money. It must run inside a unit of work.
func (e *Engine) apply(ctx context.Context, tx *gorm.DB, t *domain.Transaction) error {
	wallets := e.wallets.WithTx(tx)
	ids := []uint{t.SenderWalletID}
	if t.Kind == domain.KindTransfer {
		ids = append(ids, t.ReceiverWalletID)
	}
	locked, err := wallets.Lock(ctx, ids...)
	if err != nil {
		return err
	}
	sender := locked[t.SenderWalletID]

	switch t.Kind {
	case domain.KindDeposit:
		err = wallets.Credit(ctx, sender, t.Currency, t.Amount)
	case domain.KindWithdrawal:
		err = e.debit(ctx, wallets, sender, t)
	case domain.KindTransfer:
		if err = e.debit(ctx, wallets, sender, t); err == nil {
			err = wallets.Credit(ctx, locked[t.ReceiverWalletID], t.Currency, t.Amount)
		}
	default:
		err = ErrInvalidKind
	}
	if err != nil {
		return err
	}

	t.Status = domain.StatusCompleted
	t.Settled = true
	t.FlagReason = nil
	return nil
}

func (e *Engine) debit(ctx context.Context, wallets *repository.WalletStore, w *domain.Wallet, t *domain.Transaction) error {
	balance := w.Balances.Get(t.Currency)
	if err := wallets.Debit(ctx, w, t.Currency, t.Amount); err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return insufficient(t.Currency, balance)
		}
		return err
	}
	return nil
}

// senderLabel names the sender in the receiver-side description
func (e *Engine) senderLabel(ctx context.Context, senderID uint) (string, error) {
	emails, err := e.users.EmailsByID(ctx, []uint{senderID})
	if err != nil {
		return "", err
	}
	if from := emails[senderID]; from != "" {
		return from, nil
	}
	return fmt.Sprintf("user %d", senderID), nil
}

// createInbound writes the receiver-side record of a settled transfer
func (e *Engine) createInbound(ctx context.Context, tx *gorm.DB, t *domain.Transaction, from string) error {
	description := "Received from " + from
	if t.Description != "" {
		description += ": " + t.Description
	}
	primaryID := t.ID
	in := &domain.Transaction{
		OwnerID:             t.ReceiverID,
		WalletID:            t.ReceiverWalletID,
		SenderID:            t.SenderID,
		ReceiverID:          t.ReceiverID,
		SenderWalletID:      t.SenderWalletID,
		ReceiverWalletID:    t.ReceiverWalletID,
		LinkedTransactionID: &primaryID,
		Amount:              t.Amount,
		Currency:            t.Currency,
		Kind:                domain.KindTransfer,
		Status:              domain.StatusCompleted,
		Settled:             true,
		Description:         description,
		CreatedAt:           e.now(),
	}
	return e.txs.WithTx(tx).Create(ctx, in)
}

// History returns the user's ledger page, most recent first
func (e *Engine) History(ctx context.Context, userID uint, offset, limit int) ([]domain.Transaction, int64, error) {
	return e.txs.ListByOwner(ctx, userID, offset, limit)
}

// Wallet returns the user's wallet, creating it on first access
func (e *Engine) Wallet(ctx context.Context, userID uint) (*domain.Wallet, error) {
	return e.wallets.GetOrCreate(ctx, userID)
}
