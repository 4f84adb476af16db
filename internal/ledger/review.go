package ledger

import (
	"context" // Request scoped operations
	"errors"  // Error inspection

	"digital_wallet/internal/db"         // Retrying unit of work
	"digital_wallet/internal/domain"     // Importing domain models
	"digital_wallet/internal/repository" // Transaction repository

	"github.com/sirupsen/logrus" // Structured logging
	"gorm.io/gorm"               // GORM ORM library
)

// Review actions
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// Resolver finalizes flagged transactions on an admin's decision
type Resolver struct {
	engine *Engine
}

// NewResolver creates a review resolver on top of the engine's balance logic
func NewResolver(engine *Engine) *Resolver {
	return &Resolver{engine: engine}
}

// Review approves or rejects a Flagged transaction. Approval applies the
// deferred balance effects, unless the scan flagged it after they were
// already applied, and completes it. Rejection fails it without touching
// balances. Either way the decision commits together with its effects.
func (r *Resolver) Review(ctx context.Context, id uint, action string, reviewerID uint) (*domain.Transaction, error) {
	e := r.engine
	current, err := e.txs.Get(ctx, id)
	if err != nil {
		return nil, r.fail(err, id, action)
	}
	var from string
	if current.Kind == domain.KindTransfer && action == ActionApprove {
		if from, err = e.senderLabel(ctx, current.SenderID); err != nil {
			return nil, err
		}
	}

	var result domain.Transaction
	err = db.Transaction(ctx, e.db, func(tx *gorm.DB) error {
		txs := e.txs.WithTx(tx)
		t, err := txs.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if t.Status != domain.StatusFlagged {
			return ErrNotFlagged
		}
		reviewedAt := e.now()
		reviewer := reviewerID
		detail := ""

		switch action {
		case ActionApprove:
			if t.Settled {
				t.Status = domain.StatusCompleted
				t.FlagReason = nil
				detail = "balances already applied"
			} else if err := e.apply(ctx, tx, t); err != nil {
				return err
			}
		case ActionReject:
			t.Status = domain.StatusFailed
			t.FlagReason = nil
			if t.Settled {
				detail = "balances already applied, not reversed"
			}
		default:
			return ErrInvalidAction
		}

		t.ReviewedAt = &reviewedAt
		t.ReviewedBy = &reviewer
		if err := txs.Save(ctx, t); err != nil {
			return err
		}
		event := domain.EventApproved
		if action == ActionReject {
			event = domain.EventRejected
		}
		if err := txs.AppendLog(ctx, t.ID, event, detail, &reviewer); err != nil {
			return err
		}
		if action == ActionApprove && t.Kind == domain.KindTransfer {
			if _, err := txs.FindInbound(ctx, t.ID); errors.Is(err, repository.ErrTransactionNotFound) {
				if err := e.createInbound(ctx, tx, t, from); err != nil {
					return err
				}
			} else if err != nil {
				return err
			}
		}
		result = *t
		return nil
	})
	if err != nil {
		return nil, r.fail(err, id, action)
	}

	e.metrics.Review(action)
	entry := e.log.WithFields(logrus.Fields{
		"transaction_id": result.ID,
		"action":         action,
		"reviewer_id":    reviewerID,
		"status":         result.Status,
		"amount":         result.Amount,
		"currency":       result.Currency,
	})
	if result.Settled && action == ActionReject {
		entry.Warn("Rejected transaction had already moved funds")
	} else {
		entry.Info("Transaction reviewed")
	}
	return &result, nil
}

func (r *Resolver) fail(err error, id uint, action string) error {
	code, class := Classify(err)
	r.engine.metrics.Error(code)
	entry := r.engine.log.WithFields(logrus.Fields{"transaction_id": id, "action": action, "code": code})
	if class == ClassInternal {
		entry.WithError(err).Error("Review failed")
	} else {
		entry.Info("Review rejected")
	}
	return err
}
