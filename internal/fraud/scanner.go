package fraud

import (
	"context" // Cancellation
	"errors"  // Error inspection
	"fmt"     // Log detail
	"time"    // Windows and timestamps

	"digital_wallet/internal/domain"     // Importing domain models
	"digital_wallet/internal/metrics"    // Prometheus collectors
	"digital_wallet/internal/repository" // Transaction repository

	"github.com/shopspring/decimal" // Exact decimal arithmetic
	"github.com/sirupsen/logrus"    // Structured logging
)

// Summary reports the outcome of one scan
type Summary struct {
	ScannedCount      int                        `json:"scanned_count"`
	FlaggedCount      int                        `json:"flagged_count"`
	FlaggedAmount     decimal.Decimal            `json:"flagged_amount"`
	FlaggedByCurrency map[string]decimal.Decimal `json:"flagged_by_currency"`
	StaleCount        int                        `json:"stale_count"`
	ScannedAt         time.Time                  `json:"scanned_at"`
}

// ScannerOptions tune a Scanner
type ScannerOptions struct {
	Lookback      time.Duration      // Age of the oldest transaction re-scored, default 24h
	HistoryWindow time.Duration      // History loaded per transaction, default 24h
	Logger        logrus.FieldLogger // Defaults to the standard logrus logger
	Metrics       *metrics.Metrics   // Optional
	Clock         func() time.Time   // Defaults to time.Now in UTC
}

// Scanner re-scores recent transactions and flags the suspicious ones for
// review. It only writes flag fields and never touches balances or wallet
// locks, so funds already moved stay moved.
type Scanner struct {
	txs           *repository.TransactionRepository
	scorer        *Scorer
	lookback      time.Duration
	historyWindow time.Duration
	log           logrus.FieldLogger
	metrics       *metrics.Metrics
	now           func() time.Time
}

// NewScanner creates a scanner
func NewScanner(txs *repository.TransactionRepository, scorer *Scorer, opts ScannerOptions) *Scanner {
	s := &Scanner{
		txs:           txs,
		scorer:        scorer,
		lookback:      opts.Lookback,
		historyWindow: opts.HistoryWindow,
		log:           opts.Logger,
		metrics:       opts.Metrics,
		now:           opts.Clock,
	}
	if s.lookback <= 0 {
		s.lookback = 24 * time.Hour
	}
	if s.historyWindow <= 0 {
		s.historyWindow = 24 * time.Hour
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// Scan re-scores every candidate created within the lookback window. Flagged
// transactions are not candidates, so running it twice flags nothing new.
func (s *Scanner) Scan(ctx context.Context) (Summary, error) {
	started := s.now()
	summary := Summary{
		FlaggedAmount:     decimal.Zero,
		FlaggedByCurrency: map[string]decimal.Decimal{},
		ScannedAt:         started,
	}
	candidates, err := s.txs.ScanCandidates(ctx, started.Add(-s.lookback))
	if err != nil {
		return summary, err
	}

	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		t := &candidates[i]
		summary.ScannedCount++
		history, err := s.txs.History(ctx, t.SenderID, t.CreatedAt.Add(-s.historyWindow), t.CreatedAt)
		if err != nil {
			return summary, err
		}
		verdict := s.scorer.Evaluate(t, history)
		if !verdict.Suspicious {
			continue
		}
		flagged, err := s.flag(ctx, t, verdict)
		if err != nil {
			return summary, err
		}
		if !flagged {
			summary.StaleCount++
			continue
		}
		s.metrics.Verdict(verdict.Rule, "scan")
		summary.FlaggedCount++
		summary.FlaggedAmount = summary.FlaggedAmount.Add(t.Amount)
		summary.FlaggedByCurrency[t.Currency] = summary.FlaggedByCurrency[t.Currency].Add(t.Amount)
	}

	s.metrics.Scan(s.now().Sub(started), summary.FlaggedCount)
	s.log.WithFields(logrus.Fields{
		"scanned":        summary.ScannedCount,
		"flagged":        summary.FlaggedCount,
		"flagged_amount": summary.FlaggedAmount.String(),
		"stale":          summary.StaleCount,
	}).Info("Fraud scan completed")
	return summary, nil
}

// flag writes the verdict. The row may have changed since the candidate
// snapshot: a deleted or already flagged row is skipped, any other status
// change is flagged anyway and recorded in the transaction log.
func (s *Scanner) flag(ctx context.Context, t *domain.Transaction, v Verdict) (bool, error) {
	ok, err := s.txs.MarkFlagged(ctx, t.ID, t.Status, v.Reason)
	if err != nil {
		return false, err
	}
	fields := logrus.Fields{"transaction_id": t.ID, "reason": v.Reason, "rule": v.Rule}
	if ok {
		s.log.WithFields(fields).Warn("Transaction flagged by scan")
		return true, s.txs.AppendLog(ctx, t.ID, domain.EventScanFlagged, v.Reason, nil)
	}

	current, err := s.txs.Get(ctx, t.ID)
	if errors.Is(err, repository.ErrTransactionNotFound) {
		s.log.WithFields(fields).Warn("Transaction deleted before it could be flagged")
		return false, s.txs.AppendLog(ctx, t.ID, domain.EventScanStale, "deleted before flag", nil)
	}
	if err != nil {
		return false, err
	}
	if current.Status == domain.StatusFlagged {
		return false, nil
	}

	detail := fmt.Sprintf("status changed from %s to %s before flag", t.Status, current.Status)
	if ok, err = s.txs.MarkFlagged(ctx, t.ID, "", v.Reason); err != nil || !ok {
		return false, err
	}
	fields["previous_status"] = current.Status
	s.log.WithFields(fields).Warn("Transaction flagged from a stale snapshot")
	if err := s.txs.AppendLog(ctx, t.ID, domain.EventScanStale, detail, nil); err != nil {
		return false, err
	}
	return true, s.txs.AppendLog(ctx, t.ID, domain.EventScanFlagged, v.Reason, nil)
}
