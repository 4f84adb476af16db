// Package fraud scores transactions for suspicious activity and runs the
// periodic scan that holds already-recorded transactions for review.
//
// The Scorer is a pure function of the transaction and the history handed to
// it: it never reads storage, so callers decide which window of history to
// load. Rules run in a fixed order and the first match wins.
package fraud

import (
	"time" // Rule windows

	"digital_wallet/internal/config" // Fraud options
	"digital_wallet/internal/domain" // Importing domain models

	"github.com/shopspring/decimal" // Exact decimal arithmetic
)

// Reasons reported by the built-in rules
const (
	ReasonVelocity        = "multiple transfers in short period"
	ReasonLargeWithdrawal = "large withdrawal amount"
	ReasonLargeTransfer   = "large transfer amount"
	ReasonVolume          = "rapid balance changes detected"
	ReasonRepeatRecipient = "suspicious transaction pattern detected"
)

// Verdict is the outcome of scoring one transaction
type Verdict struct {
	Suspicious bool   `json:"suspicious"`
	Reason     string `json:"reason,omitempty"`
	Rule       string `json:"rule,omitempty"`
}

// Rule inspects one transaction against its history
type Rule interface {
	Name() string
	Evaluate(tx *domain.Transaction, history []domain.Transaction) (bool, string)
}

// Scorer evaluates an ordered rule set
type Scorer struct {
	rules []Rule
}

// NewScorer builds the default rule set from configuration
func NewScorer(cfg config.FraudConfig) *Scorer {
	return NewScorerWithRules(
		VelocityRule{Window: cfg.VelocityWindow, Threshold: cfg.VelocityThreshold},
		AmountRule{Kind: domain.KindWithdrawal, Ceilings: cfg.SuspiciousAmounts, Reason: ReasonLargeWithdrawal},
		AmountRule{Kind: domain.KindTransfer, Ceilings: cfg.SuspiciousAmounts, Reason: ReasonLargeTransfer},
		VolumeRule{Window: cfg.VolumeWindow, Ceiling: cfg.VolumeCeiling, Ceilings: cfg.VolumeCeilings},
		RepeatRecipientRule{Window: cfg.VelocityWindow, Threshold: cfg.RepeatRecipientThreshold},
	)
}

// NewScorerWithRules builds a scorer from an explicit rule list
func NewScorerWithRules(rules ...Rule) *Scorer {
	return &Scorer{rules: rules}
}

// Evaluate returns the verdict of the first matching rule
func (s *Scorer) Evaluate(tx *domain.Transaction, history []domain.Transaction) Verdict {
	for _, r := range s.rules {
		if hit, reason := r.Evaluate(tx, history); hit {
			return Verdict{Suspicious: true, Reason: reason, Rule: r.Name()}
		}
	}
	return Verdict{}
}

// inWindow reports whether h was created in (ref-window, ref] and is not tx itself
func inWindow(tx, h *domain.Transaction, window time.Duration) bool {
	if tx.ID != 0 && h.ID == tx.ID {
		return false
	}
	ref := tx.CreatedAt
	return h.CreatedAt.After(ref.Add(-window)) && !h.CreatedAt.After(ref)
}

// VelocityRule flags a sender making more than Threshold transfers inside Window,
// counting the transaction being scored.
type VelocityRule struct {
	Window    time.Duration
	Threshold int
}

func (VelocityRule) Name() string { return "velocity" }

func (r VelocityRule) Evaluate(tx *domain.Transaction, history []domain.Transaction) (bool, string) {
	if tx.Kind != domain.KindTransfer || r.Threshold <= 0 {
		return false, ""
	}
	count := 1
	for i := range history {
		h := &history[i]
		if h.Kind == domain.KindTransfer && h.SenderID == tx.SenderID && inWindow(tx, h, r.Window) {
			count++
		}
	}
	if count > r.Threshold {
		return true, ReasonVelocity
	}
	return false, ""
}

// AmountRule flags a transaction of Kind above its currency's ceiling. Currencies
// missing from the table are never flagged by this rule.
type AmountRule struct {
	Kind     domain.TransactionKind
	Ceilings map[string]decimal.Decimal
	Reason   string
}

func (r AmountRule) Name() string { return "amount_" + string(r.Kind) }

func (r AmountRule) Evaluate(tx *domain.Transaction, _ []domain.Transaction) (bool, string) {
	if tx.Kind != r.Kind {
		return false, ""
	}
	ceiling, ok := r.Ceilings[tx.Currency]
	if ok && tx.Amount.GreaterThan(ceiling) {
		return true, r.Reason
	}
	return false, ""
}

// VolumeRule flags a sender whose transactions in one currency, sent or
// received, add up to more than that currency's ceiling inside Window,
// including the transaction being scored. Amounts in other currencies are
// never added together.
type VolumeRule struct {
	Window   time.Duration
	Ceiling  decimal.Decimal            // Used when Ceilings has no entry for the currency
	Ceilings map[string]decimal.Decimal // Per-currency override
}

func (VolumeRule) Name() string { return "volume" }

func (r VolumeRule) ceiling(currency string) decimal.Decimal {
	if c, ok := r.Ceilings[currency]; ok {
		return c
	}
	return r.Ceiling
}

func (r VolumeRule) Evaluate(tx *domain.Transaction, history []domain.Transaction) (bool, string) {
	ceiling := r.ceiling(tx.Currency)
	if !ceiling.IsPositive() {
		return false, ""
	}
	total := tx.Amount
	for i := range history {
		h := &history[i]
		if h.Currency != tx.Currency {
			continue
		}
		if (h.SenderID == tx.SenderID || h.ReceiverID == tx.SenderID) && inWindow(tx, h, r.Window) {
			total = total.Add(h.Amount)
		}
	}
	if total.GreaterThan(ceiling) {
		return true, ReasonVolume
	}
	return false, ""
}

// RepeatRecipientRule flags more than Threshold transfers from one sender to
// the same receiver inside Window, including the transaction being scored.
type RepeatRecipientRule struct {
	Window    time.Duration
	Threshold int
}

func (RepeatRecipientRule) Name() string { return "repeat_recipient" }

func (r RepeatRecipientRule) Evaluate(tx *domain.Transaction, history []domain.Transaction) (bool, string) {
	if tx.Kind != domain.KindTransfer || r.Threshold <= 0 {
		return false, ""
	}
	count := 1
	for i := range history {
		h := &history[i]
		if h.Kind == domain.KindTransfer && h.SenderID == tx.SenderID && h.ReceiverID == tx.ReceiverID && inWindow(tx, h, r.Window) {
			count++
		}
	}
	if count > r.Threshold {
		return true, ReasonRepeatRecipient
	}
	return false, ""
}
