package fraud

import (
	"testing"
	"time"

	"digital_wallet/internal/config"
	"digital_wallet/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func tx(id uint, kind domain.TransactionKind, from, to uint, amount, currency string, at time.Time) domain.Transaction {
	return domain.Transaction{
		ID:         id,
		SenderID:   from,
		ReceiverID: to,
		Kind:       kind,
		Amount:     decimal.RequireFromString(amount),
		Currency:   currency,
		Status:     domain.StatusCompleted,
		CreatedAt:  at,
	}
}

func transfers(n int, from, to uint, start time.Time, step time.Duration) []domain.Transaction {
	out := make([]domain.Transaction, n)
	for i := range out {
		out[i] = tx(uint(i+1), domain.KindTransfer, from, to, "10", "USD", start.Add(time.Duration(i)*step))
	}
	return out
}

func TestScorerDefaultRules(t *testing.T) {
	scorer := NewScorer(config.DefaultFraudConfig())

	tests := []struct {
		name    string
		tx      domain.Transaction
		history []domain.Transaction
		want    Verdict
	}{
		{
			name: "small deposit is clean",
			tx:   tx(0, domain.KindDeposit, 1, 1, "100", "USD", base),
			want: Verdict{},
		},
		{
			name:    "fourth transfer in five minutes trips velocity",
			tx:      tx(0, domain.KindTransfer, 1, 2, "10", "USD", base.Add(3*time.Minute)),
			history: transfers(3, 1, 2, base, time.Minute),
			want:    Verdict{Suspicious: true, Reason: ReasonVelocity, Rule: "velocity"},
		},
		{
			name:    "third transfer in five minutes is clean",
			tx:      tx(0, domain.KindTransfer, 1, 2, "10", "USD", base.Add(2*time.Minute)),
			history: transfers(2, 1, 2, base, time.Minute),
			want:    Verdict{},
		},
		{
			name:    "transfers outside the window do not count",
			tx:      tx(0, domain.KindTransfer, 1, 2, "10", "USD", base.Add(20*time.Minute)),
			history: transfers(3, 1, 2, base, time.Minute),
			want:    Verdict{},
		},
		{
			name: "withdrawal above the USD ceiling",
			tx:   tx(0, domain.KindWithdrawal, 1, 1, "10000.01", "USD", base),
			want: Verdict{Suspicious: true, Reason: ReasonLargeWithdrawal, Rule: "amount_WITHDRAWAL"},
		},
		{
			name: "withdrawal at the ceiling is clean",
			tx:   tx(0, domain.KindWithdrawal, 1, 1, "10000", "USD", base),
			want: Verdict{},
		},
		{
			name: "transfer above the GBP ceiling",
			tx:   tx(0, domain.KindTransfer, 1, 2, "7600", "GBP", base),
			want: Verdict{Suspicious: true, Reason: ReasonLargeTransfer, Rule: "amount_TRANSFER"},
		},
		{
			name: "EUR ceiling is lower than USD",
			tx:   tx(0, domain.KindTransfer, 1, 2, "9000", "EUR", base),
			want: Verdict{Suspicious: true, Reason: ReasonLargeTransfer, Rule: "amount_TRANSFER"},
		},
		{
			name: "BONUS ceiling",
			tx:   tx(0, domain.KindWithdrawal, 1, 1, "1500", "BONUS", base),
			want: Verdict{Suspicious: true, Reason: ReasonLargeWithdrawal, Rule: "amount_WITHDRAWAL"},
		},
		{
			name: "currency without a ceiling is never an amount hit",
			tx:   tx(0, domain.KindTransfer, 1, 2, "20000", "JPY", base),
			want: Verdict{},
		},
		{
			name: "large deposit is not an amount hit",
			tx:   tx(0, domain.KindDeposit, 1, 1, "20000", "USD", base),
			want: Verdict{},
		},
		{
			name: "volume over an hour",
			tx:   tx(0, domain.KindDeposit, 1, 1, "9000", "USD", base.Add(50*time.Minute)),
			history: []domain.Transaction{
				tx(1, domain.KindDeposit, 1, 1, "9000", "USD", base),
				tx(2, domain.KindDeposit, 1, 1, "9000", "USD", base.Add(10*time.Minute)),
				tx(3, domain.KindDeposit, 1, 1, "9000", "USD", base.Add(20*time.Minute)),
				tx(4, domain.KindDeposit, 1, 1, "9000", "USD", base.Add(30*time.Minute)),
				tx(5, domain.KindTransfer, 3, 1, "6000", "USD", base.Add(40*time.Minute)),
			},
			want: Verdict{Suspicious: true, Reason: ReasonVolume, Rule: "volume"},
		},
		{
			name: "volume exactly at the ceiling is clean",
			tx:   tx(0, domain.KindDeposit, 1, 1, "10000", "USD", base.Add(50*time.Minute)),
			history: []domain.Transaction{
				tx(1, domain.KindDeposit, 1, 1, "10000", "USD", base),
				tx(2, domain.KindDeposit, 1, 1, "10000", "USD", base.Add(10*time.Minute)),
				tx(3, domain.KindDeposit, 1, 1, "10000", "USD", base.Add(20*time.Minute)),
				tx(4, domain.KindDeposit, 1, 1, "10000", "USD", base.Add(30*time.Minute)),
			},
			want: Verdict{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate := tt.tx
			assert.Equal(t, tt.want, scorer.Evaluate(&candidate, tt.history))
		})
	}
}

func TestScorerFirstMatchWins(t *testing.T) {
	scorer := NewScorer(config.DefaultFraudConfig())
	// Both velocity and the transfer ceiling match; velocity runs first.
	candidate := tx(0, domain.KindTransfer, 1, 2, "20000", "USD", base.Add(3*time.Minute))
	v := scorer.Evaluate(&candidate, transfers(3, 1, 2, base, time.Minute))
	assert.Equal(t, ReasonVelocity, v.Reason)
}

func TestScorerIgnoresItselfInHistory(t *testing.T) {
	scorer := NewScorer(config.DefaultFraudConfig())
	history := transfers(3, 1, 2, base, time.Minute)
	// Re-scoring the third transfer with itself present in history.
	candidate := history[2]
	assert.False(t, scorer.Evaluate(&candidate, history).Suspicious)
}

func TestRepeatRecipientRule(t *testing.T) {
	rule := RepeatRecipientRule{Window: time.Hour, Threshold: 3}
	scorer := NewScorerWithRules(rule)

	same := tx(0, domain.KindTransfer, 1, 2, "10", "USD", base.Add(30*time.Minute))
	v := scorer.Evaluate(&same, transfers(3, 1, 2, base, 5*time.Minute))
	assert.Equal(t, Verdict{Suspicious: true, Reason: ReasonRepeatRecipient, Rule: "repeat_recipient"}, v)

	other := tx(0, domain.KindTransfer, 1, 9, "10", "USD", base.Add(30*time.Minute))
	assert.False(t, scorer.Evaluate(&other, transfers(3, 1, 2, base, 5*time.Minute)).Suspicious)
}

func TestVelocityRuleCountsOnlyTheSendersTransfers(t *testing.T) {
	rule := VelocityRule{Window: 5 * time.Minute, Threshold: 3}
	history := []domain.Transaction{
		tx(1, domain.KindTransfer, 2, 1, "10", "USD", base),                 // Received, not sent
		tx(2, domain.KindDeposit, 1, 1, "10", "USD", base.Add(time.Minute)), // Not a transfer
		tx(3, domain.KindTransfer, 1, 2, "10", "USD", base.Add(2*time.Minute)),
		tx(4, domain.KindTransfer, 1, 2, "10", "USD", base.Add(3*time.Minute)),
	}
	candidate := tx(0, domain.KindTransfer, 1, 2, "10", "USD", base.Add(4*time.Minute))
	hit, _ := rule.Evaluate(&candidate, history)
	assert.False(t, hit)
}

func TestVolumeRuleKeepsCurrenciesApart(t *testing.T) {
	scorer := NewScorer(config.DefaultFraudConfig())
	history := []domain.Transaction{
		tx(1, domain.KindDeposit, 1, 1, "30000", "USD", base),
		tx(2, domain.KindDeposit, 1, 1, "15000", "USD", base.Add(10*time.Minute)),
	}

	yen := tx(0, domain.KindDeposit, 1, 1, "60000", "JPY", base.Add(20*time.Minute))
	assert.False(t, scorer.Evaluate(&yen, history).Suspicious, "JPY is not added to USD")

	usd := tx(0, domain.KindDeposit, 1, 1, "6000", "USD", base.Add(20*time.Minute))
	assert.Equal(t, Verdict{Suspicious: true, Reason: ReasonVolume, Rule: "volume"}, scorer.Evaluate(&usd, history))

	bigYen := tx(0, domain.KindDeposit, 1, 1, "8000000", "JPY", base.Add(20*time.Minute))
	assert.Equal(t, ReasonVolume, scorer.Evaluate(&bigYen, history).Reason, "JPY has its own ceiling")

	rule := VolumeRule{Window: time.Hour, Ceiling: decimal.NewFromInt(100)}
	eur := tx(0, domain.KindDeposit, 1, 1, "101", "EUR", base)
	hit, _ := rule.Evaluate(&eur, nil)
	assert.True(t, hit, "unlisted currencies fall back to the single ceiling")
}
