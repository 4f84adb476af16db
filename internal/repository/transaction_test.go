package repository_test

import (
	"context"
	"testing"
	"time"

	"digital_wallet/internal/dbtest"
	"digital_wallet/internal/domain"
	"digital_wallet/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(kind domain.TransactionKind, from, to uint, status domain.TransactionStatus, at time.Time) *domain.Transaction {
	return &domain.Transaction{
		OwnerID:    from,
		SenderID:   from,
		ReceiverID: to,
		Kind:       kind,
		Amount:     decimal.NewFromInt(5),
		Currency:   "USD",
		Status:     status,
		CreatedAt:  at,
	}
}

func TestTransactionRepositoryQueries(t *testing.T) {
	gdb := dbtest.Open(t)
	repo := repository.NewTransactionRepository(gdb)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	a := dbtest.User(t, gdb, "a@example.com").ID
	b := dbtest.User(t, gdb, "b@example.com").ID

	old := newRecord(domain.KindDeposit, a, a, domain.StatusCompleted, now.Add(-3*time.Hour))
	sent := newRecord(domain.KindTransfer, a, b, domain.StatusCompleted, now.Add(-time.Hour))
	held := newRecord(domain.KindWithdrawal, a, a, domain.StatusFlagged, now.Add(-30*time.Minute))
	received := newRecord(domain.KindTransfer, b, a, domain.StatusPending, now.Add(-10*time.Minute))
	for _, rec := range []*domain.Transaction{old, sent, held, received} {
		require.NoError(t, repo.Create(ctx, rec))
	}
	linked := sent.ID
	inbound := newRecord(domain.KindTransfer, a, b, domain.StatusCompleted, now.Add(-time.Hour))
	inbound.OwnerID = b
	inbound.LinkedTransactionID = &linked
	require.NoError(t, repo.Create(ctx, inbound))

	t.Run("history excludes receiver copies and respects bounds", func(t *testing.T) {
		history, err := repo.History(ctx, a, now.Add(-2*time.Hour), now)
		require.NoError(t, err)
		ids := make([]uint, len(history))
		for i, h := range history {
			ids[i] = h.ID
		}
		assert.Equal(t, []uint{sent.ID, held.ID, received.ID}, ids)
	})

	t.Run("scan candidates", func(t *testing.T) {
		candidates, err := repo.ScanCandidates(ctx, now.Add(-2*time.Hour))
		require.NoError(t, err)
		require.Len(t, candidates, 2)
		assert.Equal(t, sent.ID, candidates[0].ID)
		assert.Equal(t, received.ID, candidates[1].ID)
	})

	t.Run("owner listing is most recent first", func(t *testing.T) {
		items, total, err := repo.ListByOwner(ctx, b, 0, 10)
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		assert.Equal(t, received.ID, items[0].ID)
		assert.Equal(t, inbound.ID, items[1].ID)
	})

	t.Run("admin filter", func(t *testing.T) {
		items, total, err := repo.List(ctx, repository.Filter{UserID: b, Kind: domain.KindTransfer}, 0, 10)
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		assert.Len(t, items, 2)

		from := now.Add(-45 * time.Minute)
		items, _, err = repo.List(ctx, repository.Filter{Status: domain.StatusFlagged, From: &from}, 0, 10)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, held.ID, items[0].ID)
	})

	t.Run("mark flagged is conditional", func(t *testing.T) {
		ok, err := repo.MarkFlagged(ctx, received.ID, domain.StatusCompleted, "r")
		require.NoError(t, err)
		assert.False(t, ok, "status no longer matches the snapshot")

		ok, err = repo.MarkFlagged(ctx, received.ID, domain.StatusPending, "r")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.MarkFlagged(ctx, received.ID, "", "again")
		require.NoError(t, err)
		assert.False(t, ok, "already flagged")

		got, err := repo.Get(ctx, received.ID)
		require.NoError(t, err)
		assert.Equal(t, "r", got.Reason())
	})

	t.Run("audit log", func(t *testing.T) {
		actor := b
		require.NoError(t, repo.AppendLog(ctx, held.ID, domain.EventFlagged, "large", nil))
		require.NoError(t, repo.AppendLog(ctx, held.ID, domain.EventRejected, "", &actor))
		logs, err := repo.Logs(ctx, held.ID)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, domain.EventFlagged, logs[0].Event)
		assert.Equal(t, b, *logs[1].ActorID)
	})

	_, err := repo.Get(ctx, 12345)
	assert.ErrorIs(t, err, repository.ErrTransactionNotFound)
}
