package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgeron/SwapDecksMarketplace/internal/models"
)

func TestMemoryStore_GetAccount_InitializesOnFirstTouch(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	acc, err := s.GetAccount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", acc.UserID)
	assert.Equal(t, int64(0), acc.Balance)

	balance, err := s.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestMemoryStore_ApplyAtomic_AllOrNothing(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.ApplyAtomic(ctx,
		[]BalanceMutation{{UserID: "buyer", Delta: 100}}, nil))

	// A batch where one resulting balance goes negative must change nothing.
	err := s.ApplyAtomic(ctx,
		[]BalanceMutation{
			{UserID: "buyer", Delta: -500},
			{UserID: "seller", Delta: 450},
		},
		[]OwnershipGrant{{BuyerID: "buyer", DeckID: "deck-1"}})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	buyerBalance, _ := s.GetBalance(ctx, "buyer")
	sellerBalance, _ := s.GetBalance(ctx, "seller")
	assert.Equal(t, int64(100), buyerBalance, "failed batch must not touch the debited account")
	assert.Equal(t, int64(0), sellerBalance, "failed batch must not touch the credited account")

	owned, _ := s.HasOwnership(ctx, "buyer", "deck-1")
	assert.False(t, owned, "failed batch must not grant ownership")
}

func TestMemoryStore_ApplyAtomic_NetsDeltasPerAccount(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// -100 and +40 on one account with balance 70 nets to -60: allowed.
	require.NoError(t, s.ApplyAtomic(ctx,
		[]BalanceMutation{{UserID: "u", Delta: 70}}, nil))
	require.NoError(t, s.ApplyAtomic(ctx,
		[]BalanceMutation{
			{UserID: "u", Delta: -100},
			{UserID: "u", Delta: 40},
		}, nil))

	balance, _ := s.GetBalance(ctx, "u")
	assert.Equal(t, int64(10), balance)
}

func TestMemoryStore_OwnershipGrantIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateDeck(ctx, &models.Deck{ID: "deck-1", OwnerID: "c", Title: "Deck", Price: 100}))

	grant := []OwnershipGrant{{BuyerID: "buyer", DeckID: "deck-1"}}
	require.NoError(t, s.ApplyAtomic(ctx, nil, grant))
	require.NoError(t, s.ApplyAtomic(ctx, nil, grant))

	decks, err := s.ListOwnedDecks(ctx, "buyer")
	require.NoError(t, err)
	assert.Len(t, decks, 1, "re-granting the same pair must not duplicate")
}

func TestMemoryStore_ConcurrentDebits_NeverNegative(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.ApplyAtomic(ctx,
		[]BalanceMutation{{UserID: "buyer", Delta: 1000}}, nil))

	// 50 concurrent debits of 100 against 1000: exactly 10 may pass.
	var wg sync.WaitGroup
	succeeded := int64(0)
	var mu sync.Mutex
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.ApplyAtomic(ctx,
				[]BalanceMutation{{UserID: "buyer", Delta: -100}}, nil)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	balance, _ := s.GetBalance(ctx, "buyer")
	assert.Equal(t, int64(10), succeeded)
	assert.Equal(t, int64(0), balance)
	assert.GreaterOrEqual(t, balance, int64(0), "balance must never go negative")
}

func TestMemoryStore_MarkEventProcessed_Dedup(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	inserted, err := s.MarkEventProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.MarkEventProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, inserted, "second delivery of the same event id must be skipped")

	inserted, err = s.MarkEventProcessed(ctx, "evt_2")
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestMemoryStore_BlockedIntents_FIFO(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.CreatePurchaseIntent(ctx, &models.PurchaseIntent{
			ID:               fmt.Sprintf("pi_%d", i),
			BuyerID:          "buyer",
			DeckID:           fmt.Sprintf("deck-%d", i),
			Price:            100,
			Status:           models.PurchasePending,
			BlockedOnTopUpID: "tui_1",
		}))
	}
	// A settled intent and one blocked elsewhere must not appear.
	require.NoError(t, s.UpdatePurchaseIntentStatus(ctx, "pi_2", models.PurchaseSettled))
	require.NoError(t, s.CreatePurchaseIntent(ctx, &models.PurchaseIntent{
		ID: "pi_other", BuyerID: "buyer", DeckID: "deck-9", Price: 100,
		Status: models.PurchasePending, BlockedOnTopUpID: "tui_2",
	}))

	blocked, err := s.ListBlockedPurchaseIntents(ctx, "tui_1")
	require.NoError(t, err)
	require.Len(t, blocked, 2)
	assert.Equal(t, "pi_1", blocked[0].ID)
	assert.Equal(t, "pi_3", blocked[1].ID)
}

func TestMemoryStore_ExpireStale(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.CreateTopUpIntent(ctx, &models.TopUpIntent{
		ID: "tui_old", UserID: "buyer", Amount: 100,
		Status: models.TopUpPending, ExternalSessionID: "cs_old", CreatedAt: old,
	}))
	require.NoError(t, s.CreatePurchaseIntent(ctx, &models.PurchaseIntent{
		ID: "pi_old", BuyerID: "buyer", DeckID: "deck-1", Price: 100,
		Status: models.PurchasePending, BlockedOnTopUpID: "tui_old", CreatedAt: old,
	}))
	require.NoError(t, s.CreatePurchaseIntent(ctx, &models.PurchaseIntent{
		ID: "pi_fresh", BuyerID: "buyer", DeckID: "deck-2", Price: 100,
		Status: models.PurchasePending,
	}))

	expired, err := s.ExpireStale(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	p, err := s.GetPurchaseIntent(ctx, "pi_old")
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseFailed, p.Status)

	tu, err := s.GetTopUpIntentBySession(ctx, "cs_old")
	require.NoError(t, err)
	assert.Equal(t, models.TopUpExpired, tu.Status)

	fresh, err := s.GetPurchaseIntent(ctx, "pi_fresh")
	require.NoError(t, err)
	assert.Equal(t, models.PurchasePending, fresh.Status)
}

func TestMemoryStore_PayoutAccountLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetPayoutAccount(ctx, "creator-1", "acct_1"))

	acc, err := s.GetAccount(ctx, "creator-1")
	require.NoError(t, err)
	assert.Equal(t, "acct_1", acc.PayoutAccountID)
	assert.False(t, acc.PayoutsEnabled)

	require.NoError(t, s.SetPayoutsEnabled(ctx, "acct_1", true))
	acc, err = s.GetAccount(ctx, "creator-1")
	require.NoError(t, err)
	assert.True(t, acc.PayoutsEnabled)
}

func TestMemoryStore_GetDeck_NotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetDeck(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrDeckNotFound)
}
