package store

import (
	"context"
	"errors"
	"time"

	"github.com/rgeron/SwapDecksMarketplace/internal/models"
)

var (
	ErrDeckNotFound      = errors.New("deck not found")
	ErrIntentNotFound    = errors.New("intent not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// BalanceMutation is one delta applied to a user's balance.
type BalanceMutation struct {
	UserID string
	Delta  int64
}

// OwnershipGrant records that a buyer now owns a deck.
type OwnershipGrant struct {
	BuyerID string
	DeckID  string
}

// Store is the ledger's sole persistence contract. ApplyAtomic is the only
// path that mutates balances or creates ownership: every delta and grant in a
// call lands together or not at all, and the batch is rejected with
// ErrInsufficientFunds if any resulting balance would go negative. That check
// runs inside the same transaction as the mutation, which is what closes the
// race between concurrent spends on one account.
type Store interface {
	// GetAccount initializes the account to a zero balance on first touch.
	GetAccount(ctx context.Context, userID string) (*models.Account, error)
	GetBalance(ctx context.Context, userID string) (int64, error)

	ApplyAtomic(ctx context.Context, muts []BalanceMutation, grants []OwnershipGrant) error

	CreateDeck(ctx context.Context, deck *models.Deck) error
	GetDeck(ctx context.Context, deckID string) (*models.Deck, error)
	ListDecks(ctx context.Context) ([]models.Deck, error)

	// HasOwnership reports whether the grant already exists. Re-granting an
	// existing pair through ApplyAtomic is a no-op, not an error.
	HasOwnership(ctx context.Context, buyerID, deckID string) (bool, error)
	ListOwnedDecks(ctx context.Context, buyerID string) ([]models.Deck, error)

	CreatePurchaseIntent(ctx context.Context, intent *models.PurchaseIntent) error
	GetPurchaseIntent(ctx context.Context, intentID string) (*models.PurchaseIntent, error)
	UpdatePurchaseIntentStatus(ctx context.Context, intentID, status string) error
	// ListBlockedPurchaseIntents returns pending intents blocked on the given
	// top-up, oldest first.
	ListBlockedPurchaseIntents(ctx context.Context, topUpIntentID string) ([]models.PurchaseIntent, error)

	CreateTopUpIntent(ctx context.Context, intent *models.TopUpIntent) error
	GetTopUpIntentBySession(ctx context.Context, externalSessionID string) (*models.TopUpIntent, error)
	UpdateTopUpIntentStatus(ctx context.Context, intentID, status string) error

	// ExpireStale fails pending purchase intents created before cutoff and
	// expires any top-up intents they were blocked on that are still pending.
	// Returns the number of purchase intents failed.
	ExpireStale(ctx context.Context, cutoff time.Time) (int, error)

	// MarkEventProcessed records a processor event id. It reports false when
	// the id was already recorded, which callers treat as "skip, already
	// applied".
	MarkEventProcessed(ctx context.Context, eventID string) (bool, error)

	SetPayoutAccount(ctx context.Context, userID, payoutAccountID string) error
	SetPayoutsEnabled(ctx context.Context, payoutAccountID string, enabled bool) error
}
