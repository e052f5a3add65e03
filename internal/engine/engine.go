// Package engine is the reconciliation state machine that keeps balances,
// ownership, and the payment processor's asynchronous confirmations
// consistent. It is the only writer of ledger state: handlers call in, the
// store enforces atomicity, and the gateway is treated as an unreliable
// external collaborator.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/rgeron/SwapDecksMarketplace/internal/config"
	"github.com/rgeron/SwapDecksMarketplace/internal/gateway"
	"github.com/rgeron/SwapDecksMarketplace/internal/models"
	"github.com/rgeron/SwapDecksMarketplace/internal/store"
)

type Engine struct {
	store          store.Store
	gateway        gateway.Gateway
	webhookSecret  string
	sellerShareBps int64
	intentTTL      time.Duration
}

func New(st store.Store, gw gateway.Gateway, cfg *config.Config) *Engine {
	return &Engine{
		store:          st,
		gateway:        gw,
		webhookSecret:  cfg.WebhookSecret,
		sellerShareBps: int64(cfg.SellerShareBps),
		intentTTL:      cfg.IntentTTL,
	}
}

// sellerShare is the portion of a sale credited to the creator's internal
// balance; the platform keeps the remainder.
func (e *Engine) sellerShare(price int64) int64 {
	return price * e.sellerShareBps / 10000
}

// RequestPurchase runs the purchase state machine for one buyer and deck.
//
// An already-owned deck settles immediately: clients retry after timeouts
// without knowing whether the first attempt landed, so re-purchase must be
// indistinguishable from success. Insufficient funds is not an error either:
// it degrades to a pending intent blocked on a top-up checkout, because a
// caller cannot tell a stale balance read from a real shortfall.
func (e *Engine) RequestPurchase(ctx context.Context, buyerID, deckID string) (*models.PurchaseResult, error) {
	deck, err := e.store.GetDeck(ctx, deckID)
	if err != nil {
		return nil, err
	}

	owned, err := e.store.HasOwnership(ctx, buyerID, deckID)
	if err != nil {
		return nil, fmt.Errorf("ownership lookup failed: %w", err)
	}
	if owned {
		return &models.PurchaseResult{Status: models.ResultSettled}, nil
	}

	err = e.settle(ctx, buyerID, deck)
	if err == nil {
		return &models.PurchaseResult{Status: models.ResultSettled}, nil
	}
	if !errors.Is(err, store.ErrInsufficientFunds) {
		return nil, err
	}

	// Blocked path: fund the shortfall through a checkout session and park
	// the purchase until the processor confirms.
	balance, err := e.store.GetBalance(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("balance read failed: %w", err)
	}
	shortfall := deck.Price - balance
	if shortfall <= 0 {
		// A concurrent credit landed between the failed settle and the read.
		err := e.settle(ctx, buyerID, deck)
		if err == nil {
			return &models.PurchaseResult{Status: models.ResultSettled}, nil
		}
		if !errors.Is(err, store.ErrInsufficientFunds) {
			return nil, err
		}
		// Balance moved again; the full price is the safe upper bound.
		shortfall = deck.Price
	}

	session, err := e.gateway.CreateTopUpSession(ctx, buyerID, shortfall)
	if err != nil {
		return nil, fmt.Errorf("top-up session creation failed: %w", err)
	}

	topUp := &models.TopUpIntent{
		ID:                uuid.NewString(),
		UserID:            buyerID,
		Amount:            shortfall,
		Status:            models.TopUpPending,
		ExternalSessionID: session.ExternalSessionID,
	}
	if err := e.store.CreateTopUpIntent(ctx, topUp); err != nil {
		return nil, fmt.Errorf("top-up intent write failed: %w", err)
	}

	purchase := &models.PurchaseIntent{
		ID:               uuid.NewString(),
		BuyerID:          buyerID,
		DeckID:           deckID,
		Price:            deck.Price,
		Status:           models.PurchasePending,
		BlockedOnTopUpID: topUp.ID,
	}
	if err := e.store.CreatePurchaseIntent(ctx, purchase); err != nil {
		return nil, fmt.Errorf("purchase intent write failed: %w", err)
	}

	return &models.PurchaseResult{
		Status:           models.ResultRedirectRequired,
		PurchaseIntentID: purchase.ID,
		RedirectURL:      session.RedirectURL,
		TopUpAmount:      shortfall,
	}, nil
}

// settle applies a purchase as one atomic batch: debit the buyer, credit the
// seller's share, grant ownership. The store rejects the whole batch when the
// buyer's balance cannot cover the debit.
func (e *Engine) settle(ctx context.Context, buyerID string, deck *models.Deck) error {
	return e.store.ApplyAtomic(ctx,
		[]store.BalanceMutation{
			{UserID: buyerID, Delta: -deck.Price},
			{UserID: deck.OwnerID, Delta: e.sellerShare(deck.Price)},
		},
		[]store.OwnershipGrant{{BuyerID: buyerID, DeckID: deck.ID}},
	)
}

// CreateTopUp opens a standalone checkout session funding a user's balance.
func (e *Engine) CreateTopUp(ctx context.Context, userID string, amount int64) (*gateway.CheckoutSession, error) {
	session, err := e.gateway.CreateTopUpSession(ctx, userID, amount)
	if err != nil {
		return nil, fmt.Errorf("top-up session creation failed: %w", err)
	}

	intent := &models.TopUpIntent{
		ID:                uuid.NewString(),
		UserID:            userID,
		Amount:            amount,
		Status:            models.TopUpPending,
		ExternalSessionID: session.ExternalSessionID,
	}
	if err := e.store.CreateTopUpIntent(ctx, intent); err != nil {
		return nil, fmt.Errorf("top-up intent write failed: %w", err)
	}
	return session, nil
}

// HandleWebhook verifies, deduplicates, and applies one processor delivery.
// Signature verification runs on the raw bytes before anything is parsed or
// mutated. Redeliveries of an applied event id return nil without effect.
func (e *Engine) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	if err := gateway.VerifySignature(payload, signatureHeader, e.webhookSecret); err != nil {
		return err
	}

	event, err := gateway.ParseEvent(payload)
	if err != nil {
		return err
	}

	inserted, err := e.store.MarkEventProcessed(ctx, event.EventID())
	if err != nil {
		return fmt.Errorf("event dedup failed: %w", err)
	}
	if !inserted {
		return nil
	}

	switch ev := event.(type) {
	case gateway.TopUpCompleted:
		return e.applyTopUp(ctx, ev)
	case gateway.AccountCapabilitiesChanged:
		if err := e.store.SetPayoutsEnabled(ctx, ev.PayoutAccountID, ev.PayoutsEnabled); err != nil {
			return fmt.Errorf("capability update failed: %w", err)
		}
		return nil
	case gateway.Unrecognized:
		log.Printf("ignoring unrecognized webhook event %s type=%s", ev.ID, ev.Type)
		return nil
	default:
		return nil
	}
}

func (e *Engine) applyTopUp(ctx context.Context, ev gateway.TopUpCompleted) error {
	intent, err := e.store.GetTopUpIntentBySession(ctx, ev.ExternalSessionID)
	if errors.Is(err, store.ErrIntentNotFound) {
		// The confirmation beat our own intent write, or the session was
		// opened elsewhere. The money is real either way: credit the user
		// named in the event and record the intent retroactively.
		if ev.UserID == "" {
			log.Printf("orphan top-up confirmation %s: no session %s and no user reference",
				ev.ID, ev.ExternalSessionID)
			return nil
		}
		log.Printf("orphan top-up confirmation %s for session %s, crediting user %s",
			ev.ID, ev.ExternalSessionID, ev.UserID)
		if err := e.store.ApplyAtomic(ctx,
			[]store.BalanceMutation{{UserID: ev.UserID, Delta: ev.Amount}}, nil); err != nil {
			return fmt.Errorf("orphan credit failed: %w", err)
		}
		return e.store.CreateTopUpIntent(ctx, &models.TopUpIntent{
			ID:                uuid.NewString(),
			UserID:            ev.UserID,
			Amount:            ev.Amount,
			Status:            models.TopUpConfirmed,
			ExternalSessionID: ev.ExternalSessionID,
		})
	}
	if err != nil {
		return fmt.Errorf("top-up lookup failed: %w", err)
	}

	// Credit the confirmed amount first; the linked purchases settle only if
	// the resulting balance allows.
	if err := e.store.ApplyAtomic(ctx,
		[]store.BalanceMutation{{UserID: intent.UserID, Delta: ev.Amount}}, nil); err != nil {
		return fmt.Errorf("top-up credit failed: %w", err)
	}

	if intent.Status == models.TopUpPending {
		if err := e.store.UpdateTopUpIntentStatus(ctx, intent.ID, models.TopUpConfirmed); err != nil {
			return fmt.Errorf("top-up status update failed: %w", err)
		}
	} else {
		log.Printf("late top-up confirmation for intent %s in state %s, balance credited anyway",
			intent.ID, intent.Status)
	}

	return e.resumeBlocked(ctx, intent.ID)
}

// resumeBlocked retries settlement for every pending purchase blocked on a
// confirmed top-up, oldest first. When the credited amount cannot cover them
// all, as many as funds allow settle and the rest stay pending: the
// non-negative balance invariant wins over fairness.
func (e *Engine) resumeBlocked(ctx context.Context, topUpIntentID string) error {
	blocked, err := e.store.ListBlockedPurchaseIntents(ctx, topUpIntentID)
	if err != nil {
		return fmt.Errorf("blocked intent listing failed: %w", err)
	}

	for _, intent := range blocked {
		owned, err := e.store.HasOwnership(ctx, intent.BuyerID, intent.DeckID)
		if err != nil {
			return fmt.Errorf("ownership lookup failed: %w", err)
		}
		if owned {
			if err := e.store.UpdatePurchaseIntentStatus(ctx, intent.ID, models.PurchaseSettled); err != nil {
				return err
			}
			continue
		}

		deck, err := e.store.GetDeck(ctx, intent.DeckID)
		if err != nil {
			return fmt.Errorf("deck lookup for blocked intent %s failed: %w", intent.ID, err)
		}

		err = e.settle(ctx, intent.BuyerID, deck)
		if errors.Is(err, store.ErrInsufficientFunds) {
			continue
		}
		if err != nil {
			return fmt.Errorf("settlement of blocked intent %s failed: %w", intent.ID, err)
		}
		if err := e.store.UpdatePurchaseIntentStatus(ctx, intent.ID, models.PurchaseSettled); err != nil {
			return err
		}
	}
	return nil
}

// Payout debits a creator's internal balance and requests a processor
// transfer to their connected account. A failed transfer is compensated with
// a credit so the debit never outlives the transfer it paid for.
func (e *Engine) Payout(ctx context.Context, creatorID string, amount int64) (*models.PayoutResult, error) {
	acc, err := e.store.GetAccount(ctx, creatorID)
	if err != nil {
		return nil, fmt.Errorf("account lookup failed: %w", err)
	}
	if acc.PayoutAccountID == "" || !acc.PayoutsEnabled {
		return nil, gateway.ErrPayoutUnavailable
	}

	if err := e.store.ApplyAtomic(ctx,
		[]store.BalanceMutation{{UserID: creatorID, Delta: -amount}}, nil); err != nil {
		return nil, err
	}

	transferID, err := e.gateway.CreatePayoutTransfer(ctx, acc.PayoutAccountID, amount)
	if err != nil {
		if compErr := e.store.ApplyAtomic(ctx,
			[]store.BalanceMutation{{UserID: creatorID, Delta: amount}}, nil); compErr != nil {
			log.Printf("CRITICAL: payout compensation failed for %s amount %d: %v",
				creatorID, amount, compErr)
		}
		return nil, fmt.Errorf("payout transfer failed: %w", err)
	}

	return &models.PayoutResult{TransferID: transferID, Amount: amount}, nil
}

// RegisterPayoutAccount links a creator to their connected processor account.
// Payouts stay disabled until the processor reports the capability.
func (e *Engine) RegisterPayoutAccount(ctx context.Context, creatorID, payoutAccountID string) error {
	return e.store.SetPayoutAccount(ctx, creatorID, payoutAccountID)
}

// ExpireStale fails purchase intents that outlived the configured TTL and
// expires the top-ups they were blocked on. No refund is issued here.
func (e *Engine) ExpireStale(ctx context.Context) (int, error) {
	return e.store.ExpireStale(ctx, time.Now().Add(-e.intentTTL))
}
