package models

import "time"

// Top-up intent states. A pending intent moves to confirmed on a verified
// webhook, or to failed/expired, and never back.
const (
	TopUpPending   = "pending"
	TopUpConfirmed = "confirmed"
	TopUpFailed    = "failed"
	TopUpExpired   = "expired"
)

// Purchase intent states.
const (
	PurchasePending = "pending"
	PurchaseSettled = "settled"
	PurchaseFailed  = "failed"
)

// Account holds a user's platform balance in minor currency units.
// Balance is only ever written through the store's atomic mutation path.
type Account struct {
	UserID          string    `json:"user_id"`
	Balance         int64     `json:"balance"`
	PayoutAccountID string    `json:"payout_account_id,omitempty"`
	PayoutsEnabled  bool      `json:"payouts_enabled"`
	CreatedAt       time.Time `json:"created_at"`
}

// Deck is a published catalog item. Price is immutable once published.
type Deck struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Price     int64     `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// OwnershipRecord grants a buyer permanent access to a deck. Append-only.
type OwnershipRecord struct {
	BuyerID   string    `json:"buyer_id"`
	DeckID    string    `json:"deck_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TopUpIntent tracks an external checkout session funding a balance.
type TopUpIntent struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	Amount            int64     `json:"amount"`
	Status            string    `json:"status"`
	ExternalSessionID string    `json:"external_session_id"`
	CreatedAt         time.Time `json:"created_at"`
}

// PurchaseIntent makes "resume after top-up" deterministic: a pending intent
// blocked on a top-up is retried by the engine once that top-up confirms.
type PurchaseIntent struct {
	ID               string    `json:"id"`
	BuyerID          string    `json:"buyer_id"`
	DeckID           string    `json:"deck_id"`
	Price            int64     `json:"price"`
	Status           string    `json:"status"`
	BlockedOnTopUpID string    `json:"blocked_on_top_up_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// WebhookEventRecord marks a processor event id as applied, so redeliveries
// are acknowledged without re-applying.
type WebhookEventRecord struct {
	EventID     string    `json:"event_id"`
	ProcessedAt time.Time `json:"processed_at"`
}

// PurchaseRequest is the payload from the client.
type PurchaseRequest struct {
	BuyerID string `json:"buyer_id"`
	DeckID  string `json:"deck_id"`
}

// TopUpRequest asks for a checkout session for an explicit amount.
type TopUpRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
}

// PurchaseResult statuses.
const (
	ResultSettled          = "settled"
	ResultRedirectRequired = "redirect_required"
)

// PurchaseResult is the canonical response for a purchase request. A blocked
// purchase is not an error: it carries the top-up redirect instead.
type PurchaseResult struct {
	Status           string `json:"status"`
	PurchaseIntentID string `json:"purchase_intent_id,omitempty"`
	RedirectURL      string `json:"url,omitempty"`
	TopUpAmount      int64  `json:"top_up_amount,omitempty"`
}

// PayoutRequest asks to transfer a creator's internal balance out.
type PayoutRequest struct {
	CreatorID string `json:"creator_id"`
	Amount    int64  `json:"amount"`
}

// PayoutResult reports the processor transfer backing a payout.
type PayoutResult struct {
	TransferID string `json:"transfer_id"`
	Amount     int64  `json:"amount"`
}

// OnboardingStatus is the read-view answer for a creator's payout readiness.
type OnboardingStatus struct {
	CreatorID       string `json:"creator_id"`
	PayoutAccountID string `json:"payout_account_id,omitempty"`
	PayoutsEnabled  bool   `json:"payouts_enabled"`
}
