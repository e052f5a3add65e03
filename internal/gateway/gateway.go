// Package gateway adapts the external payment processor: checkout sessions
// for balance top-ups, transfers to creator payout accounts, and verification
// plus decoding of the processor's webhook events.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrSignatureInvalid  = errors.New("webhook signature invalid")
	ErrPayoutUnavailable = errors.New("payout destination not available")
)

// CheckoutSession is the processor-hosted page a user completes a top-up on.
type CheckoutSession struct {
	ExternalSessionID string
	RedirectURL       string
}

// Gateway is the engine's view of the payment processor. All calls carry a
// timeout via ctx or the underlying client; none may hang the settlement path.
type Gateway interface {
	CreateTopUpSession(ctx context.Context, userID string, amount int64) (*CheckoutSession, error)
	// CreatePayoutTransfer moves funds to a connected account. Returns
	// ErrPayoutUnavailable when the destination has not completed onboarding.
	CreatePayoutTransfer(ctx context.Context, payoutAccountID string, amount int64) (string, error)
}

// Webhook event types the engine understands. Anything else decodes to
// Unrecognized and is acknowledged without effect, so new processor event
// types never break delivery.
const (
	EventCheckoutCompleted = "checkout.completed"
	EventAccountUpdated    = "account.updated"
)

// Event is the closed variant set produced by ParseEvent.
type Event interface {
	EventID() string
}

// TopUpCompleted confirms a checkout session: the user's money arrived.
type TopUpCompleted struct {
	ID                string
	ExternalSessionID string
	UserID            string
	Amount            int64
}

func (e TopUpCompleted) EventID() string { return e.ID }

// AccountCapabilitiesChanged reports a connected account's payout capability.
type AccountCapabilitiesChanged struct {
	ID              string
	PayoutAccountID string
	PayoutsEnabled  bool
}

func (e AccountCapabilitiesChanged) EventID() string { return e.ID }

// Unrecognized is the forward-compatibility catch-all.
type Unrecognized struct {
	ID   string
	Type string
}

func (e Unrecognized) EventID() string { return e.ID }

type envelope struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type checkoutData struct {
	SessionID         string `json:"session_id"`
	ClientReferenceID string `json:"client_reference_id"`
	AmountTotal       int64  `json:"amount_total"`
}

type accountData struct {
	AccountID      string `json:"account_id"`
	PayoutsEnabled bool   `json:"payouts_enabled"`
}

// ParseEvent decodes a verified webhook payload. Callers must run
// VerifySignature on the raw bytes first; this function trusts its input.
func ParseEvent(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("malformed event envelope: %w", err)
	}
	if env.ID == "" {
		return nil, fmt.Errorf("event envelope missing id")
	}

	switch env.Type {
	case EventCheckoutCompleted:
		var d checkoutData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, fmt.Errorf("malformed %s data: %w", env.Type, err)
		}
		return TopUpCompleted{
			ID:                env.ID,
			ExternalSessionID: d.SessionID,
			UserID:            d.ClientReferenceID,
			Amount:            d.AmountTotal,
		}, nil
	case EventAccountUpdated:
		var d accountData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, fmt.Errorf("malformed %s data: %w", env.Type, err)
		}
		return AccountCapabilitiesChanged{
			ID:              env.ID,
			PayoutAccountID: d.AccountID,
			PayoutsEnabled:  d.PayoutsEnabled,
		}, nil
	default:
		return Unrecognized{ID: env.ID, Type: env.Type}, nil
	}
}
