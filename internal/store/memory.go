package store

import (
	"context"
	"sync"
	"time"

	"github.com/rgeron/SwapDecksMarketplace/internal/models"
)

// MemoryStore is a mutex-guarded map-backed Store with the same semantics as
// PostgresStore. It backs the engine and handler tests.
type MemoryStore struct {
	mu sync.RWMutex

	accounts map[string]*models.Account
	decks    map[string]*models.Deck

	// ownership keyed by buyer, then deck. Grant order kept per buyer.
	ownership  map[string]map[string]time.Time
	grantOrder map[string][]string

	// purchaseOrder preserves creation (FIFO) order.
	purchases     map[string]*models.PurchaseIntent
	purchaseOrder []string

	topUps          map[string]*models.TopUpIntent
	topUpsBySession map[string]string

	events map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:        make(map[string]*models.Account),
		decks:           make(map[string]*models.Deck),
		ownership:       make(map[string]map[string]time.Time),
		grantOrder:      make(map[string][]string),
		purchases:       make(map[string]*models.PurchaseIntent),
		topUps:          make(map[string]*models.TopUpIntent),
		topUpsBySession: make(map[string]string),
		events:          make(map[string]time.Time),
	}
}

func (s *MemoryStore) account(userID string) *models.Account {
	acc, ok := s.accounts[userID]
	if !ok {
		acc = &models.Account{UserID: userID, CreatedAt: time.Now()}
		s.accounts[userID] = acc
	}
	return acc
}

func (s *MemoryStore) GetAccount(_ context.Context, userID string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := *s.account(userID)
	return &acc, nil
}

func (s *MemoryStore) GetBalance(ctx context.Context, userID string) (int64, error) {
	acc, err := s.GetAccount(ctx, userID)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

func (s *MemoryStore) ApplyAtomic(_ context.Context, muts []BalanceMutation, grants []OwnershipGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	net := make(map[string]int64)
	for _, m := range muts {
		net[m.UserID] += m.Delta
	}
	for userID, delta := range net {
		if s.account(userID).Balance+delta < 0 {
			return ErrInsufficientFunds
		}
	}

	for userID, delta := range net {
		s.account(userID).Balance += delta
	}
	for _, g := range grants {
		owned, ok := s.ownership[g.BuyerID]
		if !ok {
			owned = make(map[string]time.Time)
			s.ownership[g.BuyerID] = owned
		}
		if _, exists := owned[g.DeckID]; !exists {
			owned[g.DeckID] = time.Now()
			s.grantOrder[g.BuyerID] = append(s.grantOrder[g.BuyerID], g.DeckID)
		}
	}
	return nil
}

func (s *MemoryStore) CreateDeck(_ context.Context, deck *models.Deck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if deck.CreatedAt.IsZero() {
		deck.CreatedAt = time.Now()
	}
	copied := *deck
	s.decks[deck.ID] = &copied
	return nil
}

func (s *MemoryStore) GetDeck(_ context.Context, deckID string) (*models.Deck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decks[deckID]
	if !ok {
		return nil, ErrDeckNotFound
	}
	copied := *d
	return &copied, nil
}

func (s *MemoryStore) ListDecks(_ context.Context) ([]models.Deck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	decks := make([]models.Deck, 0, len(s.decks))
	for _, d := range s.decks {
		decks = append(decks, *d)
	}
	return decks, nil
}

func (s *MemoryStore) HasOwnership(_ context.Context, buyerID, deckID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ownership[buyerID][deckID]
	return ok, nil
}

func (s *MemoryStore) ListOwnedDecks(_ context.Context, buyerID string) ([]models.Deck, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var decks []models.Deck
	for _, deckID := range s.grantOrder[buyerID] {
		if d, ok := s.decks[deckID]; ok {
			decks = append(decks, *d)
		}
	}
	return decks, nil
}

func (s *MemoryStore) CreatePurchaseIntent(_ context.Context, intent *models.PurchaseIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now()
	}
	copied := *intent
	s.purchases[intent.ID] = &copied
	s.purchaseOrder = append(s.purchaseOrder, intent.ID)
	return nil
}

func (s *MemoryStore) GetPurchaseIntent(_ context.Context, intentID string) (*models.PurchaseIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.purchases[intentID]
	if !ok {
		return nil, ErrIntentNotFound
	}
	copied := *p
	return &copied, nil
}

func (s *MemoryStore) UpdatePurchaseIntentStatus(_ context.Context, intentID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.purchases[intentID]
	if !ok {
		return ErrIntentNotFound
	}
	p.Status = status
	return nil
}

func (s *MemoryStore) ListBlockedPurchaseIntents(_ context.Context, topUpIntentID string) ([]models.PurchaseIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var intents []models.PurchaseIntent
	for _, id := range s.purchaseOrder {
		p := s.purchases[id]
		if p.BlockedOnTopUpID == topUpIntentID && p.Status == models.PurchasePending {
			intents = append(intents, *p)
		}
	}
	return intents, nil
}

func (s *MemoryStore) CreateTopUpIntent(_ context.Context, intent *models.TopUpIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now()
	}
	copied := *intent
	s.topUps[intent.ID] = &copied
	s.topUpsBySession[intent.ExternalSessionID] = intent.ID
	return nil
}

func (s *MemoryStore) GetTopUpIntentBySession(_ context.Context, externalSessionID string) (*models.TopUpIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.topUpsBySession[externalSessionID]
	if !ok {
		return nil, ErrIntentNotFound
	}
	copied := *s.topUps[id]
	return &copied, nil
}

func (s *MemoryStore) UpdateTopUpIntentStatus(_ context.Context, intentID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.topUps[intentID]
	if !ok {
		return ErrIntentNotFound
	}
	t.Status = status
	return nil
}

func (s *MemoryStore) ExpireStale(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expired := 0
	for _, p := range s.purchases {
		if p.Status != models.PurchasePending || !p.CreatedAt.Before(cutoff) {
			continue
		}
		p.Status = models.PurchaseFailed
		expired++
		if p.BlockedOnTopUpID != "" {
			if t, ok := s.topUps[p.BlockedOnTopUpID]; ok && t.Status == models.TopUpPending {
				t.Status = models.TopUpExpired
			}
		}
	}
	return expired, nil
}

func (s *MemoryStore) MarkEventProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.events[eventID]; seen {
		return false, nil
	}
	s.events[eventID] = time.Now()
	return true, nil
}

func (s *MemoryStore) SetPayoutAccount(_ context.Context, userID, payoutAccountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account(userID).PayoutAccountID = payoutAccountID
	return nil
}

func (s *MemoryStore) SetPayoutsEnabled(_ context.Context, payoutAccountID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.PayoutAccountID == payoutAccountID {
			acc.PayoutsEnabled = enabled
		}
	}
	return nil
}
