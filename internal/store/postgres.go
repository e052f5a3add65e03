package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rgeron/SwapDecksMarketplace/internal/models"
)

// PostgresStore implements Store on top of a pgx connection pool.
type PostgresStore struct {
	Db *pgxpool.Pool
}

func NewPostgresStore(connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{Db: pool}, nil
}

func (s *PostgresStore) Close() {
	s.Db.Close()
}

func (s *PostgresStore) GetAccount(ctx context.Context, userID string) (*models.Account, error) {
	// First touch creates the row with a zero balance.
	_, err := s.Db.Exec(ctx,
		"INSERT INTO accounts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING", userID)
	if err != nil {
		return nil, fmt.Errorf("account init failed: %w", err)
	}

	var acc models.Account
	err = s.Db.QueryRow(ctx,
		"SELECT user_id, balance, payout_account_id, payouts_enabled, created_at FROM accounts WHERE user_id = $1",
		userID).Scan(&acc.UserID, &acc.Balance, &acc.PayoutAccountID, &acc.PayoutsEnabled, &acc.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *PostgresStore) GetBalance(ctx context.Context, userID string) (int64, error) {
	acc, err := s.GetAccount(ctx, userID)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// ApplyAtomic applies all deltas and grants in one transaction. Account rows
// are locked FOR UPDATE in ascending user-id order to prevent deadlocks
// between concurrent batches touching the same accounts, and the non-negative
// check runs against the locked balances.
func (s *PostgresStore) ApplyAtomic(ctx context.Context, muts []BalanceMutation, grants []OwnershipGrant) error {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	// Net delta per account, then lock in deterministic order.
	net := make(map[string]int64)
	for _, m := range muts {
		net[m.UserID] += m.Delta
	}
	userIDs := make([]string, 0, len(net))
	for id := range net {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	for _, id := range userIDs {
		_, err = tx.Exec(ctx,
			"INSERT INTO accounts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING", id)
		if err != nil {
			return fmt.Errorf("account init failed: %w", err)
		}

		var balance int64
		err = tx.QueryRow(ctx,
			"SELECT balance FROM accounts WHERE user_id = $1 FOR UPDATE", id).Scan(&balance)
		if err != nil {
			return fmt.Errorf("lock acquisition failed: %w", err)
		}

		if balance+net[id] < 0 {
			return ErrInsufficientFunds
		}

		_, err = tx.Exec(ctx,
			"UPDATE accounts SET balance = balance + $1 WHERE user_id = $2", net[id], id)
		if err != nil {
			return fmt.Errorf("balance update failed: %w", err)
		}
	}

	for _, g := range grants {
		_, err = tx.Exec(ctx,
			"INSERT INTO ownership (buyer_id, deck_id) VALUES ($1, $2) ON CONFLICT (buyer_id, deck_id) DO NOTHING",
			g.BuyerID, g.DeckID)
		if err != nil {
			return fmt.Errorf("ownership grant failed: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateDeck(ctx context.Context, deck *models.Deck) error {
	return s.Db.QueryRow(ctx,
		"INSERT INTO decks (id, owner_id, title, price) VALUES ($1, $2, $3, $4) RETURNING created_at",
		deck.ID, deck.OwnerID, deck.Title, deck.Price).Scan(&deck.CreatedAt)
}

func (s *PostgresStore) GetDeck(ctx context.Context, deckID string) (*models.Deck, error) {
	var d models.Deck
	err := s.Db.QueryRow(ctx,
		"SELECT id, owner_id, title, price, created_at FROM decks WHERE id = $1",
		deckID).Scan(&d.ID, &d.OwnerID, &d.Title, &d.Price, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDeckNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *PostgresStore) ListDecks(ctx context.Context) ([]models.Deck, error) {
	rows, err := s.Db.Query(ctx,
		"SELECT id, owner_id, title, price, created_at FROM decks ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDecks(rows)
}

func (s *PostgresStore) HasOwnership(ctx context.Context, buyerID, deckID string) (bool, error) {
	var exists bool
	err := s.Db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM ownership WHERE buyer_id = $1 AND deck_id = $2)",
		buyerID, deckID).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) ListOwnedDecks(ctx context.Context, buyerID string) ([]models.Deck, error) {
	rows, err := s.Db.Query(ctx,
		`SELECT d.id, d.owner_id, d.title, d.price, d.created_at
		 FROM decks d JOIN ownership o ON o.deck_id = d.id
		 WHERE o.buyer_id = $1 ORDER BY o.created_at DESC`, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDecks(rows)
}

func scanDecks(rows pgx.Rows) ([]models.Deck, error) {
	var decks []models.Deck
	for rows.Next() {
		var d models.Deck
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.Title, &d.Price, &d.CreatedAt); err != nil {
			return nil, err
		}
		decks = append(decks, d)
	}
	return decks, rows.Err()
}

func (s *PostgresStore) CreatePurchaseIntent(ctx context.Context, intent *models.PurchaseIntent) error {
	return s.Db.QueryRow(ctx,
		`INSERT INTO purchase_intents (id, buyer_id, deck_id, price, status, blocked_on_top_up_id)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`,
		intent.ID, intent.BuyerID, intent.DeckID, intent.Price, intent.Status,
		intent.BlockedOnTopUpID).Scan(&intent.CreatedAt)
}

func (s *PostgresStore) GetPurchaseIntent(ctx context.Context, intentID string) (*models.PurchaseIntent, error) {
	var p models.PurchaseIntent
	err := s.Db.QueryRow(ctx,
		`SELECT id, buyer_id, deck_id, price, status, blocked_on_top_up_id, created_at
		 FROM purchase_intents WHERE id = $1`, intentID).
		Scan(&p.ID, &p.BuyerID, &p.DeckID, &p.Price, &p.Status, &p.BlockedOnTopUpID, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrIntentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) UpdatePurchaseIntentStatus(ctx context.Context, intentID, status string) error {
	tag, err := s.Db.Exec(ctx,
		"UPDATE purchase_intents SET status = $1 WHERE id = $2", status, intentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIntentNotFound
	}
	return nil
}

func (s *PostgresStore) ListBlockedPurchaseIntents(ctx context.Context, topUpIntentID string) ([]models.PurchaseIntent, error) {
	rows, err := s.Db.Query(ctx,
		`SELECT id, buyer_id, deck_id, price, status, blocked_on_top_up_id, created_at
		 FROM purchase_intents
		 WHERE blocked_on_top_up_id = $1 AND status = $2
		 ORDER BY created_at ASC`, topUpIntentID, models.PurchasePending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intents []models.PurchaseIntent
	for rows.Next() {
		var p models.PurchaseIntent
		if err := rows.Scan(&p.ID, &p.BuyerID, &p.DeckID, &p.Price, &p.Status,
			&p.BlockedOnTopUpID, &p.CreatedAt); err != nil {
			return nil, err
		}
		intents = append(intents, p)
	}
	return intents, rows.Err()
}

func (s *PostgresStore) CreateTopUpIntent(ctx context.Context, intent *models.TopUpIntent) error {
	return s.Db.QueryRow(ctx,
		`INSERT INTO top_up_intents (id, user_id, amount, status, external_session_id)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		intent.ID, intent.UserID, intent.Amount, intent.Status,
		intent.ExternalSessionID).Scan(&intent.CreatedAt)
}

func (s *PostgresStore) GetTopUpIntentBySession(ctx context.Context, externalSessionID string) (*models.TopUpIntent, error) {
	var t models.TopUpIntent
	err := s.Db.QueryRow(ctx,
		`SELECT id, user_id, amount, status, external_session_id, created_at
		 FROM top_up_intents WHERE external_session_id = $1`, externalSessionID).
		Scan(&t.ID, &t.UserID, &t.Amount, &t.Status, &t.ExternalSessionID, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrIntentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) UpdateTopUpIntentStatus(ctx context.Context, intentID, status string) error {
	tag, err := s.Db.Exec(ctx,
		"UPDATE top_up_intents SET status = $1 WHERE id = $2", status, intentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIntentNotFound
	}
	return nil
}

func (s *PostgresStore) ExpireStale(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE top_up_intents SET status = $1
		 WHERE status = $2 AND id IN (
		   SELECT blocked_on_top_up_id FROM purchase_intents
		   WHERE status = $3 AND created_at < $4 AND blocked_on_top_up_id <> ''
		 )`,
		models.TopUpExpired, models.TopUpPending, models.PurchasePending, cutoff)
	if err != nil {
		return 0, fmt.Errorf("top-up expiry failed: %w", err)
	}

	tag, err := tx.Exec(ctx,
		"UPDATE purchase_intents SET status = $1 WHERE status = $2 AND created_at < $3",
		models.PurchaseFailed, models.PurchasePending, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purchase expiry failed: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("tx commit failed: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) MarkEventProcessed(ctx context.Context, eventID string) (bool, error) {
	tag, err := s.Db.Exec(ctx,
		"INSERT INTO webhook_events (event_id) VALUES ($1) ON CONFLICT (event_id) DO NOTHING", eventID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) SetPayoutAccount(ctx context.Context, userID, payoutAccountID string) error {
	_, err := s.Db.Exec(ctx,
		`INSERT INTO accounts (user_id, payout_account_id) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET payout_account_id = EXCLUDED.payout_account_id`,
		userID, payoutAccountID)
	return err
}

func (s *PostgresStore) SetPayoutsEnabled(ctx context.Context, payoutAccountID string, enabled bool) error {
	_, err := s.Db.Exec(ctx,
		"UPDATE accounts SET payouts_enabled = $1 WHERE payout_account_id = $2",
		enabled, payoutAccountID)
	return err
}
