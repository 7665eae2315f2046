package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/auctionbay/settlement/internal/event"
	"github.com/auctionbay/settlement/internal/store"
)

// TxRunner implements store.TxRunner over sqlx transactions.
type TxRunner struct {
	db *sqlx.DB
}

// NewTxRunner returns a new TxRunner.
func NewTxRunner(db *sqlx.DB) *TxRunner {
	return &TxRunner{db: db}
}

// RunInTx runs fn inside one transaction, rolling everything back on error.
// Serialization failures surface as store.ErrTxConflict so callers can retry.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &pgTx{tx: sqlTx}); err != nil {
		return convertErr(err)
	}
	return convertErr(sqlTx.Commit())
}

// pgTx implements store.Tx on an open sqlx transaction.
type pgTx struct {
	tx *sqlx.Tx
}

func (t *pgTx) AuctionForUpdate(ctx context.Context, id string) (*store.Auction, error) {
	var a store.Auction
	// The row lock is what serializes concurrent settlements per auction.
	err := t.tx.GetContext(ctx, &a, `SELECT * FROM auctions WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking auction: %w", err)
	}
	return &a, nil
}

func (t *pgTx) UserForUpdate(ctx context.Context, id string) (*store.User, error) {
	var u store.User
	err := t.tx.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking user: %w", err)
	}
	return &u, nil
}

func (t *pgTx) LatestBid(ctx context.Context, auctionID string) (*store.Bid, error) {
	return t.latestBid(ctx,
		`SELECT * FROM bids WHERE auction_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, auctionID)
}

func (t *pgTx) LatestVisibleBid(ctx context.Context, auctionID string) (*store.Bid, error) {
	return t.latestBid(ctx,
		`SELECT * FROM bids WHERE auction_id = $1 AND NOT hidden ORDER BY created_at DESC, id DESC LIMIT 1`, auctionID)
}

func (t *pgTx) latestBid(ctx context.Context, query, auctionID string) (*store.Bid, error) {
	var b store.Bid
	err := t.tx.GetContext(ctx, &b, query, auctionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest bid: %w", err)
	}
	return &b, nil
}

func (t *pgTx) CountBids(ctx context.Context, auctionID, bidderID string, status store.BidStatus, hiddenOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM bids WHERE auction_id = $1 AND bidder_id = $2 AND status = $3`
	if hiddenOnly {
		query += ` AND hidden`
	}
	var n int
	if err := t.tx.GetContext(ctx, &n, query, auctionID, bidderID, status); err != nil {
		return 0, fmt.Errorf("counting bids: %w", err)
	}
	return n, nil
}

func (t *pgTx) ApplyLedgerEntry(ctx context.Context, e *store.WalletTransaction) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := t.tx.GetContext(ctx, &balance,
		`UPDATE users SET wallet_balance = wallet_balance + $1, updated_at = $2
		 WHERE id = $3 RETURNING wallet_balance`,
		e.Amount, e.CreatedAt, e.UserID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, store.ErrNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("adjusting wallet balance: %w", convertErr(err))
	}

	e.BalanceAfter = balance
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO wallet_transactions (id, user_id, type, status, amount, balance_after, auction_id, bid_id, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.UserID, e.Type, e.Status, e.Amount, e.BalanceAfter, e.AuctionID, e.BidID, e.Description, e.CreatedAt,
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("appending ledger entry: %w", err)
	}
	return balance, nil
}

func (t *pgTx) InsertBid(ctx context.Context, b *store.Bid) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO bids (id, auction_id, bidder_id, amount, status, hidden, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, b.AuctionID, b.BidderID, b.Amount, b.Status, b.Hidden, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting bid: %w", err)
	}
	return nil
}

func (t *pgTx) SetCurrentPrice(ctx context.Context, auctionID string, price decimal.Decimal) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE auctions SET current_price = $1, updated_at = now() WHERE id = $2`,
		price, auctionID,
	)
	if err != nil {
		return fmt.Errorf("updating current price: %w", convertErr(err))
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) AppendEvents(ctx context.Context, events ...event.Event) error {
	for _, e := range events {
		_, err := t.tx.ExecContext(ctx,
			`INSERT INTO events (id, aggregate_id, type, data, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			e.ID, e.AggregateID, e.Type, e.Data, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting event (aggregate=%s, type=%s): %w", e.AggregateID, e.Type, err)
		}
	}
	return nil
}
