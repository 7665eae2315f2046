package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/auctionbay/settlement/internal/store"
)

// AuctionRepo implements store.AuctionRepository with sqlx.
type AuctionRepo struct {
	db *sqlx.DB
}

// NewAuctionRepo returns a new AuctionRepo.
func NewAuctionRepo(db *sqlx.DB) *AuctionRepo {
	return &AuctionRepo{db: db}
}

func (r *AuctionRepo) GetByID(ctx context.Context, id string) (*store.Auction, error) {
	var a store.Auction
	err := r.db.GetContext(ctx, &a, `SELECT * FROM auctions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting auction: %w", err)
	}
	return &a, nil
}

// UserRepo implements store.UserRepository with sqlx.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo returns a new UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*store.User, error) {
	var u store.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &u, nil
}

// BidRepo implements store.BidRepository with sqlx.
type BidRepo struct {
	db *sqlx.DB
}

// NewBidRepo returns a new BidRepo.
func NewBidRepo(db *sqlx.DB) *BidRepo {
	return &BidRepo{db: db}
}

func (r *BidRepo) ListByAuction(ctx context.Context, auctionID string, includeHidden bool) ([]store.Bid, error) {
	query := `SELECT * FROM bids WHERE auction_id = $1 ORDER BY created_at ASC, id ASC`
	if !includeHidden {
		query = `SELECT * FROM bids WHERE auction_id = $1 AND NOT hidden ORDER BY created_at ASC, id ASC`
	}
	var bids []store.Bid
	if err := r.db.SelectContext(ctx, &bids, query, auctionID); err != nil {
		return nil, fmt.Errorf("listing bids: %w", err)
	}
	return bids, nil
}

// WalletRepo implements store.WalletRepository with sqlx.
type WalletRepo struct {
	db *sqlx.DB
}

// NewWalletRepo returns a new WalletRepo.
func NewWalletRepo(db *sqlx.DB) *WalletRepo {
	return &WalletRepo{db: db}
}

func (r *WalletRepo) ListTransactions(ctx context.Context, userID string) ([]store.WalletTransaction, error) {
	var txns []store.WalletTransaction
	err := r.db.SelectContext(ctx, &txns,
		`SELECT * FROM wallet_transactions WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing wallet transactions: %w", err)
	}
	return txns, nil
}
