package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/auctionbay/settlement/internal/event"
)

// Errors returned by store implementations.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTxConflict is returned when a transaction lost a serialization
	// race and may be retried.
	ErrTxConflict = errors.New("transaction conflict")
	// ErrNegativeBalance is returned when a ledger entry would take a
	// wallet balance below zero.
	ErrNegativeBalance = errors.New("wallet balance would go negative")
)

// AuctionStatus is the lifecycle state of an auction. The bidding core only
// reads it; transitions belong to the lifecycle scheduler.
type AuctionStatus string

const (
	AuctionPending   AuctionStatus = "PENDING"
	AuctionReady     AuctionStatus = "READY"
	AuctionOpen      AuctionStatus = "OPEN"
	AuctionClosed    AuctionStatus = "CLOSED"
	AuctionCanceled  AuctionStatus = "CANCELED"
	AuctionCompleted AuctionStatus = "COMPLETED"
)

// BidStatus is the state of a bid record.
type BidStatus string

const (
	BidValid BidStatus = "VALID"
)

// Transaction types for wallet ledger entries.
const (
	TxnBidPayment = "BID_PAYMENT"
	TxnBidRefund  = "BID_REFUND"
	TxnDeposit    = "DEPOSIT"
	TxnWithdrawal = "WITHDRAWAL"
)

// TxnCompleted is the terminal status of a ledger entry written by this
// service; settlement finalization may introduce others.
const TxnCompleted = "COMPLETED"

// Auction is an auction record. The bidding core reads the time window and
// price fields and advances CurrentPrice on accepted visible bids.
type Auction struct {
	ID            string          `db:"id"`
	Title         string          `db:"title"`
	SellerID      string          `db:"seller_id"`
	StartTime     time.Time       `db:"start_time"`
	EndTime       time.Time       `db:"end_time"`
	StartingPrice decimal.Decimal `db:"starting_price"`
	CurrentPrice  decimal.Decimal `db:"current_price"`
	MinIncrement  decimal.Decimal `db:"min_increment"`
	Status        AuctionStatus   `db:"status"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// User is a bidder with a wallet balance. The balance is mutated only
// through ledger entries.
type User struct {
	ID            string          `db:"id"`
	Username      string          `db:"username"`
	WalletBalance decimal.Decimal `db:"wallet_balance"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// Bid is an immutable bid record. Hidden bids are sealed last-phase bids
// that stay out of public listings until the auction ends.
type Bid struct {
	ID        string          `db:"id"`
	AuctionID string          `db:"auction_id"`
	BidderID  string          `db:"bidder_id"`
	Amount    decimal.Decimal `db:"amount"`
	Status    BidStatus       `db:"status"`
	Hidden    bool            `db:"hidden"`
	CreatedAt time.Time       `db:"created_at"`
}

// WalletTransaction is an append-only ledger entry. Amount is signed:
// negative for charges, positive for refunds and deposits. BalanceAfter is
// the wallet balance immediately after the entry was applied, so a user's
// entries reconcile to their balance at every point.
type WalletTransaction struct {
	ID           string          `db:"id"`
	UserID       string          `db:"user_id"`
	Type         string          `db:"type"`
	Status       string          `db:"status"`
	Amount       decimal.Decimal `db:"amount"`
	BalanceAfter decimal.Decimal `db:"balance_after"`
	AuctionID    *string         `db:"auction_id"`
	BidID        *string         `db:"bid_id"`
	Description  string          `db:"description"`
	CreatedAt    time.Time       `db:"created_at"`
}

// AuctionRepository reads auction records outside a settlement transaction.
type AuctionRepository interface {
	GetByID(ctx context.Context, id string) (*Auction, error)
}

// UserRepository reads user records outside a settlement transaction.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
}

// BidRepository reads bid history.
type BidRepository interface {
	// ListByAuction returns an auction's bids, oldest first. Hidden bids
	// are included only when includeHidden is set.
	ListByAuction(ctx context.Context, auctionID string, includeHidden bool) ([]Bid, error)
}

// WalletRepository reads ledger history.
type WalletRepository interface {
	// ListTransactions returns a user's ledger entries, newest first.
	ListTransactions(ctx context.Context, userID string) ([]WalletTransaction, error)
}

// Tx is the unit-of-work handle passed to transactional callbacks. All
// reads observe, and all writes join, one atomic transaction; either every
// mutation commits or none does.
type Tx interface {
	// AuctionForUpdate returns the auction row with an exclusive lock,
	// serializing concurrent settlements on the same auction.
	AuctionForUpdate(ctx context.Context, id string) (*Auction, error)
	// UserForUpdate returns the user row with an exclusive lock.
	UserForUpdate(ctx context.Context, id string) (*User, error)
	// LatestBid returns the most recent bid on the auction across all
	// bidders, or ErrNotFound when the auction has no bids.
	LatestBid(ctx context.Context, auctionID string) (*Bid, error)
	// LatestVisibleBid is LatestBid restricted to non-hidden bids.
	LatestVisibleBid(ctx context.Context, auctionID string) (*Bid, error)
	// CountBids counts a bidder's bids on an auction with the given
	// status, restricted to hidden bids when hiddenOnly is set.
	CountBids(ctx context.Context, auctionID, bidderID string, status BidStatus, hiddenOnly bool) (int, error)
	// ApplyLedgerEntry atomically adjusts the user's wallet balance by the
	// entry's signed amount and appends the entry with its BalanceAfter
	// snapshot filled in. Returns ErrNegativeBalance when the adjustment
	// would make the balance negative.
	ApplyLedgerEntry(ctx context.Context, e *WalletTransaction) (decimal.Decimal, error)
	// InsertBid appends a bid record.
	InsertBid(ctx context.Context, b *Bid) error
	// SetCurrentPrice advances the auction's current price.
	SetCurrentPrice(ctx context.Context, auctionID string, price decimal.Decimal) error
	// AppendEvents writes outbox events within the transaction.
	AppendEvents(ctx context.Context, events ...event.Event) error
}

// TxRunner executes a function inside one atomic transaction. A returned
// error rolls the whole transaction back. Implementations translate
// backend-specific serialization failures to ErrTxConflict.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
