package event

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Type identifies an event kind.
type Type string

const (
	BidAccepted Type = "bid.accepted"
	BidOutbid   Type = "bid.outbid"

	WalletCredited Type = "wallet.credited"
	WalletDebited  Type = "wallet.debited"
)

// Event is a domain event row in the transactional outbox. Events are
// appended in the same transaction as the state change they describe and
// forwarded to the notification subsystem by the dispatcher.
type Event struct {
	ID           string          `json:"id" db:"id"`
	AggregateID  string          `json:"aggregate_id" db:"aggregate_id"`
	Type         Type            `json:"type" db:"type"`
	Data         json.RawMessage `json:"data" db:"data"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	DispatchedAt *time.Time      `json:"dispatched_at,omitempty" db:"dispatched_at"`
}

// BidAcceptedData is the payload for BidAccepted events. Amount is the
// charged amount: the bid amount for a single bid, the maximum candidate
// for a sealed submission.
type BidAcceptedData struct {
	AuctionID string          `json:"auction_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// BidOutbidData is the payload for BidOutbid events, emitted for the prior
// leader when their bid is superseded and refunded.
type BidOutbidData struct {
	AuctionID    string          `json:"auction_id"`
	BidderID     string          `json:"bidder_id"`
	OutbidBy     string          `json:"outbid_by"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
}

// WalletChangeData is the payload for wallet credit/debit events.
type WalletChangeData struct {
	UserID string          `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}
