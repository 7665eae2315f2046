package bidding

import "errors"

// Validation errors. Each maps to one rejection condition and is surfaced
// to the caller before any mutation happens.
var (
	ErrAuctionNotFound           = errors.New("auction not found")
	ErrAuctionNotOpen            = errors.New("auction is not open yet")
	ErrAuctionEnded              = errors.New("auction has already ended")
	ErrBidBelowMinimum           = errors.New("bid is below the minimum amount")
	ErrBidNotMultipleOfIncrement = errors.New("bid is not a multiple of the bid increment")
	ErrConsecutiveBid            = errors.New("bidder already holds the most recent bid")
	ErrInsufficientBalance       = errors.New("insufficient wallet balance")
	ErrNotEligibleForLastPhase   = errors.New("no prior valid bid on this auction")
	ErrLastPhaseLimitExceeded    = errors.New("sealed bids already submitted for this auction")
	ErrInvalidBidArray           = errors.New("sealed submission must carry 1-3 distinct amounts")
	ErrOnlyHiddenBidsAllowed     = errors.New("only sealed bids are accepted in the last phase")
	ErrSealedRequiresLastPhase   = errors.New("sealed bids are accepted only in the last phase")
)

// ErrSettlementConflict is returned when a settlement kept losing
// serialization races after the configured number of retries.
var ErrSettlementConflict = errors.New("settlement conflict, please retry")
