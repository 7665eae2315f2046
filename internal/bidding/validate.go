package bidding

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/auctionbay/settlement/internal/store"
)

// Snapshot is the state a validation decision is made against. It must be
// read inside the same transaction that performs the settlement, so the
// decision cannot go stale between validate and settle.
type Snapshot struct {
	Auction *store.Auction
	Bidder  *store.User
	// LatestBid is the most recent bid across all bidders, nil if none.
	LatestBid *store.Bid
	// LatestVisibleBid is the most recent non-hidden bid, nil if none.
	LatestVisibleBid *store.Bid
	// ValidBidsByBidder counts the bidder's VALID bids on this auction.
	ValidBidsByBidder int
	// HiddenBidsByBidder counts the bidder's hidden bids on this auction.
	HiddenBidsByBidder int
}

// Rules carries the validation policy knobs.
type Rules struct {
	LastPhaseWindow time.Duration
	MaxSealedBids   int
}

// ValidateSingle decides whether a single-amount bid is acceptable. It is
// pure: the first violated rule is returned as a typed error and nothing is
// mutated. On success it returns the phase the bid was validated for.
func ValidateSingle(s Snapshot, amount decimal.Decimal, now time.Time, rules Rules) (Phase, error) {
	a := s.Auction
	phase := ClassifyWindow(a.StartTime, a.EndTime, now, rules.LastPhaseWindow)

	switch phase {
	case PhaseEnded:
		return phase, ErrAuctionEnded
	case PhaseNotOpen:
		return phase, ErrAuctionNotOpen
	case PhaseLast:
		return phase, ErrOnlyHiddenBidsAllowed
	}

	// A bidder may not outbid themself back-to-back.
	if s.LatestBid != nil && s.LatestBid.BidderID == s.Bidder.ID {
		return phase, ErrConsecutiveBid
	}

	floor := a.CurrentPrice.Add(a.MinIncrement)
	if amount.LessThan(floor) {
		return phase, ErrBidBelowMinimum
	}
	if err := checkIncrementMultiple(a, amount); err != nil {
		return phase, err
	}

	if amount.GreaterThan(s.Bidder.WalletBalance) {
		return phase, ErrInsufficientBalance
	}
	return phase, nil
}

// ValidateSealed decides whether a sealed multi-bid submission is
// acceptable. Only the maximum candidate is charged, so the balance check
// runs against max(amounts).
func ValidateSealed(s Snapshot, amounts []decimal.Decimal, now time.Time, rules Rules) (Phase, error) {
	a := s.Auction
	phase := ClassifyWindow(a.StartTime, a.EndTime, now, rules.LastPhaseWindow)

	switch phase {
	case PhaseEnded:
		return phase, ErrAuctionEnded
	case PhaseNotOpen:
		return phase, ErrAuctionNotOpen
	case PhaseNormal:
		return phase, ErrSealedRequiresLastPhase
	}

	// Sealed bidding is reserved for bidders already in the race.
	if s.ValidBidsByBidder == 0 {
		return phase, ErrNotEligibleForLastPhase
	}
	// At most one sealed submission per bidder per auction.
	if s.HiddenBidsByBidder > 0 {
		return phase, ErrLastPhaseLimitExceeded
	}

	// Sealed bids race against the last publicly visible bid, not each
	// other, so the floor tracks the latest non-hidden bid.
	base := a.CurrentPrice
	if s.LatestVisibleBid != nil {
		base = s.LatestVisibleBid.Amount
	}
	floor := base.Add(a.MinIncrement)
	for _, amount := range amounts {
		if amount.LessThan(floor) {
			return phase, ErrBidBelowMinimum
		}
		// The multiple check stays anchored to the current price even in
		// the last phase.
		if err := checkIncrementMultiple(a, amount); err != nil {
			return phase, err
		}
	}

	if len(amounts) < 1 || len(amounts) > rules.MaxSealedBids {
		return phase, ErrInvalidBidArray
	}
	seen := make(map[string]struct{}, len(amounts))
	for _, amount := range amounts {
		key := amount.String()
		if _, dup := seen[key]; dup {
			return phase, ErrInvalidBidArray
		}
		seen[key] = struct{}{}
	}

	if MaxAmount(amounts).GreaterThan(s.Bidder.WalletBalance) {
		return phase, ErrInsufficientBalance
	}
	return phase, nil
}

func checkIncrementMultiple(a *store.Auction, amount decimal.Decimal) error {
	if !amount.Sub(a.CurrentPrice).Mod(a.MinIncrement).IsZero() {
		return ErrBidNotMultipleOfIncrement
	}
	return nil
}

// MaxAmount returns the largest of the given amounts. It panics on an empty
// slice; callers validate the candidate set first.
func MaxAmount(amounts []decimal.Decimal) decimal.Decimal {
	max := amounts[0]
	for _, a := range amounts[1:] {
		if a.GreaterThan(max) {
			max = a
		}
	}
	return max
}
