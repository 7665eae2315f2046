package bidding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/auctionbay/settlement/internal/clock"
	"github.com/auctionbay/settlement/internal/config"
	"github.com/auctionbay/settlement/internal/event"
	"github.com/auctionbay/settlement/internal/store"
)

// Service accepts bids and settles them against bidder wallets. Every
// settlement runs as one atomic transaction: validation, the refund of the
// superseded leader, the charge of the new leader and the bid insert either
// all commit or all roll back. Settlements on the same auction serialize on
// the auction row; different auctions proceed independently.
type Service struct {
	tx     store.TxRunner
	cfg    config.BiddingConfig
	logger *slog.Logger
	tracer trace.Tracer
	clock  clock.Clock
}

// NewService creates a bidding Service.
func NewService(tx store.TxRunner, cfg config.BiddingConfig, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Service {
	return &Service{
		tx:     tx,
		cfg:    cfg,
		logger: logger,
		tracer: tp.Tracer("github.com/auctionbay/settlement/internal/bidding"),
		clock:  clk,
	}
}

func (s *Service) rules() Rules {
	return Rules{
		LastPhaseWindow: s.cfg.LastPhaseWindow,
		MaxSealedBids:   s.cfg.MaxSealedBids,
	}
}

// PlaceBid validates and settles a single-amount bid. On success the prior
// leader, if any, has been refunded in full and the new bid amount has been
// charged to the bidder's wallet.
func (s *Service) PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (*store.Bid, error) {
	ctx, span := s.tracer.Start(ctx, "Service.PlaceBid",
		trace.WithAttributes(
			attribute.String("auction.id", auctionID),
			attribute.String("bidder.id", bidderID),
			attribute.String("bid.amount", amount.String()),
		),
	)
	defer span.End()

	var bid *store.Bid
	err := s.withConflictRetry(ctx, func() error {
		return s.tx.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
			snap, err := s.loadSnapshot(ctx, tx, auctionID, bidderID)
			if err != nil {
				return err
			}

			now := s.clock.Now().UTC()
			phase, err := ValidateSingle(*snap, amount, now, s.rules())
			if err != nil {
				return err
			}

			// Refund the superseded leader before charging the new one.
			prior := snap.LatestBid
			if prior != nil {
				if _, err := tx.ApplyLedgerEntry(ctx, &store.WalletTransaction{
					ID:          uuid.NewString(),
					UserID:      prior.BidderID,
					Type:        store.TxnBidRefund,
					Status:      store.TxnCompleted,
					Amount:      prior.Amount,
					AuctionID:   &auctionID,
					BidID:       &prior.ID,
					Description: "refund of superseded bid",
					CreatedAt:   now,
				}); err != nil {
					return fmt.Errorf("refunding prior leader: %w", err)
				}
			}

			bid = &store.Bid{
				ID:        uuid.NewString(),
				AuctionID: auctionID,
				BidderID:  bidderID,
				Amount:    amount,
				Status:    store.BidValid,
				Hidden:    phase == PhaseLast,
				CreatedAt: now,
			}
			if err := tx.InsertBid(ctx, bid); err != nil {
				return fmt.Errorf("inserting bid: %w", err)
			}

			if _, err := tx.ApplyLedgerEntry(ctx, &store.WalletTransaction{
				ID:          uuid.NewString(),
				UserID:      bidderID,
				Type:        store.TxnBidPayment,
				Status:      store.TxnCompleted,
				Amount:      amount.Neg(),
				AuctionID:   &auctionID,
				BidID:       &bid.ID,
				Description: "bid payment",
				CreatedAt:   now,
			}); err != nil {
				return fmt.Errorf("charging bidder: %w", err)
			}

			if !bid.Hidden {
				if err := tx.SetCurrentPrice(ctx, auctionID, amount); err != nil {
					return fmt.Errorf("advancing current price: %w", err)
				}
			}

			events := []event.Event{
				s.newEvent(auctionID, event.BidAccepted, event.BidAcceptedData{
					AuctionID: auctionID,
					BidderID:  bidderID,
					Amount:    amount,
				}),
			}
			if prior != nil {
				events = append(events, s.newEvent(auctionID, event.BidOutbid, event.BidOutbidData{
					AuctionID:    auctionID,
					BidderID:     prior.BidderID,
					OutbidBy:     bidderID,
					RefundAmount: prior.Amount,
				}))
			}
			return tx.AppendEvents(ctx, events...)
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "bid accepted",
		slog.String("auction_id", auctionID),
		slog.String("bidder_id", bidderID),
		slog.String("amount", amount.String()),
	)
	return bid, nil
}

// PlaceSealedBids validates and settles a sealed last-phase submission of
// 1-3 candidate amounts. Exactly one wallet debit of max(amounts) happens
// regardless of the candidate count; every candidate becomes a hidden bid
// row for the reveal to choose among once the auction ends.
func (s *Service) PlaceSealedBids(ctx context.Context, auctionID, bidderID string, amounts []decimal.Decimal) ([]store.Bid, error) {
	ctx, span := s.tracer.Start(ctx, "Service.PlaceSealedBids",
		trace.WithAttributes(
			attribute.String("auction.id", auctionID),
			attribute.String("bidder.id", bidderID),
			attribute.Int("bid.count", len(amounts)),
		),
	)
	defer span.End()

	var bids []store.Bid
	err := s.withConflictRetry(ctx, func() error {
		return s.tx.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
			snap, err := s.loadSnapshot(ctx, tx, auctionID, bidderID)
			if err != nil {
				return err
			}

			now := s.clock.Now().UTC()
			if _, err := ValidateSealed(*snap, amounts, now, s.rules()); err != nil {
				return err
			}

			maxAmount := MaxAmount(amounts)
			bids = make([]store.Bid, 0, len(amounts))
			var chargedBidID string
			for _, amount := range amounts {
				b := store.Bid{
					ID:        uuid.NewString(),
					AuctionID: auctionID,
					BidderID:  bidderID,
					Amount:    amount,
					Status:    store.BidValid,
					Hidden:    true,
					CreatedAt: now,
				}
				if err := tx.InsertBid(ctx, &b); err != nil {
					return fmt.Errorf("inserting sealed bid: %w", err)
				}
				if amount.Equal(maxAmount) {
					chargedBidID = b.ID
				}
				bids = append(bids, b)
			}

			// One debit for the whole batch, bounding capital-at-risk to
			// the worst case without per-candidate escrow.
			if _, err := tx.ApplyLedgerEntry(ctx, &store.WalletTransaction{
				ID:          uuid.NewString(),
				UserID:      bidderID,
				Type:        store.TxnBidPayment,
				Status:      store.TxnCompleted,
				Amount:      maxAmount.Neg(),
				AuctionID:   &auctionID,
				BidID:       &chargedBidID,
				Description: fmt.Sprintf("sealed bid payment (%d candidates)", len(amounts)),
				CreatedAt:   now,
			}); err != nil {
				return fmt.Errorf("charging sealed bidder: %w", err)
			}

			return tx.AppendEvents(ctx, s.newEvent(auctionID, event.BidAccepted, event.BidAcceptedData{
				AuctionID: auctionID,
				BidderID:  bidderID,
				Amount:    maxAmount,
			}))
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "sealed bids accepted",
		slog.String("auction_id", auctionID),
		slog.String("bidder_id", bidderID),
		slog.Int("count", len(bids)),
	)
	return bids, nil
}

// loadSnapshot reads the validation inputs under the auction row lock.
func (s *Service) loadSnapshot(ctx context.Context, tx store.Tx, auctionID, bidderID string) (*Snapshot, error) {
	a, err := tx.AuctionForUpdate(ctx, auctionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAuctionNotFound
		}
		return nil, fmt.Errorf("loading auction: %w", err)
	}

	u, err := tx.UserForUpdate(ctx, bidderID)
	if err != nil {
		return nil, fmt.Errorf("loading bidder %s: %w", bidderID, err)
	}

	snap := &Snapshot{Auction: a, Bidder: u}

	if latest, err := tx.LatestBid(ctx, auctionID); err == nil {
		snap.LatestBid = latest
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading latest bid: %w", err)
	}
	if visible, err := tx.LatestVisibleBid(ctx, auctionID); err == nil {
		snap.LatestVisibleBid = visible
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading latest visible bid: %w", err)
	}

	if snap.ValidBidsByBidder, err = tx.CountBids(ctx, auctionID, bidderID, store.BidValid, false); err != nil {
		return nil, fmt.Errorf("counting valid bids: %w", err)
	}
	if snap.HiddenBidsByBidder, err = tx.CountBids(ctx, auctionID, bidderID, store.BidValid, true); err != nil {
		return nil, fmt.Errorf("counting hidden bids: %w", err)
	}
	return snap, nil
}

// withConflictRetry retries fn on serialization conflicts up to the
// configured bound, then surfaces ErrSettlementConflict.
func (s *Service) withConflictRetry(ctx context.Context, fn func() error) error {
	attempts := s.cfg.SettleRetries + 1
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !errors.Is(err, store.ErrTxConflict) {
			return err
		}
		s.logger.WarnContext(ctx, "settlement conflict, retrying",
			slog.Int("attempt", i+1),
			slog.Int("max_attempts", attempts),
		)
	}
	return fmt.Errorf("%w: %v", ErrSettlementConflict, err)
}

func (s *Service) newEvent(aggregateID string, t event.Type, payload any) event.Event {
	data, _ := json.Marshal(payload)
	return event.Event{
		ID:          uuid.NewString(),
		AggregateID: aggregateID,
		Type:        t,
		Data:        data,
		CreatedAt:   s.clock.Now().UTC(),
	}
}
