package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/auctionbay/settlement/internal/bidding"
	"github.com/auctionbay/settlement/internal/clock"
	"github.com/auctionbay/settlement/internal/event"
	"github.com/auctionbay/settlement/internal/store"
	"github.com/auctionbay/settlement/internal/wallet"
)

// Handler exposes the bidding and wallet operations over HTTP.
type Handler struct {
	bids     *bidding.Service
	wallet   *wallet.Manager
	auctions store.AuctionRepository
	bidRepo  store.BidRepository
	events   event.Store
	clock    clock.Clock
}

// NewHandler creates a Handler.
func NewHandler(bids *bidding.Service, walletMgr *wallet.Manager, auctions store.AuctionRepository, bidRepo store.BidRepository, events event.Store, clk clock.Clock) *Handler {
	return &Handler{
		bids:     bids,
		wallet:   walletMgr,
		auctions: auctions,
		bidRepo:  bidRepo,
		events:   events,
		clock:    clk,
	}
}

// PlaceBidRequest is the body of POST /auctions/:auction_id/bids.
// The bidder identity comes from the auth layer in front of this service;
// it is carried in the body here because the service itself is unauthenticated.
type PlaceBidRequest struct {
	BidderID string          `json:"bidder_id" binding:"required"`
	Amount   decimal.Decimal `json:"amount" binding:"required"`
}

// PlaceSealedBidsRequest is the body of POST /auctions/:auction_id/sealed-bids.
type PlaceSealedBidsRequest struct {
	BidderID string            `json:"bidder_id" binding:"required"`
	Amounts  []decimal.Decimal `json:"amounts" binding:"required"`
}

// WalletAdjustRequest is the body of the wallet credit/debit endpoints.
type WalletAdjustRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Reason string          `json:"reason"`
}

// BidResponse is the wire shape of a bid record.
type BidResponse struct {
	ID        string          `json:"id"`
	AuctionID string          `json:"auction_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	Hidden    bool            `json:"hidden"`
	CreatedAt string          `json:"created_at"`
}

func toBidResponse(b store.Bid) BidResponse {
	return BidResponse{
		ID:        b.ID,
		AuctionID: b.AuctionID,
		BidderID:  b.BidderID,
		Amount:    b.Amount,
		Status:    string(b.Status),
		Hidden:    b.Hidden,
		CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// TransactionResponse is the wire shape of a ledger entry.
type TransactionResponse struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Status       string          `json:"status"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	AuctionID    *string         `json:"auction_id,omitempty"`
	BidID        *string         `json:"bid_id,omitempty"`
	Description  string          `json:"description"`
	CreatedAt    string          `json:"created_at"`
}

func toTransactionResponse(t store.WalletTransaction) TransactionResponse {
	return TransactionResponse{
		ID:           t.ID,
		Type:         t.Type,
		Status:       t.Status,
		Amount:       t.Amount,
		BalanceAfter: t.BalanceAfter,
		AuctionID:    t.AuctionID,
		BidID:        t.BidID,
		Description:  t.Description,
		CreatedAt:    t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// PlaceBid handles POST /auctions/:auction_id/bids.
func (h *Handler) PlaceBid(c *gin.Context) {
	var req PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bid, err := h.bids.PlaceBid(c.Request.Context(), c.Param("auction_id"), req.BidderID, req.Amount)
	if err != nil {
		status := mapError(err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, toBidResponse(*bid))
}

// PlaceSealedBids handles POST /auctions/:auction_id/sealed-bids.
func (h *Handler) PlaceSealedBids(c *gin.Context) {
	var req PlaceSealedBidsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bids, err := h.bids.PlaceSealedBids(c.Request.Context(), c.Param("auction_id"), req.BidderID, req.Amounts)
	if err != nil {
		status := mapError(err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	resp := make([]BidResponse, len(bids))
	for i, b := range bids {
		resp[i] = toBidResponse(b)
	}
	c.JSON(http.StatusCreated, resp)
}

// ListBids handles GET /auctions/:auction_id/bids. Hidden bids stay out of
// the listing until the auction has ended.
func (h *Handler) ListBids(c *gin.Context) {
	auctionID := c.Param("auction_id")

	a, err := h.auctions.GetByID(c.Request.Context(), auctionID)
	if err != nil {
		c.JSON(mapError(err), gin.H{"error": err.Error()})
		return
	}

	ended := !h.clock.Now().Before(a.EndTime)
	bids, err := h.bidRepo.ListByAuction(c.Request.Context(), auctionID, ended)
	if err != nil {
		c.JSON(mapError(err), gin.H{"error": err.Error()})
		return
	}

	resp := make([]BidResponse, len(bids))
	for i, b := range bids {
		resp[i] = toBidResponse(b)
	}
	c.JSON(http.StatusOK, resp)
}

// ListEvents handles GET /auctions/:auction_id/events.
func (h *Handler) ListEvents(c *gin.Context) {
	events, err := h.events.Load(c.Request.Context(), c.Param("auction_id"))
	if err != nil {
		c.JSON(mapError(err), gin.H{"error": err.Error()})
		return
	}
	if events == nil {
		events = []event.Event{}
	}
	c.JSON(http.StatusOK, events)
}

// GetWallet handles GET /users/:user_id/wallet.
func (h *Handler) GetWallet(c *gin.Context) {
	balance, err := h.wallet.Balance(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		c.JSON(mapError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": c.Param("user_id"), "balance": balance})
}

// ListWalletTransactions handles GET /users/:user_id/wallet/transactions.
func (h *Handler) ListWalletTransactions(c *gin.Context) {
	txns, err := h.wallet.Transactions(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		c.JSON(mapError(err), gin.H{"error": err.Error()})
		return
	}
	resp := make([]TransactionResponse, len(txns))
	for i, t := range txns {
		resp[i] = toTransactionResponse(t)
	}
	c.JSON(http.StatusOK, resp)
}

// CreditWallet handles POST /users/:user_id/wallet/credits.
func (h *Handler) CreditWallet(c *gin.Context) {
	h.adjustWallet(c, h.wallet.Credit)
}

// DebitWallet handles POST /users/:user_id/wallet/debits.
func (h *Handler) DebitWallet(c *gin.Context) {
	h.adjustWallet(c, h.wallet.Debit)
}

func (h *Handler) adjustWallet(c *gin.Context, op func(ctx context.Context, userID string, amount decimal.Decimal, reason string) (*store.WalletTransaction, error)) {
	var req WalletAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txn, err := op(c.Request.Context(), c.Param("user_id"), req.Amount, req.Reason)
	if err != nil {
		c.JSON(mapError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, toTransactionResponse(*txn))
}

// mapError translates domain errors to HTTP status codes.
func mapError(err error) int {
	switch {
	case errors.Is(err, bidding.ErrAuctionNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, bidding.ErrBidBelowMinimum),
		errors.Is(err, bidding.ErrBidNotMultipleOfIncrement),
		errors.Is(err, bidding.ErrInvalidBidArray),
		errors.Is(err, wallet.ErrNonPositiveAmount):
		return http.StatusBadRequest
	case errors.Is(err, bidding.ErrInsufficientBalance), errors.Is(err, wallet.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, bidding.ErrNotEligibleForLastPhase),
		errors.Is(err, bidding.ErrOnlyHiddenBidsAllowed),
		errors.Is(err, bidding.ErrSealedRequiresLastPhase):
		return http.StatusForbidden
	case errors.Is(err, bidding.ErrConsecutiveBid),
		errors.Is(err, bidding.ErrLastPhaseLimitExceeded),
		errors.Is(err, bidding.ErrAuctionEnded),
		errors.Is(err, bidding.ErrAuctionNotOpen):
		return http.StatusConflict
	case errors.Is(err, bidding.ErrSettlementConflict):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
