// Package memory provides a store.Driver held entirely in process memory.
// It backs unit tests and local development; transactions are serialized by
// a single store-wide lock and commit by swapping a mutated copy of the
// state, so a failed callback leaves nothing behind.
package memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/auctionbay/settlement/internal/clock"
	"github.com/auctionbay/settlement/internal/config"
	"github.com/auctionbay/settlement/internal/event"
	"github.com/auctionbay/settlement/internal/store"
)

func init() {
	store.Register("memory", openMemory)
}

// closerFunc adapts a func() error into an io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openMemory is the store.Driver for the "memory" backend.
func openMemory(ctx context.Context, cfg config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	s := New(clk)
	return s.Repositories(), nil
}

// Store is the in-memory backend.
type Store struct {
	mu    sync.Mutex
	state state
	clock clock.Clock
}

type state struct {
	users    map[string]store.User
	auctions map[string]store.Auction
	bids     []store.Bid
	txns     []store.WalletTransaction
	events   []event.Event
}

// New returns an empty in-memory store.
func New(clk clock.Clock) *Store {
	return &Store{
		state: state{
			users:    make(map[string]store.User),
			auctions: make(map[string]store.Auction),
		},
		clock: clk,
	}
}

// Repositories exposes the store through the standard repository bundle.
func (s *Store) Repositories() *store.Repositories {
	return &store.Repositories{
		Auctions: auctionRepo{s},
		Users:    userRepo{s},
		Bids:     s,
		Wallet:   s,
		Events:   s,
		Tx:       s,
		Closer:   closerFunc(func() error { return nil }),
		Ping:     func(ctx context.Context) error { return nil },
	}
}

// auctionRepo and userRepo are read-only views; both repositories expose a
// GetByID, so they cannot share one receiver.
type auctionRepo struct{ s *Store }

func (r auctionRepo) GetByID(ctx context.Context, id string) (*store.Auction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.state.auctions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

type userRepo struct{ s *Store }

func (r userRepo) GetByID(ctx context.Context, id string) (*store.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.state.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

// SeedUser inserts or replaces a user. Test and development helper.
func (s *Store) SeedUser(u store.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.users[u.ID] = u
}

// SeedAuction inserts or replaces an auction. Test and development helper.
func (s *Store) SeedAuction(a store.Auction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.auctions[a.ID] = a
}

func (st state) clone() state {
	c := state{
		users:    make(map[string]store.User, len(st.users)),
		auctions: make(map[string]store.Auction, len(st.auctions)),
		bids:     make([]store.Bid, len(st.bids)),
		txns:     make([]store.WalletTransaction, len(st.txns)),
		events:   make([]event.Event, len(st.events)),
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.auctions {
		c.auctions[k] = v
	}
	copy(c.bids, st.bids)
	copy(c.txns, st.txns)
	copy(c.events, st.events)
	return c
}

// RunInTx implements store.TxRunner. The whole store is locked for the
// duration, which trivially satisfies the per-auction serialization
// guarantee the postgres driver gets from row locks.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scratch := s.state.clone()
	if err := fn(ctx, &memTx{st: &scratch}); err != nil {
		return err
	}
	s.state = scratch
	return nil
}

// ListByAuction implements store.BidRepository.
func (s *Store) ListByAuction(ctx context.Context, auctionID string, includeHidden bool) ([]store.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var bids []store.Bid
	for _, b := range s.state.bids {
		if b.AuctionID != auctionID {
			continue
		}
		if b.Hidden && !includeHidden {
			continue
		}
		bids = append(bids, b)
	}
	return bids, nil
}

// ListTransactions implements store.WalletRepository.
func (s *Store) ListTransactions(ctx context.Context, userID string) ([]store.WalletTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var txns []store.WalletTransaction
	for i := len(s.state.txns) - 1; i >= 0; i-- {
		if s.state.txns[i].UserID == userID {
			txns = append(txns, s.state.txns[i])
		}
	}
	return txns, nil
}

// Load implements event.Store.
func (s *Store) Load(ctx context.Context, aggregateID string) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []event.Event
	for _, e := range s.state.events {
		if e.AggregateID == aggregateID {
			events = append(events, e)
		}
	}
	return events, nil
}

// LoadUndispatched implements event.Store.
func (s *Store) LoadUndispatched(ctx context.Context, limit int) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []event.Event
	for _, e := range s.state.events {
		if e.DispatchedAt != nil {
			continue
		}
		events = append(events, e)
		if len(events) == limit {
			break
		}
	}
	return events, nil
}

// MarkDispatched implements event.Store.
func (s *Store) MarkDispatched(ctx context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now().UTC()
	marked := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		marked[id] = struct{}{}
	}
	for i := range s.state.events {
		if _, ok := marked[s.state.events[i].ID]; ok {
			t := now
			s.state.events[i].DispatchedAt = &t
		}
	}
	return nil
}

// memTx implements store.Tx against a scratch copy of the state.
type memTx struct {
	st *state
}

func (t *memTx) AuctionForUpdate(ctx context.Context, id string) (*store.Auction, error) {
	a, ok := t.st.auctions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (t *memTx) UserForUpdate(ctx context.Context, id string) (*store.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (t *memTx) LatestBid(ctx context.Context, auctionID string) (*store.Bid, error) {
	return t.latestBid(auctionID, true)
}

func (t *memTx) LatestVisibleBid(ctx context.Context, auctionID string) (*store.Bid, error) {
	return t.latestBid(auctionID, false)
}

func (t *memTx) latestBid(auctionID string, includeHidden bool) (*store.Bid, error) {
	for i := len(t.st.bids) - 1; i >= 0; i-- {
		b := t.st.bids[i]
		if b.AuctionID != auctionID {
			continue
		}
		if b.Hidden && !includeHidden {
			continue
		}
		return &b, nil
	}
	return nil, store.ErrNotFound
}

func (t *memTx) CountBids(ctx context.Context, auctionID, bidderID string, status store.BidStatus, hiddenOnly bool) (int, error) {
	n := 0
	for _, b := range t.st.bids {
		if b.AuctionID != auctionID || b.BidderID != bidderID || b.Status != status {
			continue
		}
		if hiddenOnly && !b.Hidden {
			continue
		}
		n++
	}
	return n, nil
}

func (t *memTx) ApplyLedgerEntry(ctx context.Context, e *store.WalletTransaction) (decimal.Decimal, error) {
	u, ok := t.st.users[e.UserID]
	if !ok {
		return decimal.Zero, store.ErrNotFound
	}
	balance := u.WalletBalance.Add(e.Amount)
	if balance.IsNegative() {
		return decimal.Zero, store.ErrNegativeBalance
	}
	u.WalletBalance = balance
	u.UpdatedAt = e.CreatedAt
	t.st.users[e.UserID] = u

	e.BalanceAfter = balance
	t.st.txns = append(t.st.txns, *e)
	return balance, nil
}

func (t *memTx) InsertBid(ctx context.Context, b *store.Bid) error {
	t.st.bids = append(t.st.bids, *b)
	return nil
}

func (t *memTx) SetCurrentPrice(ctx context.Context, auctionID string, price decimal.Decimal) error {
	a, ok := t.st.auctions[auctionID]
	if !ok {
		return store.ErrNotFound
	}
	a.CurrentPrice = price
	t.st.auctions[auctionID] = a
	return nil
}

func (t *memTx) AppendEvents(ctx context.Context, events ...event.Event) error {
	t.st.events = append(t.st.events, events...)
	return nil
}
