package memory_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/auctionbay/settlement/internal/clock"
	"github.com/auctionbay/settlement/internal/config"
	"github.com/auctionbay/settlement/internal/event"
	"github.com/auctionbay/settlement/internal/store"
	"github.com/auctionbay/settlement/internal/store/memory"
)

func newStore() *memory.Store {
	clk := clock.NewMock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
	st := memory.New(clk)
	st.SeedUser(store.User{ID: "alice", Username: "alice", WalletBalance: decimal.NewFromInt(500)})
	return st
}

func TestRunInTx_CommitsOnSuccess(t *testing.T) {
	st := newStore()
	ctx := context.Background()

	err := st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.ApplyLedgerEntry(ctx, &store.WalletTransaction{
			ID:     "t1",
			UserID: "alice",
			Type:   store.TxnWithdrawal,
			Status: store.TxnCompleted,
			Amount: decimal.NewFromInt(-100),
		})
		return err
	})
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}

	u, err := st.Repositories().Users.GetByID(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !u.WalletBalance.Equal(decimal.NewFromInt(400)) {
		t.Errorf("balance = %s, want 400", u.WalletBalance)
	}
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	st := newStore()
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.ApplyLedgerEntry(ctx, &store.WalletTransaction{
			ID:     "t1",
			UserID: "alice",
			Type:   store.TxnWithdrawal,
			Status: store.TxnCompleted,
			Amount: decimal.NewFromInt(-100),
		}); err != nil {
			return err
		}
		if err := tx.InsertBid(ctx, &store.Bid{ID: "b1", AuctionID: "a1", BidderID: "alice"}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("RunInTx error = %v, want %v", err, sentinel)
	}

	u, _ := st.Repositories().Users.GetByID(ctx, "alice")
	if !u.WalletBalance.Equal(decimal.NewFromInt(500)) {
		t.Errorf("balance = %s, want 500 after rollback", u.WalletBalance)
	}
	bids, _ := st.ListByAuction(ctx, "a1", true)
	if len(bids) != 0 {
		t.Errorf("got %d bids, want 0 after rollback", len(bids))
	}
	txns, _ := st.ListTransactions(ctx, "alice")
	if len(txns) != 0 {
		t.Errorf("got %d transactions, want 0 after rollback", len(txns))
	}
}

func TestApplyLedgerEntry_NegativeBalance(t *testing.T) {
	st := newStore()

	err := st.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.ApplyLedgerEntry(ctx, &store.WalletTransaction{
			ID:     "t1",
			UserID: "alice",
			Amount: decimal.NewFromInt(-501),
		})
		return err
	})
	if !errors.Is(err, store.ErrNegativeBalance) {
		t.Errorf("RunInTx error = %v, want %v", err, store.ErrNegativeBalance)
	}
}

func TestOutbox(t *testing.T) {
	st := newStore()
	ctx := context.Background()

	err := st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.AppendEvents(ctx,
			event.Event{ID: "e1", AggregateID: "a1", Type: event.BidAccepted, Data: json.RawMessage(`{}`)},
			event.Event{ID: "e2", AggregateID: "a1", Type: event.BidOutbid, Data: json.RawMessage(`{}`)},
		)
	})
	if err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}

	pending, err := st.LoadUndispatched(ctx, 10)
	if err != nil {
		t.Fatalf("LoadUndispatched: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending events, want 2", len(pending))
	}

	if err := st.MarkDispatched(ctx, "e1"); err != nil {
		t.Fatalf("MarkDispatched: %v", err)
	}
	pending, _ = st.LoadUndispatched(ctx, 10)
	if len(pending) != 1 || pending[0].ID != "e2" {
		t.Errorf("pending = %v, want only e2", pending)
	}

	all, _ := st.Load(ctx, "a1")
	if len(all) != 2 {
		t.Errorf("got %d events for aggregate, want 2", len(all))
	}
}

func TestDriverRegistration(t *testing.T) {
	repos, err := store.Open(context.Background(), config.DatabaseConfig{Driver: "memory"}, clock.Real{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if repos.Tx == nil || repos.Events == nil {
		t.Error("memory driver returned incomplete repositories")
	}
	if err := repos.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if err := repos.Closer.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
