package wallet_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/auctionbay/settlement/internal/clock"
	"github.com/auctionbay/settlement/internal/event"
	"github.com/auctionbay/settlement/internal/store"
	"github.com/auctionbay/settlement/internal/store/memory"
	"github.com/auctionbay/settlement/internal/wallet"
)

func newTestManager(t *testing.T) (*wallet.Manager, *memory.Store) {
	t.Helper()

	clk := clock.NewMock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
	st := memory.New(clk)
	st.SeedUser(store.User{ID: "alice", Username: "alice", WalletBalance: decimal.NewFromInt(100)})

	repos := st.Repositories()
	mgr := wallet.NewManager(repos.Tx, repos.Users, repos.Wallet, slog.Default(), noop.NewTracerProvider(), clk)
	return mgr, st
}

func TestManager_Credit(t *testing.T) {
	mgr, st := newTestManager(t)
	ctx := context.Background()

	txn, err := mgr.Credit(ctx, "alice", decimal.NewFromInt(50), "signup bonus")
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if txn.Type != store.TxnDeposit {
		t.Errorf("txn type = %s, want %s", txn.Type, store.TxnDeposit)
	}
	if !txn.BalanceAfter.Equal(decimal.NewFromInt(150)) {
		t.Errorf("balance_after = %s, want 150", txn.BalanceAfter)
	}

	got, err := mgr.Balance(ctx, "alice")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(150)) {
		t.Errorf("balance = %s, want 150", got)
	}

	events, _ := st.Load(ctx, "alice")
	if len(events) != 1 || events[0].Type != event.WalletCredited {
		t.Errorf("events = %v, want one %s", events, event.WalletCredited)
	}
}

func TestManager_Debit(t *testing.T) {
	mgr, st := newTestManager(t)
	ctx := context.Background()

	txn, err := mgr.Debit(ctx, "alice", decimal.NewFromInt(40), "withdrawal")
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if txn.Type != store.TxnWithdrawal {
		t.Errorf("txn type = %s, want %s", txn.Type, store.TxnWithdrawal)
	}
	if !txn.Amount.Equal(decimal.NewFromInt(-40)) {
		t.Errorf("txn amount = %s, want -40", txn.Amount)
	}
	if !txn.BalanceAfter.Equal(decimal.NewFromInt(60)) {
		t.Errorf("balance_after = %s, want 60", txn.BalanceAfter)
	}

	events, _ := st.Load(ctx, "alice")
	if len(events) != 1 || events[0].Type != event.WalletDebited {
		t.Errorf("events = %v, want one %s", events, event.WalletDebited)
	}
}

func TestManager_Debit_InsufficientFunds(t *testing.T) {
	mgr, st := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.Debit(ctx, "alice", decimal.NewFromInt(101), "too much")
	if !errors.Is(err, wallet.ErrInsufficientFunds) {
		t.Fatalf("Debit error = %v, want %v", err, wallet.ErrInsufficientFunds)
	}

	// The failed debit leaves neither a ledger entry nor an event behind.
	txns, _ := st.ListTransactions(ctx, "alice")
	if len(txns) != 0 {
		t.Errorf("got %d transactions, want 0", len(txns))
	}
	events, _ := st.Load(ctx, "alice")
	if len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
	got, _ := mgr.Balance(ctx, "alice")
	if !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance = %s, want 100", got)
	}
}

func TestManager_Debit_ToZero(t *testing.T) {
	mgr, _ := newTestManager(t)

	txn, err := mgr.Debit(context.Background(), "alice", decimal.NewFromInt(100), "all of it")
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if !txn.BalanceAfter.IsZero() {
		t.Errorf("balance_after = %s, want 0", txn.BalanceAfter)
	}
}

func TestManager_NonPositiveAmounts(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		if _, err := mgr.Credit(ctx, "alice", amount, "bad"); !errors.Is(err, wallet.ErrNonPositiveAmount) {
			t.Errorf("Credit(%s) error = %v, want %v", amount, err, wallet.ErrNonPositiveAmount)
		}
		if _, err := mgr.Debit(ctx, "alice", amount, "bad"); !errors.Is(err, wallet.ErrNonPositiveAmount) {
			t.Errorf("Debit(%s) error = %v, want %v", amount, err, wallet.ErrNonPositiveAmount)
		}
	}
}

func TestManager_UnknownUser(t *testing.T) {
	mgr, _ := newTestManager(t)

	_, err := mgr.Credit(context.Background(), "nobody", decimal.NewFromInt(10), "orphan")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Credit error = %v, want %v", err, store.ErrNotFound)
	}
}

func TestManager_Transactions(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := mgr.Credit(ctx, "alice", decimal.NewFromInt(50), "first"); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if _, err := mgr.Debit(ctx, "alice", decimal.NewFromInt(30), "second"); err != nil {
		t.Fatalf("Debit: %v", err)
	}

	txns, err := mgr.Transactions(ctx, "alice")
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("got %d transactions, want 2", len(txns))
	}
	// Newest first.
	if txns[0].Description != "second" || txns[1].Description != "first" {
		t.Errorf("transactions out of order: %q then %q", txns[0].Description, txns[1].Description)
	}
}
