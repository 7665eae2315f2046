package wallet

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
	"github.com/auctionbay/settlement/internal/event"
	"github.com/auctionbay/settlement/internal/store"
)

// Errors returned by wallet operations.
var (
	ErrNonPositiveAmount = errors.New("amount must be positive")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Manager handles operator adjustments of wallet balances. Every change
// goes through the same ledger primitive as bid settlement: balance update
// and transaction record in one atomic unit.
type Manager struct {
	tx     store.TxRunner
	users  store.UserRepository
	wallet store.WalletRepository
	logger *slog.Logger
	tracer trace.Tracer
	clock  clock.Clock
}

// NewManager returns a new wallet Manager.
func NewManager(tx store.TxRunner, users store.UserRepository, wallet store.WalletRepository, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Manager {
	return &Manager{
		tx:     tx,
		users:  users,
		wallet: wallet,
		logger: logger,
		tracer: tp.Tracer("github.com/auctionbay/settlement/internal/wallet"),
		clock:  clk,
	}
}

// Credit adds funds to a user's wallet.
func (m *Manager) Credit(ctx context.Context, userID string, amount decimal.Decimal, reason string) (*store.WalletTransaction, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	return m.adjust(ctx, "Manager.Credit", userID, amount, store.TxnDeposit, event.WalletCredited, reason)
}

// Debit removes funds from a user's wallet. Fails with ErrInsufficientFunds
// when the balance would go negative.
func (m *Manager) Debit(ctx context.Context, userID string, amount decimal.Decimal, reason string) (*store.WalletTransaction, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	return m.adjust(ctx, "Manager.Debit", userID, amount.Neg(), store.TxnWithdrawal, event.WalletDebited, reason)
}

func (m *Manager) adjust(ctx context.Context, span string, userID string, amount decimal.Decimal, txnType string, evtType event.Type, reason string) (*store.WalletTransaction, error) {
	ctx, sp := m.tracer.Start(ctx, span,
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("amount", amount.String()),
		),
	)
	defer sp.End()

	entry := &store.WalletTransaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        txnType,
		Status:      store.TxnCompleted,
		Amount:      amount,
		Description: reason,
		CreatedAt:   m.clock.Now().UTC(),
	}

	err := m.tx.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.UserForUpdate(ctx, userID); err != nil {
			return fmt.Errorf("loading user: %w", err)
		}
		if _, err := tx.ApplyLedgerEntry(ctx, entry); err != nil {
			if errors.Is(err, store.ErrNegativeBalance) {
				return ErrInsufficientFunds
			}
			return fmt.Errorf("applying ledger entry: %w", err)
		}

		data, _ := json.Marshal(event.WalletChangeData{
			UserID: userID,
			Amount: amount,
			Reason: reason,
		})
		return tx.AppendEvents(ctx, event.Event{
			ID:          uuid.NewString(),
			AggregateID: userID,
			Type:        evtType,
			Data:        data,
			CreatedAt:   entry.CreatedAt,
		})
	})
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "wallet adjusted",
		slog.String("user_id", userID),
		slog.String("type", txnType),
		slog.String("amount", amount.String()),
		slog.String("reason", reason),
	)
	return entry, nil
}

// Balance returns a user's current wallet balance.
func (m *Manager) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	ctx, sp := m.tracer.Start(ctx, "Manager.Balance")
	defer sp.End()

	u, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return u.WalletBalance, nil
}

// Transactions returns a user's ledger history, newest first.
func (m *Manager) Transactions(ctx context.Context, userID string) ([]store.WalletTransaction, error) {
	ctx, sp := m.tracer.Start(ctx, "Manager.Transactions")
	defer sp.End()

	return m.wallet.ListTransactions(ctx, userID)
}
