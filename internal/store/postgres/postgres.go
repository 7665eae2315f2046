// Package postgres provides the production store.Driver backed by Postgres
// through sqlx with OTEL instrumentation.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/XSAM/otelsql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/auctionbay/settlement/internal/clock"
	"github.com/auctionbay/settlement/internal/config"
	"github.com/auctionbay/settlement/internal/store"
)

func init() {
	store.Register("postgres", openPostgres)
}

// openPostgres is the store.Driver for the "postgres" backend.
func openPostgres(ctx context.Context, cfg config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	db, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewRepositories(db, clk), nil
}

// NewRepositories wires all postgres repositories over one connection pool.
func NewRepositories(db *sqlx.DB, clk clock.Clock) *store.Repositories {
	return &store.Repositories{
		Auctions: NewAuctionRepo(db),
		Users:    NewUserRepo(db),
		Bids:     NewBidRepo(db),
		Wallet:   NewWalletRepo(db),
		Events:   NewEventStore(db, clk),
		Tx:       NewTxRunner(db),
		Closer:   db,
		Ping:     db.PingContext,
	}
}

// Connect opens and verifies a Postgres connection with OTEL instrumentation.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := cfg.DSN()

	// Register the OTel-instrumented driver wrapping lib/pq.
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return nil, fmt.Errorf("registering otel driver: %w", err)
	}

	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

// convertErr translates backend errors into store sentinel errors.
func convertErr(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %v", store.ErrTxConflict, err)
		case "23514": // check_violation (non-negative balance, price floor)
			return fmt.Errorf("%w: %v", store.ErrNegativeBalance, err)
		}
	}
	return err
}
