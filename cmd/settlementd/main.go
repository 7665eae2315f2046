package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/auctionbay/settlement/internal/bidding"
	"github.com/auctionbay/settlement/internal/clock"
	"github.com/auctionbay/settlement/internal/config"
	"github.com/auctionbay/settlement/internal/dispatch"
	"github.com/auctionbay/settlement/internal/health"
	"github.com/auctionbay/settlement/internal/leader"
	"github.com/auctionbay/settlement/internal/server"
	"github.com/auctionbay/settlement/internal/store"
	"github.com/auctionbay/settlement/internal/telemetry"
	"github.com/auctionbay/settlement/internal/wallet"

	// Register store drivers so they are available via store.Open.
	_ "github.com/auctionbay/settlement/internal/store/memory"
	_ "github.com/auctionbay/settlement/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration.
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup telemetry.
	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	// Open store using the configured driver (postgres or memory).
	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to database", slog.String("driver", cfg.Database.Driver))

	// Initialize services.
	biddingSvc := bidding.NewService(repos.Tx, cfg.Bidding, logger, tp.TracerProvider, clk)
	walletMgr := wallet.NewManager(repos.Tx, repos.Users, repos.Wallet, logger, tp.TracerProvider, clk)

	// Setup health checks.
	healthHandler := health.NewHandler(clk,
		health.Checker{
			Name:  "database",
			Check: repos.Ping,
		},
	)

	handler := server.NewHandler(biddingSvc, walletMgr, repos.Auctions, repos.Bids, repos.Events, clk)
	router := server.NewRouter(handler, healthHandler, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting http server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "http server error", slog.Any("error", listenErr))
			cancel()
		}
	}()

	healthHandler.SetReady(true)
	logger.InfoContext(ctx, "settlementd is running", slog.String("version", version))

	// The outbox dispatcher must run on exactly one replica, so it is gated
	// behind leader election when that is enabled.
	if cfg.Dispatch.Enabled {
		dispatcher := dispatch.New(
			repos.Events,
			dispatch.NewWebhookSink(cfg.Dispatch.WebhookURL),
			cfg.Dispatch,
			logger,
			tp.TracerProvider,
		)

		if cfg.LeaderElection.Enabled {
			go func() {
				if leaderErr := leader.Run(ctx, cfg.LeaderElection, logger, dispatcher.Run, func() {
					logger.Info("lost leadership, stopping dispatcher")
				}); leaderErr != nil {
					logger.ErrorContext(ctx, "leader election error", slog.Any("error", leaderErr))
				}
			}()
		} else {
			go dispatcher.Run(ctx)
		}
	}

	// Wait for shutdown signal.
	<-ctx.Done()
	logger.Info("shutting down...")

	healthHandler.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}
