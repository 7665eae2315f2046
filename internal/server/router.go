package server

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/auctionbay/settlement/internal/health"
)

// NewRouter configures all Gin routes for the service.
func NewRouter(h *Handler, healthHandler *health.Handler, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(logger))

	auctions := router.Group("/auctions")
	{
		auctions.POST("/:auction_id/bids", h.PlaceBid)
		auctions.POST("/:auction_id/sealed-bids", h.PlaceSealedBids)
		auctions.GET("/:auction_id/bids", h.ListBids)
		auctions.GET("/:auction_id/events", h.ListEvents)
	}

	users := router.Group("/users")
	{
		users.GET("/:user_id/wallet", h.GetWallet)
		users.GET("/:user_id/wallet/transactions", h.ListWalletTransactions)
		users.POST("/:user_id/wallet/credits", h.CreditWallet)
		users.POST("/:user_id/wallet/debits", h.DebitWallet)
	}

	router.GET("/healthz", gin.WrapF(healthHandler.LivenessHandler()))
	router.GET("/readyz", gin.WrapF(healthHandler.ReadinessHandler()))

	return router
}
