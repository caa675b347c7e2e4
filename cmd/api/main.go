package main

import (
	"log"
	"net/http"
	"time"

	"solstore/internal/config"
	"solstore/internal/database"
	"solstore/internal/deposit"
	"solstore/internal/handler"
	"solstore/internal/middleware"
	"solstore/internal/model"
	"solstore/internal/price"
	"solstore/internal/solana"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.Load()

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	encryptionKey := cfg.Solana.WalletEncryptionKey
	if encryptionKey == "" {
		encryptionKey, err = solana.LoadOrCreateKey("wallet_encryption.key")
		if err != nil {
			log.Fatalf("Failed to load wallet encryption key: %v", err)
		}
	}

	chain, err := solana.NewClient(cfg.Solana.RPCURL, encryptionKey)
	if err != nil {
		log.Fatalf("Failed to initialize solana client: %v", err)
	}

	rates := price.NewSource(cfg.Price.FeedURL, cfg.Price.CacheTTL, cfg.Price.FallbackRate)
	deposits := deposit.NewService(db, rates, deposit.Config{
		MinAmountEUR:   cfg.Deposit.MinAmountEUR,
		ReservationTTL: cfg.Deposit.ReservationTTL,
		DustThreshold:  cfg.Deposit.DustThreshold,
		MatchTolerance: cfg.Deposit.MatchTolerance,
	})

	h := handler.New(db, deposits, rates, chain, cfg)
	router := setupRouter(h, cfg)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Printf("Server starting on port %s\n", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v\n", err)
	}
}

func setupRouter(h *handler.Handler, cfg *config.Config) *gin.Engine {
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(middleware.Cors())

	rateLimiter := middleware.NewIPRateLimiter(model.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
	})
	router.Use(rateLimiter.RateLimit())

	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	v1 := router.Group("/api/v1")
	{
		v1.GET("/rate", h.GetRate)

		users := v1.Group("/users")
		{
			users.POST("", h.CreateUser)
			users.GET("/:id", h.GetUser)
			users.GET("/:id/transactions", h.GetTransactions)

			// Deposit reservation flow
			users.POST("/:id/deposit", h.CreateDeposit)
			users.GET("/:id/deposit", h.GetActiveDeposit)
			users.DELETE("/:id/deposit/:deposit_id", h.CancelDeposit)
			users.GET("/:id/deposits", h.GetDepositHistory)

			users.POST("/:id/withdraw", h.Withdraw)
			users.POST("/:id/purchase", h.Purchase)

			// Admin routes
			users.PUT("/:id/balance", h.AdminAuth(), h.AdjustBalance)
			users.POST("/:id/block", h.AdminAuth(), h.BlockUser)
		}
	}

	return router
}
