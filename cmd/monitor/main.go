package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"solstore/internal/config"
	"solstore/internal/database"
	"solstore/internal/deposit"
	"solstore/internal/monitor"
	"solstore/internal/notify"
	"solstore/internal/price"
	"solstore/internal/solana"

	"github.com/joho/godotenv"
)

func main() {
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

	var notifier monitor.Notifier
	if cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegram(cfg.Telegram.BotToken)
		if err != nil {
			log.Printf("Telegram notifications disabled: %v", err)
		} else {
			notifier = tg
		}
	}

	m := monitor.New(db, deposits, rates, chain, notifier, monitor.Config{
		DepositInterval:    cfg.Deposit.PollInterval,
		WithdrawalInterval: cfg.Withdrawal.PollInterval,
		WithdrawalFee:      cfg.Withdrawal.FeePercent,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m.Run(ctx)
}
