package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Solana     SolanaConfig
	Price      PriceConfig
	Deposit    DepositConfig
	Withdrawal WithdrawalConfig
	Telegram   TelegramConfig
	RateLimit  RateLimitConfig
	AdminAPIKey string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Path string
}

type SolanaConfig struct {
	RPCURL string
	// WalletEncryptionKey is a 64-char hex string (32 bytes) used to
	// encrypt user wallet private keys at rest.
	WalletEncryptionKey string
}

type PriceConfig struct {
	FeedURL      string
	CacheTTL     time.Duration
	FallbackRate float64
}

type DepositConfig struct {
	MinAmountEUR   float64
	ReservationTTL time.Duration
	PollInterval   time.Duration
	DustThreshold  float64
	MatchTolerance float64
}

type WithdrawalConfig struct {
	FeePercent   float64
	PollInterval time.Duration
}

type TelegramConfig struct {
	BotToken string
}

type RateLimitConfig struct {
	RequestsPerSecond int
	BurstSize         int
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  time.Duration(getEnvAsInt("READ_TIMEOUT", 10)) * time.Second,
			WriteTimeout: time.Duration(getEnvAsInt("WRITE_TIMEOUT", 10)) * time.Second,
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "./solstore.db"),
		},
		Solana: SolanaConfig{
			RPCURL:              getEnv("SOLANA_RPC_URL", "https://api.devnet.solana.com"),
			WalletEncryptionKey: getEnv("WALLET_ENCRYPTION_KEY", ""),
		},
		Price: PriceConfig{
			FeedURL:      getEnv("PRICE_FEED_URL", "https://api.coingecko.com/api/v3/simple/price?ids=solana&vs_currencies=eur"),
			CacheTTL:     time.Duration(getEnvAsInt("PRICE_CACHE_TTL", 60)) * time.Second,
			FallbackRate: getEnvAsFloat("PRICE_FALLBACK_RATE", 150.0),
		},
		Deposit: DepositConfig{
			MinAmountEUR:   getEnvAsFloat("MIN_DEPOSIT_EUR", 5.0),
			ReservationTTL: time.Duration(getEnvAsInt("DEPOSIT_TTL_MINUTES", 30)) * time.Minute,
			PollInterval:   time.Duration(getEnvAsInt("DEPOSIT_POLL_SECONDS", 30)) * time.Second,
			DustThreshold:  getEnvAsFloat("DEPOSIT_DUST_SOL", 0.0001),
			MatchTolerance: getEnvAsFloat("DEPOSIT_MATCH_TOLERANCE_SOL", 0.001),
		},
		Withdrawal: WithdrawalConfig{
			FeePercent:   getEnvAsFloat("WITHDRAWAL_FEE_PERCENT", 2.0),
			PollInterval: time.Duration(getEnvAsInt("WITHDRAWAL_POLL_SECONDS", 60)) * time.Second,
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("BOT_TOKEN", ""),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsInt("RATE_LIMIT_RPS", 10),
			BurstSize:         getEnvAsInt("RATE_LIMIT_BURST", 20),
		},
		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),
	}
}

func getEnv(key string, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultVal
}
