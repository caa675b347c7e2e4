package model

import (
	"time"
)

// User is a storefront account backed by a dedicated Solana deposit wallet.
// BalanceEUR is the spendable balance; WalletBalanceSOL is only the last
// on-chain balance the monitor observed and is never spendable directly.
type User struct {
	ID                  int64     `json:"id"`
	Username            string    `json:"username,omitempty"`
	WalletAddress       string    `json:"wallet_address"`
	WalletPrivateKey    string    `json:"-"`
	BalanceEUR          float64   `json:"balance_eur"`
	WalletBalanceSOL    float64   `json:"wallet_balance_sol"`
	ReferralCode        string    `json:"referral_code,omitempty"`
	ReferredBy          *int64    `json:"referred_by,omitempty"`
	ReferralEarningsEUR float64   `json:"referral_earnings_eur"`
	TotalReferrals      int       `json:"total_referrals"`
	IsBlocked           bool      `json:"is_blocked"`
	CreatedAt           time.Time `json:"created_at"`
}

// TxType classifies balance-affecting events.
type TxType string

const (
	TxTypeDeposit       TxType = "deposit"
	TxTypeWithdrawal    TxType = "withdrawal"
	TxTypePurchase      TxType = "purchase"
	TxTypeReferralBonus TxType = "referral_bonus"
	TxTypeAdminAdjust   TxType = "admin_adjust"
)

// Transaction statuses.
const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
)

// Transaction is an append-only audit record for every balance change.
// Completed rows are never mutated again.
type Transaction struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	TxType      TxType     `json:"tx_type"`
	AmountEUR   float64    `json:"amount_eur"`
	AmountSOL   float64    `json:"amount_sol,omitempty"`
	ToAddress   string     `json:"to_address,omitempty"`
	TxHash      string     `json:"tx_hash,omitempty"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Response is the standard API envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// CreateUserRequest registers a Telegram user and provisions a wallet.
type CreateUserRequest struct {
	ID           int64  `json:"id" binding:"required"`
	Username     string `json:"username"`
	ReferralCode string `json:"referral_code"`
}

// WithdrawRequest asks to send EUR (converted to SOL at the live rate,
// minus the service fee) to an external Solana address.
type WithdrawRequest struct {
	AmountEUR float64 `json:"amount_eur" binding:"required,gt=0"`
	ToAddress string  `json:"to_address" binding:"required"`
}

// PurchaseRequest debits the EUR balance for a storefront purchase.
type PurchaseRequest struct {
	AmountEUR   float64 `json:"amount_eur" binding:"required,gt=0"`
	Description string  `json:"description"`
}

// AdjustBalanceRequest is the admin-only additive balance correction.
type AdjustBalanceRequest struct {
	DeltaEUR float64 `json:"delta_eur" binding:"required"`
	Reason   string  `json:"reason"`
}

// RateLimitConfig controls the per-IP token bucket.
type RateLimitConfig struct {
	RequestsPerSecond int
	BurstSize         int
}
