package model

import "time"

// Deposit request statuses. A request moves pending -> completed, expired
// or cancelled exactly once and never backward. Rows are kept as an audit
// trail and never deleted.
const (
	DepositStatusPending   = "pending"
	DepositStatusCompleted = "completed"
	DepositStatusExpired   = "expired"
	DepositStatusCancelled = "cancelled"
)

// DepositRequest is a single EUR top-up reservation. ReservedRate is the
// SOL/EUR rate frozen at creation; SOLAmount = EURAmount / ReservedRate and
// is immutable once written.
type DepositRequest struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	EURAmount    float64    `json:"eur_amount"`
	SOLAmount    float64    `json:"sol_amount"`
	ReservedRate float64    `json:"reserved_rate"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Active reports whether the request can still be matched against an
// inbound transfer. Readers must not rely on the expiry sweep having run.
func (d *DepositRequest) Active(now time.Time) bool {
	return d.Status == DepositStatusPending && d.ExpiresAt.After(now)
}

// CreateDepositRequest is the request body for opening a reservation.
type CreateDepositRequest struct {
	AmountEUR float64 `json:"amount_eur" binding:"required"`
}

// DepositResponse is what the front-end renders: the exact SOL amount to
// send, where to send it, and the reservation deadline.
type DepositResponse struct {
	ID            int64     `json:"id"`
	EURAmount     float64   `json:"eur_amount"`
	SOLAmount     float64   `json:"sol_amount"`
	ReservedRate  float64   `json:"reserved_rate"`
	Status        string    `json:"status"`
	WalletAddress string    `json:"wallet_address"`
	ExpiresAt     time.Time `json:"expires_at"`
}
