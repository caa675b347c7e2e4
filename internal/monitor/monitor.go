package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"solstore/internal/database"
	"solstore/internal/deposit"
	"solstore/internal/model"
	"solstore/internal/solana"
)

// Chain is the settlement-chain surface the monitor needs.
type Chain interface {
	GetBalance(ctx context.Context, address string) (float64, error)
	Transfer(ctx context.Context, encryptedKey, toAddress string, amountSOL float64) (string, error)
}

// Notifier delivers best-effort user notifications. Implementations must
// not block the monitor; failures are theirs to log.
type Notifier interface {
	DepositCredited(userID int64, eurAmount, solAmount float64)
	WithdrawalCompleted(userID int64, eurAmount, solAmount float64, txHash string)
	WithdrawalFailed(userID int64, refundEUR float64)
}

// Config carries the loop intervals and the withdrawal fee.
type Config struct {
	DepositInterval    time.Duration
	WithdrawalInterval time.Duration
	WithdrawalFee      float64 // percent
}

// Monitor runs the two background loops: the deposit poller that diffs
// on-chain balances against last known values, and the withdrawal
// processor that settles pending withdrawals on-chain.
type Monitor struct {
	db       *database.Database
	deposits *deposit.Service
	rates    deposit.RateSource
	chain    Chain
	notify   Notifier // nil disables notifications
	cfg      Config
}

func New(db *database.Database, deposits *deposit.Service, rates deposit.RateSource, chain Chain, notify Notifier, cfg Config) *Monitor {
	return &Monitor{
		db:       db,
		deposits: deposits,
		rates:    rates,
		chain:    chain,
		notify:   notify,
		cfg:      cfg,
	}
}

// Run blocks until ctx is cancelled, driving both loops.
func (m *Monitor) Run(ctx context.Context) {
	log.Println("monitor: starting deposit and withdrawal loops")

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		m.loop(ctx, m.cfg.DepositInterval, m.pollDeposits)
	}()
	go func() {
		defer wg.Done()
		m.loop(ctx, m.cfg.WithdrawalInterval, m.processWithdrawals)
	}()

	wg.Wait()
	log.Println("monitor: stopped")
}

func (m *Monitor) loop(ctx context.Context, interval time.Duration, pass func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		pass(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollDeposits is one sweep: expire stale reservations first, then walk
// every non-blocked user, read the chain balance and reconcile the delta.
// Errors are isolated per user; one bad wallet never aborts the pass.
func (m *Monitor) pollDeposits(ctx context.Context) {
	if _, err := m.deposits.ExpireStale(); err != nil {
		log.Printf("monitor: expiry sweep failed: %v", err)
		return
	}

	users, err := m.db.AllUnblockedUsers()
	if err != nil {
		log.Printf("monitor: failed to list users: %v", err)
		return
	}

	for i := range users {
		if ctx.Err() != nil {
			return
		}
		user := &users[i]

		balance, err := m.chain.GetBalance(ctx, user.WalletAddress)
		if err != nil {
			log.Printf("monitor: balance read failed for user %d: %v", user.ID, err)
			continue
		}

		result, err := m.deposits.Reconcile(ctx, user, balance)
		if err != nil {
			log.Printf("monitor: reconcile failed for user %d: %v", user.ID, err)
			continue
		}
		if result == nil {
			continue
		}

		if m.notify != nil {
			m.notify.DepositCredited(user.ID, result.EURAmount, result.SOLReceived)
		}
	}
}

// processWithdrawals settles pending withdrawals. The fee comes off the
// gross EUR amount, the remainder converts to SOL at the live rate at send
// time. Transient chain errors leave the row pending for the next tick;
// permanent errors fail the withdrawal and refund the gross amount.
func (m *Monitor) processWithdrawals(ctx context.Context) {
	pending, err := m.db.PendingWithdrawals()
	if err != nil {
		log.Printf("monitor: failed to list pending withdrawals: %v", err)
		return
	}

	for _, tx := range pending {
		if ctx.Err() != nil {
			return
		}
		m.settleWithdrawal(ctx, tx)
	}
}

func (m *Monitor) settleWithdrawal(ctx context.Context, tx model.Transaction) {
	user, err := m.db.GetUser(tx.UserID)
	if err != nil {
		log.Printf("monitor: user %d not found for withdrawal %d: %v", tx.UserID, tx.ID, err)
		return
	}

	netEUR := tx.AmountEUR * (1 - m.cfg.WithdrawalFee/100)
	rate := m.rates.Rate(ctx)
	amountSOL := netEUR / rate

	hash, err := m.chain.Transfer(ctx, user.WalletPrivateKey, tx.ToAddress, amountSOL)
	if err != nil {
		if solana.IsTransient(err) {
			log.Printf("monitor: transient error on withdrawal %d, retrying next tick: %v", tx.ID, err)
			return
		}

		log.Printf("monitor: withdrawal %d failed permanently, refunding %.2f EUR: %v",
			tx.ID, tx.AmountEUR, err)
		if err := m.db.FailWithdrawal(tx.ID, tx.UserID, tx.AmountEUR); err != nil {
			log.Printf("monitor: refund of withdrawal %d failed: %v", tx.ID, err)
			return
		}
		if m.notify != nil {
			m.notify.WithdrawalFailed(tx.UserID, tx.AmountEUR)
		}
		return
	}

	if err := m.db.CompleteWithdrawal(tx.ID, hash, amountSOL); err != nil {
		log.Printf("monitor: failed to mark withdrawal %d completed: %v", tx.ID, err)
		return
	}

	log.Printf("monitor: withdrawal %d settled: %.2f EUR = %.6f SOL to %s (tx %s)",
		tx.ID, netEUR, amountSOL, tx.ToAddress, hash)
	if m.notify != nil {
		m.notify.WithdrawalCompleted(tx.UserID, netEUR, amountSOL, hash)
	}
}
