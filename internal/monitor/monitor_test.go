package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"solstore/internal/database"
	"solstore/internal/deposit"
	"solstore/internal/model"

	"github.com/stretchr/testify/require"
)

type staticRates struct {
	rate float64
}

func (s *staticRates) Rate(ctx context.Context) float64 { return s.rate }

type transferCall struct {
	to  string
	sol float64
}

type fakeChain struct {
	mu          sync.Mutex
	balances    map[string]float64
	balanceErr  map[string]error
	transferErr error
	transfers   []transferCall
}

func (f *fakeChain) GetBalance(ctx context.Context, address string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.balanceErr[address]; ok {
		return 0, err
	}
	return f.balances[address], nil
}

func (f *fakeChain) Transfer(ctx context.Context, encryptedKey, toAddress string, amountSOL float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transferErr != nil {
		return "", f.transferErr
	}
	f.transfers = append(f.transfers, transferCall{to: toAddress, sol: amountSOL})
	return "sig-test", nil
}

type fakeNotifier struct {
	deposits    []int64
	withdrawals []int64
	failures    []int64
}

func (f *fakeNotifier) DepositCredited(userID int64, eur, sol float64) {
	f.deposits = append(f.deposits, userID)
}

func (f *fakeNotifier) WithdrawalCompleted(userID int64, eur, sol float64, txHash string) {
	f.withdrawals = append(f.withdrawals, userID)
}

func (f *fakeNotifier) WithdrawalFailed(userID int64, refundEUR float64) {
	f.failures = append(f.failures, userID)
}

func newTestMonitor(t *testing.T, rate float64) (*Monitor, *database.Database, *fakeChain, *fakeNotifier) {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rates := &staticRates{rate: rate}
	deposits := deposit.NewService(db, rates, deposit.Config{
		MinAmountEUR:   5.0,
		ReservationTTL: 30 * time.Minute,
		DustThreshold:  0.0001,
		MatchTolerance: 0.001,
	})

	chain := &fakeChain{
		balances:   make(map[string]float64),
		balanceErr: make(map[string]error),
	}
	notifier := &fakeNotifier{}

	m := New(db, deposits, rates, chain, notifier, Config{
		DepositInterval:    time.Second,
		WithdrawalInterval: time.Second,
		WithdrawalFee:      2.0,
	})
	return m, db, chain, notifier
}

func newTestUser(t *testing.T, db *database.Database, id int64) *model.User {
	t.Helper()
	user, err := db.CreateUser(id, "tester", fmt.Sprintf("addr-%d", id), "enc-key", nil)
	require.NoError(t, err)
	return user
}

func TestPollDepositsCreditsDetectedDeltas(t *testing.T) {
	m, db, chain, notifier := newTestMonitor(t, 100.0)
	a := newTestUser(t, db, 1)
	b := newTestUser(t, db, 2)

	chain.balances[a.WalletAddress] = 0.5
	chain.balances[b.WalletAddress] = 0.25

	m.pollDeposits(context.Background())

	gotA, err := db.GetUser(a.ID)
	require.NoError(t, err)
	require.InDelta(t, 50.0, gotA.BalanceEUR, 1e-9)
	require.Equal(t, 0.5, gotA.WalletBalanceSOL)

	gotB, err := db.GetUser(b.ID)
	require.NoError(t, err)
	require.InDelta(t, 25.0, gotB.BalanceEUR, 1e-9)

	require.ElementsMatch(t, []int64{1, 2}, notifier.deposits)
}

func TestPollDepositsDoesNotDoubleCount(t *testing.T) {
	m, db, chain, _ := newTestMonitor(t, 100.0)
	user := newTestUser(t, db, 1)

	chain.balances[user.WalletAddress] = 0.5

	m.pollDeposits(context.Background())
	// Same chain balance on the next tick: the advanced last-known balance
	// yields a zero delta.
	m.pollDeposits(context.Background())

	got, err := db.GetUser(user.ID)
	require.NoError(t, err)
	require.InDelta(t, 50.0, got.BalanceEUR, 1e-9)

	txs, err := db.UserTransactions(user.ID, model.TxTypeDeposit, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
}

func TestPollDepositsIsolatesPerUserFailures(t *testing.T) {
	m, db, chain, _ := newTestMonitor(t, 100.0)
	broken := newTestUser(t, db, 1)
	healthy := newTestUser(t, db, 2)

	chain.balanceErr[broken.WalletAddress] = errors.New("invalid address")
	chain.balances[healthy.WalletAddress] = 0.1

	m.pollDeposits(context.Background())

	got, err := db.GetUser(healthy.ID)
	require.NoError(t, err)
	require.InDelta(t, 10.0, got.BalanceEUR, 1e-9)
}

func TestPollDepositsSweepsBeforeMatching(t *testing.T) {
	m, db, chain, _ := newTestMonitor(t, 100.0)
	user := newTestUser(t, db, 1)

	// Reservation at 150 EUR/SOL whose window has closed before the
	// transfer lands: the sweep runs first, so the live rate applies.
	req, err := db.CreateDepositRequest(user.ID, 20.0, 20.0/150.0, 150.0, time.Now().Add(-time.Second))
	require.NoError(t, err)

	chain.balances[user.WalletAddress] = req.SOLAmount

	m.pollDeposits(context.Background())

	stored, err := db.GetDepositRequest(req.ID)
	require.NoError(t, err)
	require.Equal(t, model.DepositStatusExpired, stored.Status)

	got, err := db.GetUser(user.ID)
	require.NoError(t, err)
	require.InDelta(t, req.SOLAmount*100.0, got.BalanceEUR, 1e-9)
}

func TestProcessWithdrawalsSettlesPending(t *testing.T) {
	m, db, chain, notifier := newTestMonitor(t, 100.0)
	user := newTestUser(t, db, 1)
	require.NoError(t, db.AddToBalance(user.ID, 100.0))

	tx, err := db.CreateWithdrawal(user.ID, 50.0, "DestAddr111", "withdrawal")
	require.NoError(t, err)

	m.processWithdrawals(context.Background())

	// 2% fee off €50, converted at 100 EUR/SOL.
	require.Len(t, chain.transfers, 1)
	require.Equal(t, "DestAddr111", chain.transfers[0].to)
	require.InDelta(t, 0.49, chain.transfers[0].sol, 1e-9)

	done, err := db.GetTransaction(tx.ID)
	require.NoError(t, err)
	require.Equal(t, model.TxStatusCompleted, done.Status)
	require.Equal(t, "sig-test", done.TxHash)

	require.Equal(t, []int64{1}, notifier.withdrawals)
}

func TestProcessWithdrawalsRetriesTransientErrors(t *testing.T) {
	m, db, chain, notifier := newTestMonitor(t, 100.0)
	user := newTestUser(t, db, 1)
	require.NoError(t, db.AddToBalance(user.ID, 100.0))

	tx, err := db.CreateWithdrawal(user.ID, 50.0, "DestAddr111", "withdrawal")
	require.NoError(t, err)

	chain.transferErr = &net.DNSError{Err: "timeout", IsTimeout: true}
	m.processWithdrawals(context.Background())

	// Still pending; no refund, no failure notification.
	stored, err := db.GetTransaction(tx.ID)
	require.NoError(t, err)
	require.Equal(t, model.TxStatusPending, stored.Status)
	require.Empty(t, notifier.failures)

	got, err := db.GetUser(user.ID)
	require.NoError(t, err)
	require.Equal(t, 50.0, got.BalanceEUR)

	// Next tick after the network recovers.
	chain.transferErr = nil
	m.processWithdrawals(context.Background())

	stored, err = db.GetTransaction(tx.ID)
	require.NoError(t, err)
	require.Equal(t, model.TxStatusCompleted, stored.Status)
}

func TestProcessWithdrawalsRefundsOnPermanentFailure(t *testing.T) {
	m, db, chain, notifier := newTestMonitor(t, 100.0)
	user := newTestUser(t, db, 1)
	require.NoError(t, db.AddToBalance(user.ID, 100.0))

	tx, err := db.CreateWithdrawal(user.ID, 50.0, "not-a-real-address", "withdrawal")
	require.NoError(t, err)

	chain.transferErr = errors.New("invalid address")
	m.processWithdrawals(context.Background())

	stored, err := db.GetTransaction(tx.ID)
	require.NoError(t, err)
	require.Equal(t, model.TxStatusFailed, stored.Status)

	got, err := db.GetUser(user.ID)
	require.NoError(t, err)
	require.Equal(t, 100.0, got.BalanceEUR)

	require.Equal(t, []int64{1}, notifier.failures)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	m, _, _, _ := newTestMonitor(t, 100.0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop on context cancellation")
	}
}
