package deposit

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"solstore/internal/database"
	"solstore/internal/model"

	"github.com/stretchr/testify/require"
)

// staticRates is a rate source pinned to a settable value.
type staticRates struct {
	rate float64
}

func (s *staticRates) Rate(ctx context.Context) float64 { return s.rate }

func testConfig() Config {
	return Config{
		MinAmountEUR:   5.0,
		ReservationTTL: 30 * time.Minute,
		DustThreshold:  0.0001,
		MatchTolerance: 0.001,
	}
}

func newTestService(t *testing.T, rate float64) (*Service, *database.Database, *staticRates) {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rates := &staticRates{rate: rate}
	return NewService(db, rates, testConfig()), db, rates
}

func newTestUser(t *testing.T, db *database.Database, id int64) *model.User {
	t.Helper()
	user, err := db.CreateUser(id, "tester", fmt.Sprintf("addr-%d", id), "enc-key", nil)
	require.NoError(t, err)
	return user
}

func TestCreateRequestFreezesRate(t *testing.T) {
	svc, db, _ := newTestService(t, 150.0)
	user := newTestUser(t, db, 1)

	before := time.Now()
	req, err := svc.CreateRequest(context.Background(), user.ID, 20.0)
	require.NoError(t, err)

	require.Equal(t, 20.0, req.EURAmount)
	require.Equal(t, 150.0, req.ReservedRate)
	require.InDelta(t, 20.0/150.0, req.SOLAmount, 1e-9)
	require.Equal(t, model.DepositStatusPending, req.Status)
	require.WithinDuration(t, before.Add(30*time.Minute), req.ExpiresAt, 5*time.Second)
}

func TestCreateRequestRejectsBelowMinimum(t *testing.T) {
	svc, db, _ := newTestService(t, 150.0)
	user := newTestUser(t, db, 1)

	_, err := svc.CreateRequest(context.Background(), user.ID, 4.99)
	require.ErrorIs(t, err, ErrAmountTooLow)

	history, err := svc.History(user.ID, 10)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestCreateRequestSurfacesExistingActiveRequest(t *testing.T) {
	svc, db, _ := newTestService(t, 150.0)
	user := newTestUser(t, db, 1)

	first, err := svc.CreateRequest(context.Background(), user.ID, 20.0)
	require.NoError(t, err)

	second, err := svc.CreateRequest(context.Background(), user.ID, 50.0)
	require.ErrorIs(t, err, ErrRequestActive)
	require.Equal(t, first.ID, second.ID, "the existing request is returned, no second row")

	history, err := svc.History(user.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestActiveRequestIgnoresExpiredPendingRows(t *testing.T) {
	svc, db, _ := newTestService(t, 150.0)
	user := newTestUser(t, db, 1)

	// Simulate sweep lag: pending in storage, deadline already passed.
	_, err := db.CreateDepositRequest(user.ID, 20.0, 0.1333, 150.0, time.Now().Add(-time.Second))
	require.NoError(t, err)

	active, err := svc.ActiveRequest(user.ID)
	require.NoError(t, err)
	require.Nil(t, active)
}

func TestReconcileSettlesReservationAtReservedRate(t *testing.T) {
	svc, db, rates := newTestService(t, 150.0)
	user := newTestUser(t, db, 1)

	req, err := svc.CreateRequest(context.Background(), user.ID, 20.0)
	require.NoError(t, err)

	// Rate moves after the reservation; the credit must not follow it.
	rates.rate = 80.0

	result, err := svc.Reconcile(context.Background(), user, req.SOLAmount)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.True(t, result.ReservedRate)
	require.Equal(t, req.ID, result.RequestID)
	require.Equal(t, 20.0, result.EURAmount)

	got, err := db.GetUser(user.ID)
	require.NoError(t, err)
	require.Equal(t, 20.0, got.BalanceEUR)
	require.Equal(t, req.SOLAmount, got.WalletBalanceSOL)

	stored, err := db.GetDepositRequest(req.ID)
	require.NoError(t, err)
	require.Equal(t, model.DepositStatusCompleted, stored.Status)
}

func TestReconcileWithinToleranceCreditsRequestedAmount(t *testing.T) {
	svc, db, _ := newTestService(t, 150.0)
	user := newTestUser(t, db, 1)

	req, err := svc.CreateRequest(context.Background(), user.ID, 20.0)
	require.NoError(t, err)
	require.InDelta(t, 0.13333, req.SOLAmount, 1e-4)

	// User rounds to 0.1333 SOL; still within the 0.001 tolerance, so the
	// credit is the requested EUR amount, not delta times the live rate.
	result, err := svc.Reconcile(context.Background(), user, 0.1333)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.True(t, result.ReservedRate)
	require.Equal(t, 20.0, result.EURAmount)
}

func TestReconcileWithoutReservationUsesLiveRate(t *testing.T) {
	svc, db, rates := newTestService(t, 150.0)
	user := newTestUser(t, db, 1)

	rates.rate = 120.0

	result, err := svc.Reconcile(context.Background(), user, 0.5)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.False(t, result.ReservedRate)
	require.Equal(t, int64(0), result.RequestID)
	require.InDelta(t, 0.5*120.0, result.EURAmount, 1e-9)

	got, err := db.GetUser(user.ID)
	require.NoError(t, err)
	require.InDelta(t, 60.0, got.BalanceEUR, 1e-9)
	require.Equal(t, 0.5, got.WalletBalanceSOL)
}

func TestReconcileMismatchedAmountFallsThroughToLiveRate(t *testing.T) {
	svc, db, rates := newTestService(t, 150.0)
	user := newTestUser(t, db, 1)

	req, err := svc.CreateRequest(context.Background(), user.ID, 20.0)
	require.NoError(t, err)

	rates.rate = 100.0

	// Transfer is 0.01 SOL off the reserved amount: no match.
	delta := req.SOLAmount + 0.01
	result, err := svc.Reconcile(context.Background(), user, delta)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.False(t, result.ReservedRate)
	require.InDelta(t, delta*100.0, result.EURAmount, 1e-9)

	// The reservation stays open for a later exact transfer.
	stored, err := db.GetDepositRequest(req.ID)
	require.NoError(t, err)
	require.Equal(t, model.DepositStatusPending, stored.Status)
}

func TestReconcileIgnoresDust(t *testing.T) {
	svc, db, _ := newTestService(t, 150.0)
	user := newTestUser(t, db, 1)

	result, err := svc.Reconcile(context.Background(), user, 0.00005)
	require.NoError(t, err)
	require.Nil(t, result)

	got, err := db.GetUser(user.ID)
	require.NoError(t, err)
	require.Zero(t, got.BalanceEUR)
	require.Zero(t, got.WalletBalanceSOL)

	txs, err := db.UserTransactions(user.ID, model.TxTypeDeposit, 10)
	require.NoError(t, err)
	require.Empty(t, txs)
}

func TestExpiredReservationFallsThroughToLiveRate(t *testing.T) {
	svc, db, rates := newTestService(t, 150.0)
	user := newTestUser(t, db, 1)

	// Reservation created and left to rot past its deadline.
	req, err := db.CreateDepositRequest(user.ID, 20.0, 20.0/150.0, 150.0, time.Now().Add(-time.Second))
	require.NoError(t, err)

	count, err := svc.ExpireStale()
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	rates.rate = 100.0

	// The matching transfer arrives late: live rate applies.
	result, err := svc.Reconcile(context.Background(), user, req.SOLAmount)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.False(t, result.ReservedRate)
	require.InDelta(t, req.SOLAmount*100.0, result.EURAmount, 1e-9)

	stored, err := db.GetDepositRequest(req.ID)
	require.NoError(t, err)
	require.Equal(t, model.DepositStatusExpired, stored.Status)
}

// The match is by amount proximity only: a transfer that coincidentally
// lands within tolerance of an open reservation settles it. There is no
// memo or reference binding a transfer to a reservation, so this cannot be
// told apart from a genuine settlement.
func TestReconcileCoincidentalAmountSettlesReservation(t *testing.T) {
	svc, db, _ := newTestService(t, 150.0)
	user := newTestUser(t, db, 1)

	req, err := svc.CreateRequest(context.Background(), user.ID, 20.0)
	require.NoError(t, err)

	result, err := svc.Reconcile(context.Background(), user, req.SOLAmount+0.0005)
	require.NoError(t, err)
	require.True(t, result.ReservedRate)
	require.Equal(t, req.ID, result.RequestID)
}

func TestEndToEndDepositScenario(t *testing.T) {
	svc, db, _ := newTestService(t, 150.0)
	user := newTestUser(t, db, 1)

	// User requests a €20 top-up at 150 EUR/SOL.
	req, err := svc.CreateRequest(context.Background(), user.ID, 20.0)
	require.NoError(t, err)
	require.InDelta(t, 0.1333, req.SOLAmount, 1e-3)
	require.WithinDuration(t, time.Now().Add(30*time.Minute), req.ExpiresAt, 5*time.Second)

	// They send exactly the displayed amount within the window.
	result, err := svc.Reconcile(context.Background(), user, 0.1333)
	require.NoError(t, err)
	require.Equal(t, 20.0, result.EURAmount)

	got, err := db.GetUser(user.ID)
	require.NoError(t, err)
	require.Equal(t, 20.0, got.BalanceEUR)

	txs, err := db.UserTransactions(user.ID, model.TxTypeDeposit, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, model.TxStatusCompleted, txs[0].Status)
	require.Equal(t, 20.0, txs[0].AmountEUR)
}
