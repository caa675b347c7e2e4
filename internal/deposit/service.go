package deposit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"solstore/internal/database"
	"solstore/internal/model"
)

var (
	// ErrAmountTooLow is returned when the requested EUR amount is below
	// the configured minimum.
	ErrAmountTooLow = errors.New("deposit amount below minimum")
	// ErrRequestActive is returned together with the existing request when
	// the user already has an open reservation.
	ErrRequestActive = errors.New("user already has an active deposit request")
)

// RateSource supplies the current SOL/EUR rate. It never fails; feed
// trouble degrades to stale or fallback data inside the source.
type RateSource interface {
	Rate(ctx context.Context) float64
}

// Config carries the deposit business parameters.
type Config struct {
	MinAmountEUR   float64
	ReservationTTL time.Duration
	DustThreshold  float64
	MatchTolerance float64
}

// Service manages deposit reservations and reconciles observed chain
// balance deltas into EUR credits.
type Service struct {
	db    *database.Database
	rates RateSource
	cfg   Config
}

func NewService(db *database.Database, rates RateSource, cfg Config) *Service {
	return &Service{db: db, rates: rates, cfg: cfg}
}

// CreateRequest opens a reservation: the current rate is frozen and the
// user gets the TTL window to send the computed SOL amount. If the user
// already has an active request it is returned alongside ErrRequestActive
// so the front-end can re-render it instead of opening a second one.
func (s *Service) CreateRequest(ctx context.Context, userID int64, eurAmount float64) (*model.DepositRequest, error) {
	if eurAmount < s.cfg.MinAmountEUR {
		return nil, fmt.Errorf("%w: minimum is %.2f EUR", ErrAmountTooLow, s.cfg.MinAmountEUR)
	}

	existing, err := s.db.ActiveDepositRequest(userID, time.Now())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, ErrRequestActive
	}

	rate := s.rates.Rate(ctx)
	solAmount := eurAmount / rate
	expiresAt := time.Now().Add(s.cfg.ReservationTTL)

	req, err := s.db.CreateDepositRequest(userID, eurAmount, solAmount, rate, expiresAt)
	if err != nil {
		return nil, err
	}

	log.Printf("deposit: created request #%d: %.2f EUR = %.6f SOL (rate %.2f) for user %d",
		req.ID, eurAmount, solAmount, rate, userID)
	return req, nil
}

// ActiveRequest returns the user's open reservation, or nil.
func (s *Service) ActiveRequest(userID int64) (*model.DepositRequest, error) {
	return s.db.ActiveDepositRequest(userID, time.Now())
}

// Cancel transitions a pending reservation to cancelled.
func (s *Service) Cancel(id int64) error {
	return s.db.CancelDepositRequest(id)
}

// ExpireStale sweeps pending reservations past their deadline. It runs
// before every reconciliation pass so a stale reservation can never be
// matched.
func (s *Service) ExpireStale() (int64, error) {
	count, err := s.db.ExpireStaleDepositRequests(time.Now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		log.Printf("deposit: expired %d stale deposit requests", count)
	}
	return count, nil
}

// History returns the user's most recent reservations.
func (s *Service) History(userID int64, limit int) ([]model.DepositRequest, error) {
	return s.db.DepositHistory(userID, limit)
}

// CreditResult describes a reconciled deposit.
type CreditResult struct {
	TransactionID int64
	RequestID     int64 // 0 when no reservation matched
	EURAmount     float64
	SOLReceived   float64
	ReservedRate  bool
}

// Reconcile converts the delta between the observed chain balance and the
// user's last known balance into an EUR credit. A delta within tolerance of
// the user's active reservation settles that reservation at its frozen
// rate; any other delta is credited at the live rate. The matching is by
// amount proximity only, so a transfer that coincidentally equals the
// reserved amount is indistinguishable from a true settlement.
//
// The credit, the audit record, the reservation completion and the
// last-known-balance advance commit in one storage transaction.
func (s *Service) Reconcile(ctx context.Context, user *model.User, chainBalance float64) (*CreditResult, error) {
	delta := chainBalance - user.WalletBalanceSOL
	if delta <= s.cfg.DustThreshold {
		return nil, nil
	}

	log.Printf("deposit: detected %.6f SOL inbound for user %d (balance %.6f)",
		delta, user.ID, chainBalance)

	active, err := s.db.ActiveDepositRequest(user.ID, time.Now())
	if err != nil {
		return nil, err
	}

	result := &CreditResult{SOLReceived: delta}

	if active != nil && math.Abs(delta-active.SOLAmount) < s.cfg.MatchTolerance {
		// Settle the reservation: the user is credited the EUR amount they
		// asked for, not the delta recomputed at today's rate.
		result.RequestID = active.ID
		result.EURAmount = active.EURAmount
		result.ReservedRate = true

		desc := fmt.Sprintf("Deposit: %.6f SOL = %.2f EUR (reserved rate %.2f)",
			delta, active.EURAmount, active.ReservedRate)
		result.TransactionID, err = s.db.CreditDeposit(user.ID, active.EURAmount, chainBalance, delta, desc, active.ID)
		if err != nil {
			return nil, err
		}

		log.Printf("deposit: settled request #%d for user %d at reserved rate %.2f",
			active.ID, user.ID, active.ReservedRate)
		return result, nil
	}

	rate := s.rates.Rate(ctx)
	result.EURAmount = delta * rate

	desc := fmt.Sprintf("Deposit: %.6f SOL = %.2f EUR (live rate %.2f)",
		delta, result.EURAmount, rate)
	result.TransactionID, err = s.db.CreditDeposit(user.ID, result.EURAmount, chainBalance, delta, desc, 0)
	if err != nil {
		return nil, err
	}

	log.Printf("deposit: credited %.2f EUR to user %d at live rate %.2f",
		result.EURAmount, user.ID, rate)
	return result, nil
}
