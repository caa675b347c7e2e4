package database

import (
	"database/sql"
	"time"

	"solstore/internal/model"
)

const depositColumns = `id, user_id, eur_amount, sol_amount, reserved_rate, status,
	created_at, expires_at, completed_at`

func scanDepositRequest(row interface{ Scan(...interface{}) error }) (*model.DepositRequest, error) {
	var (
		req         model.DepositRequest
		createdAt   int64
		expiresAt   int64
		completedAt sql.NullInt64
	)

	err := row.Scan(&req.ID, &req.UserID, &req.EURAmount, &req.SOLAmount,
		&req.ReservedRate, &req.Status, &createdAt, &expiresAt, &completedAt)
	if err != nil {
		return nil, err
	}

	req.CreatedAt = time.Unix(createdAt, 0).UTC()
	req.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0).UTC()
		req.CompletedAt = &t
	}
	return &req, nil
}

// CreateDepositRequest persists a new pending reservation. The rate and the
// derived SOL amount are frozen here and never updated.
func (d *Database) CreateDepositRequest(userID int64, eurAmount, solAmount, reservedRate float64, expiresAt time.Time) (*model.DepositRequest, error) {
	res, err := d.db.Exec(`
		INSERT INTO deposit_requests (user_id, eur_amount, sol_amount, reserved_rate,
			status, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, eurAmount, solAmount, reservedRate,
		model.DepositStatusPending, time.Now().Unix(), expiresAt.Unix())
	if err != nil {
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return d.GetDepositRequest(id)
}

// GetDepositRequest gets a deposit request by ID.
func (d *Database) GetDepositRequest(id int64) (*model.DepositRequest, error) {
	row := d.db.QueryRow("SELECT "+depositColumns+" FROM deposit_requests WHERE id = ?", id)
	req, err := scanDepositRequest(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

// ActiveDepositRequest returns the newest pending, not yet expired request
// for the user, or nil if there is none. Expired-but-still-pending rows are
// filtered here even before the sweep has transitioned them.
func (d *Database) ActiveDepositRequest(userID int64, now time.Time) (*model.DepositRequest, error) {
	row := d.db.QueryRow(`
		SELECT `+depositColumns+` FROM deposit_requests
		WHERE user_id = ? AND status = ? AND expires_at > ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		userID, model.DepositStatusPending, now.Unix())

	req, err := scanDepositRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

// CompleteDepositRequest transitions pending -> completed. Rows in any
// other status are left untouched and ErrNotPending is returned.
func (d *Database) CompleteDepositRequest(id int64) error {
	res, err := d.db.Exec(`
		UPDATE deposit_requests SET status = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		model.DepositStatusCompleted, time.Now().Unix(), id, model.DepositStatusPending)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotPending
	}
	return nil
}

// ExpireStaleDepositRequests transitions every pending request whose
// deadline has passed to expired and returns the count. Running it twice
// in a row transitions nothing the second time.
func (d *Database) ExpireStaleDepositRequests(now time.Time) (int64, error) {
	res, err := d.db.Exec(`
		UPDATE deposit_requests SET status = ?
		WHERE status = ? AND expires_at <= ?`,
		model.DepositStatusExpired, model.DepositStatusPending, now.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CancelDepositRequest transitions pending -> cancelled.
func (d *Database) CancelDepositRequest(id int64) error {
	res, err := d.db.Exec(`
		UPDATE deposit_requests SET status = ?
		WHERE id = ? AND status = ?`,
		model.DepositStatusCancelled, id, model.DepositStatusPending)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotPending
	}
	return nil
}

// DepositHistory returns the user's most recent reservations.
func (d *Database) DepositHistory(userID int64, limit int) ([]model.DepositRequest, error) {
	rows, err := d.db.Query(`
		SELECT `+depositColumns+` FROM deposit_requests
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []model.DepositRequest
	for rows.Next() {
		req, err := scanDepositRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *req)
	}
	return reqs, rows.Err()
}
