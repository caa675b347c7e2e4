package database

import (
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"time"

	"solstore/internal/model"
)

const userColumns = `id, username, wallet_address, wallet_private_key, balance_eur,
	wallet_balance_sol, referral_code, referred_by, referral_earnings_eur,
	total_referrals, is_blocked, created_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*model.User, error) {
	var (
		user       model.User
		username   sql.NullString
		refCode    sql.NullString
		referredBy sql.NullInt64
		blocked    int
		createdAt  int64
	)

	err := row.Scan(&user.ID, &username, &user.WalletAddress, &user.WalletPrivateKey,
		&user.BalanceEUR, &user.WalletBalanceSOL, &refCode, &referredBy,
		&user.ReferralEarningsEUR, &user.TotalReferrals, &blocked, &createdAt)
	if err != nil {
		return nil, err
	}

	user.Username = username.String
	user.ReferralCode = refCode.String
	if referredBy.Valid {
		id := referredBy.Int64
		user.ReferredBy = &id
	}
	user.IsBlocked = blocked != 0
	user.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &user, nil
}

// CreateUser creates a user with a freshly provisioned wallet. If the user
// already exists it is returned unchanged; the referrer link is only set at
// first registration.
func (d *Database) CreateUser(id int64, username, walletAddress, walletKey string, referredBy *int64) (*model.User, error) {
	existing, err := d.GetUser(id)
	if err != nil && err != ErrNotFound {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	tx, err := d.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO users (id, username, wallet_address, wallet_private_key,
			referral_code, referred_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, username, walletAddress, walletKey, newReferralCode(), referredBy, time.Now().Unix())
	if err != nil {
		return nil, err
	}

	if referredBy != nil {
		_, err = tx.Exec("UPDATE users SET total_referrals = total_referrals + 1 WHERE id = ?", *referredBy)
		if err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return d.GetUser(id)
}

func newReferralCode() string {
	buf := make([]byte, 8)
	rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// GetUser retrieves a user by Telegram ID.
func (d *Database) GetUser(id int64) (*model.User, error) {
	row := d.db.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ?", id)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserIDByReferralCode resolves a referral code to its owner.
func (d *Database) GetUserIDByReferralCode(code string) (int64, error) {
	var id int64
	err := d.db.QueryRow("SELECT id FROM users WHERE referral_code = ?", code).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AllUnblockedUsers returns every user the deposit poller should check.
func (d *Database) AllUnblockedUsers() ([]model.User, error) {
	rows, err := d.db.Query("SELECT " + userColumns + " FROM users WHERE is_blocked = 0")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// AddToBalance applies an additive EUR delta. The balance is never
// overwritten wholesale; concurrent credits from purchases, deposits and
// bonuses all go through additive updates.
func (d *Database) AddToBalance(userID int64, delta float64) error {
	res, err := d.db.Exec("UPDATE users SET balance_eur = balance_eur + ? WHERE id = ?", delta, userID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SetUserBlocked blocks or unblocks a user. Blocked users are skipped by
// the deposit poller.
func (d *Database) SetUserBlocked(id int64, blocked bool) error {
	res, err := d.db.Exec("UPDATE users SET is_blocked = ? WHERE id = ?", blocked, id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
