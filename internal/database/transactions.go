package database

import (
	"database/sql"
	"time"

	"solstore/internal/model"
)

const txColumns = `id, user_id, tx_type, amount_eur, amount_sol, to_address, tx_hash,
	description, status, created_at, completed_at`

func scanTransaction(row interface{ Scan(...interface{}) error }) (*model.Transaction, error) {
	var (
		t           model.Transaction
		toAddress   sql.NullString
		txHash      sql.NullString
		description sql.NullString
		createdAt   int64
		completedAt sql.NullInt64
	)

	err := row.Scan(&t.ID, &t.UserID, &t.TxType, &t.AmountEUR, &t.AmountSOL,
		&toAddress, &txHash, &description, &t.Status, &createdAt, &completedAt)
	if err != nil {
		return nil, err
	}

	t.ToAddress = toAddress.String
	t.TxHash = txHash.String
	t.Description = description.String
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	if completedAt.Valid {
		ts := time.Unix(completedAt.Int64, 0).UTC()
		t.CompletedAt = &ts
	}
	return &t, nil
}

func insertTransaction(tx *sql.Tx, t *model.Transaction) (int64, error) {
	now := time.Now().Unix()
	var completedAt interface{}
	if t.Status == model.TxStatusCompleted {
		completedAt = now
	}

	res, err := tx.Exec(`
		INSERT INTO transactions (user_id, tx_type, amount_eur, amount_sol,
			to_address, tx_hash, description, status, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, t.TxType, t.AmountEUR, t.AmountSOL,
		t.ToAddress, t.TxHash, t.Description, t.Status, now, completedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetTransaction gets a transaction by ID.
func (d *Database) GetTransaction(id int64) (*model.Transaction, error) {
	row := d.db.QueryRow("SELECT "+txColumns+" FROM transactions WHERE id = ?", id)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// UserTransactions returns the user's most recent transactions, optionally
// filtered by type.
func (d *Database) UserTransactions(userID int64, txType model.TxType, limit int) ([]model.Transaction, error) {
	query := "SELECT " + txColumns + " FROM transactions WHERE user_id = ?"
	args := []interface{}{userID}
	if txType != "" {
		query += " AND tx_type = ?"
		args = append(args, txType)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// PendingWithdrawals returns withdrawal transactions awaiting an on-chain
// transfer, oldest first.
func (d *Database) PendingWithdrawals() ([]model.Transaction, error) {
	rows, err := d.db.Query(`
		SELECT `+txColumns+` FROM transactions
		WHERE tx_type = ? AND status = ?
		ORDER BY created_at ASC, id ASC`,
		model.TxTypeWithdrawal, model.TxStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// CountCompletedPurchases reports how many purchases the user has made.
// Used to detect the first purchase for the referral bonus.
func (d *Database) CountCompletedPurchases(userID int64) (int, error) {
	var count int
	err := d.db.QueryRow(`
		SELECT COUNT(*) FROM transactions
		WHERE user_id = ? AND tx_type = ? AND status = ?`,
		userID, model.TxTypePurchase, model.TxStatusCompleted).Scan(&count)
	return count, err
}

// CreditDeposit records a reconciled deposit in a single transaction:
// additive EUR credit, the audit record, the advance of the last known
// on-chain balance, and (when the delta matched a reservation) the
// completion of that reservation. The balance pointer only moves once the
// credit is durable, so a crash mid-way re-detects the delta instead of
// losing it.
func (d *Database) CreditDeposit(userID int64, eurAmount, newChainBalance float64, solReceived float64, description string, depositID int64) (int64, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE users SET balance_eur = balance_eur + ?, wallet_balance_sol = ?
		WHERE id = ?`,
		eurAmount, newChainBalance, userID)
	if err != nil {
		return 0, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if rows == 0 {
		return 0, ErrNotFound
	}

	if depositID != 0 {
		res, err = tx.Exec(`
			UPDATE deposit_requests SET status = ?, completed_at = ?
			WHERE id = ? AND status = ?`,
			model.DepositStatusCompleted, time.Now().Unix(), depositID, model.DepositStatusPending)
		if err != nil {
			return 0, err
		}
		rows, err = res.RowsAffected()
		if err != nil {
			return 0, err
		}
		if rows == 0 {
			return 0, ErrNotPending
		}
	}

	txID, err := insertTransaction(tx, &model.Transaction{
		UserID:      userID,
		TxType:      model.TxTypeDeposit,
		AmountEUR:   eurAmount,
		AmountSOL:   solReceived,
		Description: description,
		Status:      model.TxStatusCompleted,
	})
	if err != nil {
		return 0, err
	}

	return txID, tx.Commit()
}

// CreatePurchase debits the balance and appends the purchase record
// atomically. The debit is guarded by the current balance so a concurrent
// spend cannot take the account negative.
func (d *Database) CreatePurchase(userID int64, amountEUR float64, description string) (*model.Transaction, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE users SET balance_eur = balance_eur - ?
		WHERE id = ? AND balance_eur >= ?`,
		amountEUR, userID, amountEUR)
	if err != nil {
		return nil, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrInsufficientFunds
	}

	txID, err := insertTransaction(tx, &model.Transaction{
		UserID:      userID,
		TxType:      model.TxTypePurchase,
		AmountEUR:   amountEUR,
		Description: description,
		Status:      model.TxStatusCompleted,
	})
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return d.GetTransaction(txID)
}

// CreateWithdrawal debits the gross EUR amount and appends a pending
// withdrawal the monitor later settles on-chain. AmountEUR holds the gross
// debit so a failed withdrawal refunds exactly what was taken; the fee is
// applied when the transfer is sent.
func (d *Database) CreateWithdrawal(userID int64, grossEUR float64, toAddress, description string) (*model.Transaction, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE users SET balance_eur = balance_eur - ?
		WHERE id = ? AND balance_eur >= ?`,
		grossEUR, userID, grossEUR)
	if err != nil {
		return nil, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrInsufficientFunds
	}

	txID, err := insertTransaction(tx, &model.Transaction{
		UserID:      userID,
		TxType:      model.TxTypeWithdrawal,
		AmountEUR:   grossEUR,
		ToAddress:   toAddress,
		Description: description,
		Status:      model.TxStatusPending,
	})
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return d.GetTransaction(txID)
}

// CompleteWithdrawal marks a pending withdrawal as settled on-chain.
func (d *Database) CompleteWithdrawal(id int64, txHash string, amountSOL float64) error {
	res, err := d.db.Exec(`
		UPDATE transactions SET status = ?, tx_hash = ?, amount_sol = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		model.TxStatusCompleted, txHash, amountSOL, time.Now().Unix(), id, model.TxStatusPending)
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

// FailWithdrawal marks a pending withdrawal failed and refunds the gross
// EUR amount in the same transaction.
func (d *Database) FailWithdrawal(id, userID int64, refundEUR float64) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE transactions SET status = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		model.TxStatusFailed, time.Now().Unix(), id, model.TxStatusPending)
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

	_, err = tx.Exec("UPDATE users SET balance_eur = balance_eur + ? WHERE id = ?", refundEUR, userID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// AddReferralBonus credits the referrer's balance and earnings counter and
// appends the bonus record atomically.
func (d *Database) AddReferralBonus(referrerID, referredID int64, amountEUR float64, description string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE users SET balance_eur = balance_eur + ?,
			referral_earnings_eur = referral_earnings_eur + ?
		WHERE id = ?`,
		amountEUR, amountEUR, referrerID)
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

	_, err = insertTransaction(tx, &model.Transaction{
		UserID:      referrerID,
		TxType:      model.TxTypeReferralBonus,
		AmountEUR:   amountEUR,
		Description: description,
		Status:      model.TxStatusCompleted,
	})
	if err != nil {
		return err
	}

	return tx.Commit()
}

// AdjustBalance applies an admin additive correction with an audit record.
// Negative deltas are allowed and may take the balance negative; this is an
// explicit admin action, not a user spend.
func (d *Database) AdjustBalance(userID int64, deltaEUR float64, reason string) (*model.Transaction, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.Exec("UPDATE users SET balance_eur = balance_eur + ? WHERE id = ?", deltaEUR, userID)
	if err != nil {
		return nil, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrNotFound
	}

	txID, err := insertTransaction(tx, &model.Transaction{
		UserID:      userID,
		TxType:      model.TxTypeAdminAdjust,
		AmountEUR:   deltaEUR,
		Description: reason,
		Status:      model.TxStatusCompleted,
	})
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return d.GetTransaction(txID)
}
