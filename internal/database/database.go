package database

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Typed storage errors the handlers translate to API responses.
var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotPending        = errors.New("request is not pending")
)

// Database wraps the SQLite connection. SQLite allows a single writer, so
// the pool is capped at one connection to keep balance updates serial.
type Database struct {
	db *sql.DB
}

// New opens the database at path and initializes the schema.
func New(path string) (*Database, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %v", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("error creating tables: %v", err)
	}

	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			username TEXT,
			wallet_address TEXT UNIQUE NOT NULL,
			wallet_private_key TEXT NOT NULL,
			balance_eur REAL NOT NULL DEFAULT 0,
			wallet_balance_sol REAL NOT NULL DEFAULT 0,
			referral_code TEXT UNIQUE,
			referred_by INTEGER,
			referral_earnings_eur REAL NOT NULL DEFAULT 0,
			total_referrals INTEGER NOT NULL DEFAULT 0,
			is_blocked INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (referred_by) REFERENCES users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS deposit_requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			eur_amount REAL NOT NULL,
			sol_amount REAL NOT NULL,
			reserved_rate REAL NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			completed_at INTEGER,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			tx_type TEXT NOT NULL,
			amount_eur REAL NOT NULL,
			amount_sol REAL NOT NULL DEFAULT 0,
			to_address TEXT,
			tx_hash TEXT,
			description TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at INTEGER NOT NULL,
			completed_at INTEGER,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deposit_requests_user_status
			ON deposit_requests(user_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user
			ON transactions(user_id, created_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query: %v\nQuery: %s", err, query)
		}
	}

	return nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// DB returns the underlying database connection.
func (d *Database) DB() *sql.DB {
	return d.db
}
