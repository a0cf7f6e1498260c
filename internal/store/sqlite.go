package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id      TEXT PRIMARY KEY,
	name    TEXT UNIQUE NOT NULL,
	digest  TEXT NOT NULL,
	balance REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_accounts_name ON accounts(name);
`

// SQLite is a Store backed by a local SQLite file. Conditional UPDATE
// statements inside transactions make the funds check and the debit a
// single unit.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) the database at path and runs
// the schema migration. The parent directory is created when missing.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Create(ctx context.Context, a Account) error {
	// The UNIQUE constraint on name is the arbiter; a pre-check SELECT
	// would race with a concurrent insert of the same name.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, digest, balance)
		VALUES (?, ?, ?, ?)
	`, a.ID, a.Name, a.Digest, a.Balance)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrNameTaken
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *SQLite) GetByID(ctx context.Context, id string) (*Account, error) {
	return s.get(ctx, `SELECT id, name, digest, balance FROM accounts WHERE id = ?`, id)
}

func (s *SQLite) GetByName(ctx context.Context, name string) (*Account, error) {
	return s.get(ctx, `SELECT id, name, digest, balance FROM accounts WHERE name = ?`, name)
}

func (s *SQLite) get(ctx context.Context, query, arg string) (*Account, error) {
	var a Account
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&a.ID, &a.Name, &a.Digest, &a.Balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query account: %w", err)
	}
	return &a, nil
}

func (s *SQLite) UpdateDigest(ctx context.Context, id, digest string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET digest = ? WHERE id = ?`, digest, id)
	if err != nil {
		return fmt.Errorf("update digest: %w", err)
	}
	return requireRow(res)
}

func (s *SQLite) Deposit(ctx context.Context, id string, amount float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET balance = balance + ? WHERE id = ?
	`, amount, id)
	if err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	return requireRow(res)
}

func (s *SQLite) Withdraw(ctx context.Context, id string, amount float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := debit(ctx, tx, id, amount); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) Transfer(ctx context.Context, senderID, receiverID string, amount float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = ?`, receiverID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check receiver: %w", err)
	}

	if err := debit(ctx, tx, senderID, amount); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE accounts SET balance = balance + ? WHERE id = ?
	`, amount, receiverID); err != nil {
		return fmt.Errorf("credit receiver: %w", err)
	}

	return tx.Commit()
}

// debit performs the conditional balance subtraction inside tx. A zero row
// count is disambiguated into ErrNotFound or ErrInsufficientFunds.
func debit(ctx context.Context, tx *sql.Tx, id string, amount float64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts SET balance = balance - ?
		WHERE id = ? AND balance >= ?
	`, amount, id, amount)
	if err != nil {
		return fmt.Errorf("debit: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check account: %w", err)
	}
	return ErrInsufficientFunds
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return requireRow(res)
}

func (s *SQLite) Close() error { return s.db.Close() }

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
