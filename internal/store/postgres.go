package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id      TEXT PRIMARY KEY,
	name    TEXT UNIQUE NOT NULL,
	digest  TEXT NOT NULL,
	balance DOUBLE PRECISION NOT NULL DEFAULT 0
);
`

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	maxTxRetries           = 3
)

// Postgres is a Store backed by a PostgreSQL pool. Balance mutations take
// row locks with SELECT ... FOR UPDATE; a transfer acquires both locks in
// lexicographic id order so opposing transfers cannot deadlock.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and runs the schema migration.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres schema: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Create(ctx context.Context, a Account) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO accounts (id, name, digest, balance)
		VALUES ($1, $2, $3, $4)
	`, a.ID, a.Name, a.Digest, a.Balance)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrNameTaken
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (p *Postgres) GetByID(ctx context.Context, id string) (*Account, error) {
	return p.get(ctx, `SELECT id, name, digest, balance FROM accounts WHERE id = $1`, id)
}

func (p *Postgres) GetByName(ctx context.Context, name string) (*Account, error) {
	return p.get(ctx, `SELECT id, name, digest, balance FROM accounts WHERE name = $1`, name)
}

func (p *Postgres) get(ctx context.Context, query, arg string) (*Account, error) {
	var a Account
	err := p.pool.QueryRow(ctx, query, arg).Scan(&a.ID, &a.Name, &a.Digest, &a.Balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query account: %w", err)
	}
	return &a, nil
}

func (p *Postgres) UpdateDigest(ctx context.Context, id, digest string) error {
	tag, err := p.pool.Exec(ctx, `UPDATE accounts SET digest = $1 WHERE id = $2`, digest, id)
	if err != nil {
		return fmt.Errorf("update digest: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Deposit(ctx context.Context, id string, amount float64) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE accounts SET balance = balance + $1 WHERE id = $2
	`, amount, id)
	if err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Withdraw(ctx context.Context, id string, amount float64) error {
	return p.withRetry(ctx, func(tx pgx.Tx) error {
		balance, err := lockRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if balance-amount < 0 {
			return ErrInsufficientFunds
		}
		_, err = tx.Exec(ctx, `UPDATE accounts SET balance = balance - $1 WHERE id = $2`, amount, id)
		if err != nil {
			return fmt.Errorf("debit: %w", err)
		}
		return nil
	})
}

func (p *Postgres) Transfer(ctx context.Context, senderID, receiverID string, amount float64) error {
	return p.withRetry(ctx, func(tx pgx.Tx) error {
		// Lock both rows in lexicographic id order to prevent deadlock
		// between opposing transfers over the same pair.
		first, second := senderID, receiverID
		if second < first {
			first, second = second, first
		}
		balances := map[string]float64{}
		for _, id := range []string{first, second} {
			b, err := lockRow(ctx, tx, id)
			if err != nil {
				return err
			}
			balances[id] = b
		}

		if balances[senderID]-amount < 0 {
			return ErrInsufficientFunds
		}

		if _, err := tx.Exec(ctx, `
			UPDATE accounts SET balance = balance - $1 WHERE id = $2
		`, amount, senderID); err != nil {
			return fmt.Errorf("debit sender: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE accounts SET balance = balance + $1 WHERE id = $2
		`, amount, receiverID); err != nil {
			return fmt.Errorf("credit receiver: %w", err)
		}
		return nil
	})
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// lockRow takes a FOR UPDATE lock on the account row and returns its balance.
func lockRow(ctx context.Context, tx pgx.Tx, id string) (float64, error) {
	var balance float64
	err := tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("lock account row: %w", err)
	}
	return balance, nil
}

// withRetry runs fn inside a transaction, retrying serialization failures
// with linear backoff.
func (p *Postgres) withRetry(ctx context.Context, fn func(tx pgx.Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := p.inTx(ctx, fn)
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgSerializationFailure && attempt < maxTxRetries-1 {
			select {
			case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return err
	}
}

func (p *Postgres) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
