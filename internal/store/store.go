// Package store provides durable keyed persistence for accounts. All balance
// mutations are atomic with respect to concurrent callers: the sufficiency
// check and the debit are a single unit, and a transfer either moves funds
// between both rows or leaves both untouched.
package store

import (
	"context"
	"errors"
)

// Account is the persisted record for one bank account. ID and Name are
// assigned once at creation; Digest and Balance are the mutable fields.
type Account struct {
	ID      string
	Name    string
	Digest  string
	Balance float64
}

var (
	// ErrNotFound is returned when no account matches the given id or name.
	ErrNotFound = errors.New("store: account not found")
	// ErrNameTaken is returned by Create when the display name is in use.
	ErrNameTaken = errors.New("store: account name already taken")
	// ErrInsufficientFunds is returned when a debit would leave a negative balance.
	ErrInsufficientFunds = errors.New("store: insufficient funds")
)

// Store is the durable keyed store behind the account ledger.
type Store interface {
	// Create inserts a new account. The display name must be unique.
	Create(ctx context.Context, a Account) error
	// GetByID returns the account with the given id.
	GetByID(ctx context.Context, id string) (*Account, error)
	// GetByName returns the account with the given display name.
	GetByName(ctx context.Context, name string) (*Account, error)
	// UpdateDigest replaces the stored password digest wholesale.
	UpdateDigest(ctx context.Context, id, digest string) error
	// Deposit atomically adds amount to the account balance.
	Deposit(ctx context.Context, id string, amount float64) error
	// Withdraw atomically checks funds and subtracts amount. The check and
	// the write are one unit; concurrent withdrawals cannot both pass the
	// sufficiency check.
	Withdraw(ctx context.Context, id string, amount float64) error
	// Transfer atomically moves amount from sender to receiver. No
	// intermediate state is observable: both balances change or neither.
	Transfer(ctx context.Context, senderID, receiverID string, amount float64) error
	// Delete removes an account. Administrative use only; the wire protocol
	// never deletes accounts.
	Delete(ctx context.Context, id string) error
	// Close releases the underlying storage handle.
	Close() error
}
