// Package bank implements the account ledger: registration, credential
// verification, and balance mutations. Every operation returns an
// outcome-tagged Result; store failures are reported as OutcomeUnknown and
// the cause is logged, never surfaced to the wire.
package bank

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strconv"

	"github.com/google/uuid"

	"github.com/example/bankd/internal/session"
	"github.com/example/bankd/internal/store"
)

// Outcome classifies the result of a ledger operation.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeInvalidRegistration
	OutcomeInvalidLogin
	OutcomeSessionConflict
	OutcomeInsufficientFunds
	OutcomeNotFound
	OutcomeBadArguments
	OutcomeUnknown
)

// Result is the outcome of a ledger operation plus an optional payload.
// Only OutcomeOK results carry a payload.
type Result struct {
	Outcome Outcome
	Payload string
}

func ok(payload string) Result { return Result{Outcome: OutcomeOK, Payload: payload} }
func fail(o Outcome) Result    { return Result{Outcome: o} }

// Hasher is the opaque password hashing capability. Verify failure is an
// expected condition, not an error.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(digest, password string) bool
}

// Bank enforces the ledger invariants over a durable account store.
type Bank struct {
	store    store.Store
	sessions *session.Manager
	hasher   Hasher
	logger   *slog.Logger
}

// New creates a Bank. logger may be nil, in which case the default slog
// logger is used.
func New(st store.Store, sessions *session.Manager, hasher Hasher, logger *slog.Logger) *Bank {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bank{store: st, sessions: sessions, hasher: hasher, logger: logger}
}

// Register creates a new account with a fresh id, the hashed password, and
// a zero balance.
func (b *Bank) Register(ctx context.Context, username, password string) Result {
	if username == "" || password == "" {
		return fail(OutcomeBadArguments)
	}

	digest, err := b.hasher.Hash(password)
	if err != nil {
		b.logger.Error("hash password", "error", err)
		return fail(OutcomeUnknown)
	}

	err = b.store.Create(ctx, store.Account{
		ID:     uuid.New().String(),
		Name:   username,
		Digest: digest,
	})
	if errors.Is(err, store.ErrNameTaken) {
		return fail(OutcomeInvalidRegistration)
	}
	if err != nil {
		b.logger.Error("create account", "error", err)
		return fail(OutcomeUnknown)
	}
	return ok("")
}

// Login verifies the credentials and binds the account to connID. Unknown
// username and wrong password are deliberately indistinguishable. On success
// the payload is the account id.
func (b *Bank) Login(ctx context.Context, connID, username, password string) Result {
	if username == "" || password == "" {
		return fail(OutcomeBadArguments)
	}

	a, err := b.store.GetByName(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return fail(OutcomeInvalidLogin)
	}
	if err != nil {
		b.logger.Error("look up account", "error", err)
		return fail(OutcomeUnknown)
	}

	if !b.hasher.Verify(a.Digest, password) {
		return fail(OutcomeInvalidLogin)
	}

	if err := b.sessions.Bind(connID, a.ID); err != nil {
		return fail(OutcomeSessionConflict)
	}
	return ok(a.ID)
}

// Logout removes the live session for accountID.
func (b *Bank) Logout(ctx context.Context, accountID string) Result {
	if accountID == "" {
		return fail(OutcomeBadArguments)
	}
	if !b.sessions.UnbindAccount(accountID) {
		return fail(OutcomeNotFound)
	}
	return ok("")
}

// ChangePassword re-validates the old password through the same credential
// check as Login and replaces the stored digest. The account is looked up
// directly by id; no live session is required.
func (b *Bank) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) Result {
	if accountID == "" || oldPassword == "" || newPassword == "" {
		return fail(OutcomeBadArguments)
	}

	a, err := b.store.GetByID(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return fail(OutcomeNotFound)
	}
	if err != nil {
		b.logger.Error("look up account", "error", err)
		return fail(OutcomeUnknown)
	}

	if !b.hasher.Verify(a.Digest, oldPassword) {
		return fail(OutcomeInvalidLogin)
	}

	digest, err := b.hasher.Hash(newPassword)
	if err != nil {
		b.logger.Error("hash password", "error", err)
		return fail(OutcomeUnknown)
	}
	if err := b.store.UpdateDigest(ctx, accountID, digest); err != nil {
		return b.storeFailure("update digest", err)
	}
	return ok("")
}

// Balance returns the current balance as the payload.
func (b *Bank) Balance(ctx context.Context, accountID string) Result {
	if accountID == "" {
		return fail(OutcomeBadArguments)
	}

	a, err := b.store.GetByID(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return fail(OutcomeNotFound)
	}
	if err != nil {
		b.logger.Error("look up account", "error", err)
		return fail(OutcomeUnknown)
	}
	return ok(formatAmount(a.Balance))
}

// Deposit adds a positive amount to the account balance.
func (b *Bank) Deposit(ctx context.Context, accountID, amount string) Result {
	amt, res := parseAmount(accountID, amount)
	if res != nil {
		return *res
	}
	if err := b.store.Deposit(ctx, accountID, amt); err != nil {
		return b.storeFailure("deposit", err)
	}
	return ok("")
}

// Withdraw subtracts a positive amount; the funds check and the debit are a
// single atomic unit in the store.
func (b *Bank) Withdraw(ctx context.Context, accountID, amount string) Result {
	amt, res := parseAmount(accountID, amount)
	if res != nil {
		return *res
	}
	if err := b.store.Withdraw(ctx, accountID, amt); err != nil {
		return b.storeFailure("withdraw", err)
	}
	return ok("")
}

// Transfer moves a positive amount from sender to receiver as one atomic
// unit. A failed debit leaves both balances untouched.
func (b *Bank) Transfer(ctx context.Context, senderID, receiverID, amount string) Result {
	if receiverID == "" {
		return fail(OutcomeBadArguments)
	}
	amt, res := parseAmount(senderID, amount)
	if res != nil {
		return *res
	}
	if err := b.store.Transfer(ctx, senderID, receiverID, amt); err != nil {
		return b.storeFailure("transfer", err)
	}
	return ok("")
}

// Delete removes an account outright. Administrative operation; not
// reachable from the wire protocol.
func (b *Bank) Delete(ctx context.Context, accountID string) Result {
	if accountID == "" {
		return fail(OutcomeBadArguments)
	}
	if err := b.store.Delete(ctx, accountID); err != nil {
		return b.storeFailure("delete account", err)
	}
	b.sessions.UnbindAccount(accountID)
	return ok("")
}

func (b *Bank) storeFailure(op string, err error) Result {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fail(OutcomeNotFound)
	case errors.Is(err, store.ErrInsufficientFunds):
		return fail(OutcomeInsufficientFunds)
	default:
		b.logger.Error(op, "error", err)
		return fail(OutcomeUnknown)
	}
}

func parseAmount(accountID, amount string) (float64, *Result) {
	if accountID == "" || amount == "" {
		r := fail(OutcomeBadArguments)
		return 0, &r
	}
	amt, err := strconv.ParseFloat(amount, 64)
	if err != nil || amt <= 0 || math.IsNaN(amt) || math.IsInf(amt, 0) {
		r := fail(OutcomeBadArguments)
		return 0, &r
	}
	return amt, nil
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
