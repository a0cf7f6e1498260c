package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "bank.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteCreateAndGet(t *testing.T) {
	s := setupSQLite(t)
	ctx := context.Background()

	seedAccount(t, s, "id-1", "alice", 25)

	byID, err := s.GetByID(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Name)
	assert.Equal(t, 25.0, byID.Balance)

	byName, err := s.GetByName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "id-1", byName.ID)

	_, err = s.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteCreateDuplicateName(t *testing.T) {
	s := setupSQLite(t)
	ctx := context.Background()

	seedAccount(t, s, "id-1", "alice", 0)
	err := s.Create(ctx, Account{ID: "id-2", Name: "alice", Digest: "other"})
	assert.ErrorIs(t, err, ErrNameTaken)

	// The failed create must not have clobbered the original row.
	a, err := s.GetByName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "id-1", a.ID)
}

func TestSQLiteConcurrentCreateSameName(t *testing.T) {
	s := setupSQLite(t)
	ctx := context.Background()

	const racers = 8
	errs := make(chan error, racers)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < racers; i++ {
		id := fmt.Sprintf("id-%d", i)
		go func() {
			start.Wait()
			errs <- s.Create(ctx, Account{ID: id, Name: "alice", Digest: "d"})
		}()
	}
	start.Done()

	// Exactly one insert wins; every loser sees ErrNameTaken, never a
	// wrapped driver error.
	var won int
	for i := 0; i < racers; i++ {
		err := <-errs
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, ErrNameTaken)
	}
	assert.Equal(t, 1, won)
}

func TestSQLiteDepositAndWithdraw(t *testing.T) {
	s := setupSQLite(t)
	ctx := context.Background()

	seedAccount(t, s, "id-1", "alice", 0)

	require.NoError(t, s.Deposit(ctx, "id-1", 500))
	assert.ErrorIs(t, s.Deposit(ctx, "missing", 500), ErrNotFound)

	assert.ErrorIs(t, s.Withdraw(ctx, "id-1", 1000), ErrInsufficientFunds)
	assert.ErrorIs(t, s.Withdraw(ctx, "missing", 1), ErrNotFound)

	require.NoError(t, s.Withdraw(ctx, "id-1", 200))
	a, err := s.GetByID(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, 300.0, a.Balance)
}

func TestSQLiteTransferAllOrNothing(t *testing.T) {
	s := setupSQLite(t)
	ctx := context.Background()

	seedAccount(t, s, "id-1", "alice", 100)
	seedAccount(t, s, "id-2", "bob", 0)

	assert.ErrorIs(t, s.Transfer(ctx, "id-1", "missing", 10), ErrNotFound)
	assert.ErrorIs(t, s.Transfer(ctx, "missing", "id-2", 10), ErrNotFound)
	assert.ErrorIs(t, s.Transfer(ctx, "id-1", "id-2", 500), ErrInsufficientFunds)

	alice, _ := s.GetByID(ctx, "id-1")
	bob, _ := s.GetByID(ctx, "id-2")
	assert.Equal(t, 100.0, alice.Balance)
	assert.Equal(t, 0.0, bob.Balance)

	require.NoError(t, s.Transfer(ctx, "id-1", "id-2", 60))
	alice, _ = s.GetByID(ctx, "id-1")
	bob, _ = s.GetByID(ctx, "id-2")
	assert.Equal(t, 40.0, alice.Balance)
	assert.Equal(t, 60.0, bob.Balance)
}

func TestSQLiteUpdateDigestAndDelete(t *testing.T) {
	s := setupSQLite(t)
	ctx := context.Background()

	seedAccount(t, s, "id-1", "alice", 0)

	require.NoError(t, s.UpdateDigest(ctx, "id-1", "new-digest"))
	a, err := s.GetByID(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "new-digest", a.Digest)

	assert.ErrorIs(t, s.UpdateDigest(ctx, "missing", "x"), ErrNotFound)

	require.NoError(t, s.Delete(ctx, "id-1"))
	_, err = s.GetByID(ctx, "id-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "id-1"), ErrNotFound)
}
