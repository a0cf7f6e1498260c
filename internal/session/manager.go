// Package session tracks which connection is authenticated as which account.
// An account may be bound to at most one live connection at any time.
package session

import (
	"errors"
	"sync"
)

// ErrConflict is returned by Bind when the account already has a live session.
var ErrConflict = errors.New("session: account already has a live session")

// Manager is a concurrency-safe mapping between connection ids and account
// ids. Both directions are kept under one mutex so the check-and-bind in
// Bind is atomic under concurrent logins.
type Manager struct {
	mu        sync.Mutex
	byConn    map[string]string
	byAccount map[string]string
}

// NewManager returns an empty session manager.
func NewManager() *Manager {
	return &Manager{
		byConn:    make(map[string]string),
		byAccount: make(map[string]string),
	}
}

// Bind associates connID with accountID. It fails with ErrConflict when the
// account is already bound to any connection, including connID itself.
func (m *Manager) Bind(connID, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byAccount[accountID]; ok {
		return ErrConflict
	}
	m.byConn[connID] = accountID
	m.byAccount[accountID] = connID
	return nil
}

// Unbind removes any session bound to connID. It is idempotent and returns
// the account id that was bound, if any.
func (m *Manager) Unbind(connID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	accountID, ok := m.byConn[connID]
	if !ok {
		return "", false
	}
	delete(m.byConn, connID)
	delete(m.byAccount, accountID)
	return accountID, true
}

// UnbindAccount removes the session for accountID regardless of which
// connection holds it. It returns false when the account has no live session.
func (m *Manager) UnbindAccount(accountID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	connID, ok := m.byAccount[accountID]
	if !ok {
		return false
	}
	delete(m.byAccount, accountID)
	delete(m.byConn, connID)
	return true
}

// Lookup returns the account id bound to connID, if any.
func (m *Manager) Lookup(connID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	accountID, ok := m.byConn[connID]
	return accountID, ok
}

// Active returns the number of live sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byConn)
}
