package store

import (
	"context"
	"sync"
)

// Memory is an in-process Store used by tests and ephemeral runs. A single
// mutex serializes every mutation, so a transfer is one critical section and
// the no-partial-effect property holds trivially.
type Memory struct {
	mu     sync.Mutex
	byID   map[string]*Account
	byName map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		byID:   make(map[string]*Account),
		byName: make(map[string]string),
	}
}

func (m *Memory) Create(ctx context.Context, a Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byName[a.Name]; ok {
		return ErrNameTaken
	}
	cp := a
	m.byID[a.ID] = &cp
	m.byName[a.Name] = a.ID
	return nil
}

func (m *Memory) GetByID(ctx context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) GetByName(ctx context.Context, name string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *Memory) UpdateDigest(ctx context.Context, id, digest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	a.Digest = digest
	return nil
}

func (m *Memory) Deposit(ctx context.Context, id string, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	a.Balance += amount
	return nil
}

func (m *Memory) Withdraw(ctx context.Context, id string, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if a.Balance-amount < 0 {
		return ErrInsufficientFunds
	}
	a.Balance -= amount
	return nil
}

func (m *Memory) Transfer(ctx context.Context, senderID, receiverID string, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sender, ok := m.byID[senderID]
	if !ok {
		return ErrNotFound
	}
	receiver, ok := m.byID[receiverID]
	if !ok {
		return ErrNotFound
	}
	if sender.Balance-amount < 0 {
		return ErrInsufficientFunds
	}
	sender.Balance -= amount
	receiver.Balance += amount
	return nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.byName, a.Name)
	delete(m.byID, id)
	return nil
}

func (m *Memory) Close() error { return nil }
