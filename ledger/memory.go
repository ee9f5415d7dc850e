package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/tokenops/capguard/models"
)

// Memory is an in-memory ledger used in development mode and tests.
type Memory struct {
	mu       sync.RWMutex
	accounts map[models.Identity]TokenAccount
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[models.Identity]TokenAccount),
	}
}

// SetAccount creates or replaces an account.
func (m *Memory) SetAccount(account TokenAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.Address] = account
}

// SetBalance updates the balance of an existing account.
func (m *Memory) SetBalance(address models.Identity, balance uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[address]
	if !ok {
		return false
	}
	account.Balance = balance
	m.accounts[address] = account
	return true
}

// TokenAccount implements Reader.
func (m *Memory) TokenAccount(_ context.Context, address models.Identity) (*TokenAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	account, ok := m.accounts[address]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &account, nil
}

// ManualClock is a Clock whose time is set explicitly. Used in tests to drive
// timelock expiry deterministically.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a manual clock set to the given time.
func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now}
}

// Now returns the clock's current time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to the given time.
func (c *ManualClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
