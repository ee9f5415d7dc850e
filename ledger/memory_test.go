package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tokenops/capguard/models"
)

func addr(b byte) models.Identity {
	var id models.Identity
	for i := range id {
		id[i] = b
	}
	return id
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.TokenAccount(ctx, addr(0x01))
	assert.ErrorIs(t, err, ErrAccountNotFound)

	m.SetAccount(TokenAccount{
		Address: addr(0x01),
		Program: addr(0xAA),
		Owner:   addr(0x02),
		Balance: 100,
	})

	account, err := m.TokenAccount(ctx, addr(0x01))
	require.NoError(t, err)
	assert.Equal(t, uint64(100), account.Balance)
	assert.Equal(t, addr(0x02), account.Owner)

	assert.True(t, m.SetBalance(addr(0x01), 250))
	account, err = m.TokenAccount(ctx, addr(0x01))
	require.NoError(t, err)
	assert.Equal(t, uint64(250), account.Balance)

	assert.False(t, m.SetBalance(addr(0x99), 1))
}

func TestManualClock(t *testing.T) {
	start := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)

	assert.Equal(t, start, clock.Now())

	clock.Advance(48 * time.Hour)
	assert.Equal(t, start.Add(48*time.Hour), clock.Now())

	reset := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	clock.Set(reset)
	assert.Equal(t, reset, clock.Now())
}
