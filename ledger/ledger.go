// Package ledger defines the interfaces the policy guard uses to observe the
// external token ledger: account state queries and the ledger's logical clock.
// The guard never mutates balances; the ledger performs the actual transfer
// after receiving a decision.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/tokenops/capguard/models"
)

// ErrAccountNotFound is returned when an address does not exist on the ledger.
var ErrAccountNotFound = errors.New("ledger: account not found")

// TokenAccount is the guard-visible state of a ledger account. Balance is the
// pre-transfer balance: the guard is invoked before the transfer's effects are
// applied and adds the pending amount itself.
type TokenAccount struct {
	Address models.Identity // account address
	Program models.Identity // program that owns the account on the ledger
	Owner   models.Identity // wallet that owns the held balance
	Balance uint64          // base units
}

// Reader queries token account state.
type Reader interface {
	// TokenAccount returns the current state of an account.
	// Returns ErrAccountNotFound when the address does not exist.
	TokenAccount(ctx context.Context, address models.Identity) (*TokenAccount, error)
}

// Clock supplies logical time for timelock evaluation. In production this is
// the ledger's clock; tests substitute a manual clock.
type Clock interface {
	Now() time.Time
}

// SystemClock is a Clock backed by the host wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}
