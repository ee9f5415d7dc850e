package guard

import (
	"math"

	"github.com/tokenops/capguard/models"
)

// RejectReason identifies why a transfer was denied by policy.
type RejectReason string

const (
	RejectCapExceeded    RejectReason = "cap_exceeded"
	RejectInvalidOwner   RejectReason = "invalid_owner"
	RejectPolicyNotFound RejectReason = "policy_not_found"
)

// Decision is the outcome of a transfer policy evaluation. Reason is empty
// when the transfer is allowed.
type Decision struct {
	Allowed bool         `json:"allowed"`
	Reason  RejectReason `json:"reason,omitempty"`
}

// Allow returns an allowing decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Reject returns a denying decision with the given reason.
func Reject(reason RejectReason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Evaluate is the cap check applied to every transfer. It is pure: no side
// effects, deterministic for identical inputs, callable from both the
// pre-check and the settlement paths.
//
// The exempt wallet is always allowed, whatever the amount (uncapped
// treasury/distribution flows). Everyone else is allowed iff the post-transfer
// balance stays at or under the cap. The post-transfer balance saturates at
// the uint64 maximum instead of wrapping, so an overflowing sum always fails
// the cap comparison.
func Evaluate(amount uint64, destinationOwner models.Identity, destinationBalance uint64, policy *models.PolicyRecord) Decision {
	if destinationOwner == policy.ExemptWallet {
		return Allow()
	}

	post := saturatingAdd(destinationBalance, amount)
	if post <= policy.CapRaw {
		return Allow()
	}
	return Reject(RejectCapExceeded)
}

// saturatingAdd returns a+b, clamped to math.MaxUint64 on overflow.
func saturatingAdd(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return math.MaxUint64
	}
	return sum
}
