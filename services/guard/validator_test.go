package guard

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tokenops/capguard/models"
)

func identityFromByte(b byte) models.Identity {
	var id models.Identity
	for i := range id {
		id[i] = b
	}
	return id
}

func testPolicy() *models.PolicyRecord {
	return models.NewPolicyRecord(identityFromByte(0x01), identityFromByte(0x02), identityFromByte(0x03))
}

func TestEvaluate_UnderCapAllowed(t *testing.T) {
	policy := testPolicy()
	holder := identityFromByte(0x10)

	// 4_999_999_999 + 1 = cap exactly
	decision := Evaluate(1, holder, 4_999_999_999, policy)
	assert.True(t, decision.Allowed)
	assert.Empty(t, decision.Reason)
}

func TestEvaluate_OverCapRejected(t *testing.T) {
	policy := testPolicy()
	holder := identityFromByte(0x10)

	// One base unit over the cap
	decision := Evaluate(1, holder, models.DefaultCapRaw, policy)
	assert.False(t, decision.Allowed)
	assert.Equal(t, RejectCapExceeded, decision.Reason)
}

func TestEvaluate_ExemptWalletBypassesCap(t *testing.T) {
	policy := testPolicy()

	// Exempt wallet receives far above the cap
	decision := Evaluate(1_000_000_000_000, policy.ExemptWallet, 50_000_000_000, policy)
	assert.True(t, decision.Allowed)
}

func TestEvaluate_OverflowSaturatesAndRejects(t *testing.T) {
	policy := testPolicy()
	holder := identityFromByte(0x10)

	// balance + amount would wrap; the sum must clamp and fail the cap check
	decision := Evaluate(2000, holder, math.MaxUint64-1000, policy)
	assert.False(t, decision.Allowed)
	assert.Equal(t, RejectCapExceeded, decision.Reason)
}

func TestEvaluate_ZeroAmountAtCapAllowed(t *testing.T) {
	policy := testPolicy()
	holder := identityFromByte(0x10)

	decision := Evaluate(0, holder, models.DefaultCapRaw, policy)
	assert.True(t, decision.Allowed)
}

func TestSaturatingAdd(t *testing.T) {
	assert.Equal(t, uint64(3), saturatingAdd(1, 2))
	assert.Equal(t, uint64(math.MaxUint64), saturatingAdd(math.MaxUint64, 0))
	assert.Equal(t, uint64(math.MaxUint64), saturatingAdd(math.MaxUint64, 1))
	assert.Equal(t, uint64(math.MaxUint64), saturatingAdd(math.MaxUint64-1000, 2000))
}
