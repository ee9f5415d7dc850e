package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIdentity(b byte) Identity {
	var id Identity
	for i := range id {
		id[i] = b
	}
	return id
}

func TestPolicyRecord_New(t *testing.T) {
	token := testIdentity(0x01)
	exempt := testIdentity(0x02)
	authority := testIdentity(0x03)

	record := NewPolicyRecord(token, exempt, authority)

	assert.Equal(t, SchemaVersionInitial, record.SchemaVersion)
	assert.Equal(t, DefaultCapRaw, record.CapRaw)
	assert.Equal(t, exempt, record.ExemptWallet)
	assert.Equal(t, authority, record.GovernanceAuthority)
	assert.False(t, record.HasPendingUpdate())
}

func TestPolicyRecord_PayloadRoundTrip(t *testing.T) {
	record := NewPolicyRecord(testIdentity(0x01), testIdentity(0x02), testIdentity(0x03))
	record.PendingUpdate = &PendingCapUpdate{
		NewCap:        42_000_000_000,
		ProposedAt:    1_700_000_000,
		ExecutionTime: 1_700_172_800,
	}

	payload := record.MarshalPayload()
	require.Len(t, payload, PolicyPayloadSize)

	var decoded PolicyRecord
	require.NoError(t, decoded.UnmarshalPayload(payload))

	assert.Equal(t, record.SchemaVersion, decoded.SchemaVersion)
	assert.Equal(t, record.ExemptWallet, decoded.ExemptWallet)
	assert.Equal(t, record.CapRaw, decoded.CapRaw)
	assert.Equal(t, record.GovernanceAuthority, decoded.GovernanceAuthority)
	require.NotNil(t, decoded.PendingUpdate)
	assert.Equal(t, *record.PendingUpdate, *decoded.PendingUpdate)
}

func TestPolicyRecord_PayloadNoPendingUpdate(t *testing.T) {
	record := NewPolicyRecord(testIdentity(0x01), testIdentity(0x02), testIdentity(0x03))

	payload := record.MarshalPayload()
	require.Len(t, payload, PolicyPayloadSize)

	// Pending section must be all zeroes when no update is in flight.
	for i := 73; i < PolicyPayloadSize; i++ {
		assert.Zero(t, payload[i], "byte %d", i)
	}

	var decoded PolicyRecord
	require.NoError(t, decoded.UnmarshalPayload(payload))
	assert.Nil(t, decoded.PendingUpdate)
}

func TestPolicyRecord_UnmarshalPayloadErrors(t *testing.T) {
	var record PolicyRecord

	err := record.UnmarshalPayload(make([]byte, PolicyPayloadSize-1))
	assert.Error(t, err)

	bad := NewPolicyRecord(testIdentity(0x01), testIdentity(0x02), testIdentity(0x03)).MarshalPayload()
	bad[73] = 7
	err = record.UnmarshalPayload(bad)
	assert.Error(t, err)
}

func TestIdentity_ParseAndFormat(t *testing.T) {
	id := testIdentity(0xab)
	parsed, err := ParseIdentity(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseIdentity("abcd")
	assert.Error(t, err)

	_, err = ParseIdentity(string(make([]byte, 64)))
	assert.Error(t, err)

	assert.True(t, Identity{}.IsZero())
	assert.False(t, id.IsZero())
}
