package models

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Guard parameters. Cap values are in base units (9-decimal tokens).
const (
	// SchemaVersionInitial is the schema version assigned at policy creation.
	SchemaVersionInitial uint8 = 1

	// SupportedSchemaCeiling is the highest schema version this build can
	// migrate to. Raised together with new entries in the migration registry.
	SupportedSchemaCeiling uint8 = 1

	// DefaultCapRaw is the cap assigned at initialization: 5 tokens,
	// 0.5% of the expected 1000-token supply.
	DefaultCapRaw uint64 = 5_000_000_000

	// MaxReasonableCap bounds proposed caps: 100 tokens, 10% of expected supply.
	MaxReasonableCap uint64 = 100_000_000_000

	// TimelockDuration is the mandatory delay between proposing and executing
	// a cap change.
	TimelockDuration = 48 * time.Hour
)

// PolicyPayloadSize is the fixed size of the serialized policy payload:
// version(1) + exempt_wallet(32) + cap_raw(8) + governance_authority(32) +
// pending flag(1) + new_cap(8) + proposed_at(8) + execution_time(8).
const PolicyPayloadSize = 98

// PendingCapUpdate is a timelocked cap change awaiting execution.
// At most one exists per PolicyRecord; a fresh proposal replaces it.
type PendingCapUpdate struct {
	NewCap        uint64 `json:"new_cap"`
	ProposedAt    int64  `json:"proposed_at"`
	ExecutionTime int64  `json:"execution_time"`
}

// PolicyRecord is the persisted per-token policy state. One record exists per
// governed token; all mutation goes through the governance service.
type PolicyRecord struct {
	Token               Identity          `json:"token" db:"token"`
	SchemaVersion       uint8             `json:"schema_version" db:"schema_version"`
	ExemptWallet        Identity          `json:"exempt_wallet"`
	CapRaw              uint64            `json:"cap_raw"`
	GovernanceAuthority Identity          `json:"governance_authority"`
	PendingUpdate       *PendingCapUpdate `json:"pending_update,omitempty"`
	CreatedAt           time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at" db:"updated_at"`
}

// NewPolicyRecord creates the initial policy state for a token.
func NewPolicyRecord(token, exemptWallet, governanceAuthority Identity) *PolicyRecord {
	now := time.Now().UTC()
	return &PolicyRecord{
		Token:               token,
		SchemaVersion:       SchemaVersionInitial,
		ExemptWallet:        exemptWallet,
		CapRaw:              DefaultCapRaw,
		GovernanceAuthority: governanceAuthority,
		PendingUpdate:       nil,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// HasPendingUpdate reports whether a cap change is in flight.
func (r *PolicyRecord) HasPendingUpdate() bool {
	return r.PendingUpdate != nil
}

// MarshalPayload serializes the record into the fixed 98-byte layout.
// The token identity is the storage key and is not part of the payload.
// Integers are little-endian. When no update is pending, the trailing
// 24 bytes are zero and the flag byte is 0.
func (r *PolicyRecord) MarshalPayload() []byte {
	buf := make([]byte, PolicyPayloadSize)
	buf[0] = r.SchemaVersion
	copy(buf[1:33], r.ExemptWallet[:])
	binary.LittleEndian.PutUint64(buf[33:41], r.CapRaw)
	copy(buf[41:73], r.GovernanceAuthority[:])
	if r.PendingUpdate != nil {
		buf[73] = 1
		binary.LittleEndian.PutUint64(buf[74:82], r.PendingUpdate.NewCap)
		binary.LittleEndian.PutUint64(buf[82:90], uint64(r.PendingUpdate.ProposedAt))
		binary.LittleEndian.PutUint64(buf[90:98], uint64(r.PendingUpdate.ExecutionTime))
	}
	return buf
}

// UnmarshalPayload deserializes the fixed 98-byte layout into the record.
// Token, CreatedAt and UpdatedAt are storage-layer fields and are left as-is.
func (r *PolicyRecord) UnmarshalPayload(data []byte) error {
	if len(data) != PolicyPayloadSize {
		return fmt.Errorf("invalid policy payload length: got %d bytes, want %d", len(data), PolicyPayloadSize)
	}
	r.SchemaVersion = data[0]
	copy(r.ExemptWallet[:], data[1:33])
	r.CapRaw = binary.LittleEndian.Uint64(data[33:41])
	copy(r.GovernanceAuthority[:], data[41:73])
	switch data[73] {
	case 0:
		r.PendingUpdate = nil
	case 1:
		r.PendingUpdate = &PendingCapUpdate{
			NewCap:        binary.LittleEndian.Uint64(data[74:82]),
			ProposedAt:    int64(binary.LittleEndian.Uint64(data[82:90])),
			ExecutionTime: int64(binary.LittleEndian.Uint64(data[90:98])),
		}
	default:
		return fmt.Errorf("invalid pending update flag: %d", data[73])
	}
	return nil
}
