package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction identifies the operation an audit event records.
type AuditAction string

const (
	AuditActionPolicyInitialized AuditAction = "policy_initialized"
	AuditActionCapUpdateProposed AuditAction = "cap_update_proposed"
	AuditActionCapUpdateExecuted AuditAction = "cap_update_executed"
	AuditActionCapUpdateCanceled AuditAction = "cap_update_canceled"
	AuditActionAuthorityRotated  AuditAction = "authority_rotated"
	AuditActionConfigMigrated    AuditAction = "config_migrated"
	AuditActionTransferRejected  AuditAction = "transfer_rejected"
)

// AuditEvent is one entry of the append-only governance/decision trail.
// Events are the only externally observable log of governance activity.
type AuditEvent struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	Token      Identity        `json:"token" db:"token"`
	Action     AuditAction     `json:"action" db:"action"`
	Actor      *Identity       `json:"actor,omitempty" db:"actor"` // nil for ledger-path events
	Details    json.RawMessage `json:"details" db:"details"`
	RequestID  string          `json:"request_id,omitempty" db:"request_id"`
	LedgerTime int64           `json:"ledger_time" db:"ledger_time"` // logical clock at emission
	RecordedAt time.Time       `json:"recorded_at" db:"recorded_at"`
}

// TableName returns the table name for the AuditEvent model
func (AuditEvent) TableName() string {
	return "audit_events"
}

// NewAuditEvent creates a new audit event for a token.
func NewAuditEvent(token Identity, action AuditAction, ledgerTime int64) *AuditEvent {
	return &AuditEvent{
		ID:         uuid.New(),
		Token:      token,
		Action:     action,
		LedgerTime: ledgerTime,
		RecordedAt: time.Now().UTC(),
	}
}

// WithActor sets the governance caller that performed the operation.
func (e *AuditEvent) WithActor(actor Identity) *AuditEvent {
	e.Actor = &actor
	return e
}

// WithDetails marshals and attaches before/after values.
func (e *AuditEvent) WithDetails(details interface{}) *AuditEvent {
	if data, err := json.Marshal(details); err == nil {
		e.Details = data
	}
	return e
}

// WithRequest sets the originating request ID.
func (e *AuditEvent) WithRequest(requestID string) *AuditEvent {
	e.RequestID = requestID
	return e
}
