package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/tokenops/capguard/models"
)

// TransactionManager manages database transactions. Governance operations run
// inside a transaction so each call is an atomic read-modify-write against the
// policy record (the record row is the single-writer resource).
type TransactionManager interface {
	// InTransaction executes a function within a transaction.
	// Commits if the function succeeds, rolls back on error.
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// PolicyStore persists one PolicyRecord per token, addressed by token identity.
type PolicyStore interface {
	// Create persists a new policy record.
	// Returns services.ErrPolicyExists when the token already has one.
	Create(ctx context.Context, record *models.PolicyRecord) error

	// Get retrieves the policy record for a token.
	// Returns services.ErrPolicyNotFound when absent.
	Get(ctx context.Context, token models.Identity) (*models.PolicyRecord, error)

	// GetForUpdate retrieves the policy record and locks its row for the
	// duration of the surrounding transaction.
	GetForUpdate(ctx context.Context, token models.Identity) (*models.PolicyRecord, error)

	// Update overwrites the persisted record for record.Token.
	Update(ctx context.Context, record *models.PolicyRecord) error
}

// AuditRepository is the append-only audit trail. There are intentionally no
// update or delete operations.
type AuditRepository interface {
	// Insert appends a new audit event
	Insert(ctx context.Context, event *models.AuditEvent) error

	// GetByID retrieves an audit event by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.AuditEvent, error)

	// ListByToken retrieves audit events for a token with pagination,
	// newest first
	ListByToken(ctx context.Context, token models.Identity, limit, offset int) ([]*models.AuditEvent, error)

	// ListByAction retrieves audit events for a token filtered by action,
	// newest first
	ListByAction(ctx context.Context, token models.Identity, action models.AuditAction, limit, offset int) ([]*models.AuditEvent, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Policies    PolicyStore
	AuditEvents AuditRepository
}
