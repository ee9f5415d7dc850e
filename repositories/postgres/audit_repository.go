package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tokenops/capguard/models"
	"github.com/tokenops/capguard/repositories"
	"github.com/tokenops/capguard/services"
	"go.uber.org/zap"
)

// AuditRepository implements the repositories.AuditRepository interface.
// The trail is append-only: only Insert writes, and nothing updates or deletes.
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Insert appends a new audit event
func (r *AuditRepository) Insert(ctx context.Context, event *models.AuditEvent) error {
	query := `
		INSERT INTO audit_events (id, token, action, actor, details, request_id, ledger_time, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var actor interface{}
	if event.Actor != nil {
		actor = event.Actor[:]
	}

	var details interface{}
	if len(event.Details) > 0 {
		details = []byte(event.Details)
	}

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		event.ID,
		event.Token,
		event.Action,
		actor,
		details,
		event.RequestID,
		event.LedgerTime,
		event.RecordedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	r.logger.Debug("audit event inserted",
		zap.String("id", event.ID.String()),
		zap.String("action", string(event.Action)))
	return nil
}

// GetByID retrieves an audit event by ID
func (r *AuditRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditEvent, error) {
	query := `
		SELECT id, token, action, actor, details, request_id, ledger_time, recorded_at
		FROM audit_events
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	event, err := scanAuditEvent(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.ErrAuditEventNotFound.Derive().
				WithDetail("id", id.String())
		}
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}

	return event, nil
}

// ListByToken retrieves audit events for a token with pagination, newest first
func (r *AuditRepository) ListByToken(ctx context.Context, token models.Identity, limit, offset int) ([]*models.AuditEvent, error) {
	query := `
		SELECT id, token, action, actor, details, request_id, ledger_time, recorded_at
		FROM audit_events
		WHERE token = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	return r.queryEvents(ctx, query, token, limit, offset)
}

// ListByAction retrieves audit events for a token filtered by action, newest first
func (r *AuditRepository) ListByAction(ctx context.Context, token models.Identity, action models.AuditAction, limit, offset int) ([]*models.AuditEvent, error) {
	query := `
		SELECT id, token, action, actor, details, request_id, ledger_time, recorded_at
		FROM audit_events
		WHERE token = $1 AND action = $2
		ORDER BY recorded_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`

	return r.queryEvents(ctx, query, token, action, limit, offset)
}

// queryEvents is a helper method to query multiple audit events
func (r *AuditRepository) queryEvents(ctx context.Context, query string, args ...interface{}) ([]*models.AuditEvent, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*models.AuditEvent
	for rows.Next() {
		event, err := scanAuditEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit event rows: %w", err)
	}

	return events, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuditEvent(row rowScanner) (*models.AuditEvent, error) {
	event := &models.AuditEvent{}
	var actor []byte
	var details []byte
	var requestID sql.NullString

	err := row.Scan(
		&event.ID,
		&event.Token,
		&event.Action,
		&actor,
		&details,
		&requestID,
		&event.LedgerTime,
		&event.RecordedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(actor) == models.IdentitySize {
		var id models.Identity
		copy(id[:], actor)
		event.Actor = &id
	}
	if len(details) > 0 {
		event.Details = details
	}
	event.RequestID = requestID.String

	return event, nil
}
