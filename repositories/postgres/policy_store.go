package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/tokenops/capguard/models"
	"github.com/tokenops/capguard/repositories"
	"github.com/tokenops/capguard/services"
	"go.uber.org/zap"
)

// uniqueViolation is the Postgres error code for duplicate keys.
const uniqueViolation = "23505"

// PolicyStore implements the repositories.PolicyStore interface.
// Records are stored as the fixed 98-byte payload keyed by token identity.
type PolicyStore struct {
	db     *DB
	logger *zap.Logger
}

// NewPolicyStore creates a new policy store
func NewPolicyStore(db *DB, logger *zap.Logger) repositories.PolicyStore {
	return &PolicyStore{
		db:     db,
		logger: logger,
	}
}

// Create persists a new policy record
func (s *PolicyStore) Create(ctx context.Context, record *models.PolicyRecord) error {
	query := `
		INSERT INTO policy_records (token, payload, schema_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	executor := GetExecutor(ctx, s.db)
	_, err := executor.ExecContext(ctx, query,
		record.Token,
		record.MarshalPayload(),
		int16(record.SchemaVersion),
		record.CreatedAt,
		record.UpdatedAt,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return services.ErrPolicyExists.Derive().WithDetail("token", record.Token.String())
		}
		return fmt.Errorf("failed to create policy record: %w", err)
	}

	s.logger.Debug("policy record created", zap.String("token", record.Token.String()))
	return nil
}

// Get retrieves the policy record for a token
func (s *PolicyStore) Get(ctx context.Context, token models.Identity) (*models.PolicyRecord, error) {
	query := `
		SELECT token, payload, created_at, updated_at
		FROM policy_records
		WHERE token = $1
	`

	return s.queryRecord(ctx, query, token)
}

// GetForUpdate retrieves the policy record and locks its row until the
// surrounding transaction completes.
func (s *PolicyStore) GetForUpdate(ctx context.Context, token models.Identity) (*models.PolicyRecord, error) {
	query := `
		SELECT token, payload, created_at, updated_at
		FROM policy_records
		WHERE token = $1
		FOR UPDATE
	`

	return s.queryRecord(ctx, query, token)
}

// Update overwrites the persisted record for record.Token
func (s *PolicyStore) Update(ctx context.Context, record *models.PolicyRecord) error {
	query := `
		UPDATE policy_records
		SET payload = $2,
		    schema_version = $3,
		    updated_at = $4
		WHERE token = $1
	`

	record.UpdatedAt = time.Now().UTC()

	executor := GetExecutor(ctx, s.db)
	result, err := executor.ExecContext(ctx, query,
		record.Token,
		record.MarshalPayload(),
		int16(record.SchemaVersion),
		record.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update policy record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return services.ErrPolicyNotFound.Derive().WithDetail("token", record.Token.String())
	}

	s.logger.Debug("policy record updated", zap.String("token", record.Token.String()))
	return nil
}

// queryRecord runs a single-row record query and decodes the payload
func (s *PolicyStore) queryRecord(ctx context.Context, query string, token models.Identity) (*models.PolicyRecord, error) {
	executor := GetExecutor(ctx, s.db)

	record := &models.PolicyRecord{}
	var payload []byte

	err := executor.QueryRowContext(ctx, query, token).Scan(
		&record.Token,
		&payload,
		&record.CreatedAt,
		&record.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.ErrPolicyNotFound.Derive().WithDetail("token", token.String())
		}
		return nil, fmt.Errorf("failed to get policy record: %w", err)
	}

	if err := record.UnmarshalPayload(payload); err != nil {
		return nil, fmt.Errorf("failed to decode policy payload: %w", err)
	}

	return record, nil
}
