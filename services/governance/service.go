package governance

import (
	"context"

	"github.com/tokenops/capguard/ledger"
	"github.com/tokenops/capguard/models"
	"github.com/tokenops/capguard/repositories"
	"github.com/tokenops/capguard/services"
	"go.uber.org/zap"
)

// Service owns all mutations of policy records: initialization, the
// timelocked cap update lifecycle, authority rotation and schema migration.
// Each operation runs in a single database transaction with the policy row
// locked, so a governance call either fully applies or leaves no trace
// beyond its audit event.
type Service struct {
	store     repositories.PolicyStore
	auditRepo repositories.AuditRepository
	txManager repositories.TransactionManager
	clock     ledger.Clock
	logger    *zap.Logger
}

// NewService creates a new governance service
func NewService(
	store repositories.PolicyStore,
	auditRepo repositories.AuditRepository,
	txManager repositories.TransactionManager,
	clock ledger.Clock,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:     store,
		auditRepo: auditRepo,
		txManager: txManager,
		clock:     clock,
		logger:    logger,
	}
}

// InitializePolicy creates the policy record for a token with the default cap
// and no pending update. Creation is open to any caller; only subsequent
// mutations require the governance authority.
func (s *Service) InitializePolicy(ctx context.Context, token, exemptWallet, authority models.Identity, requestID string) (*models.PolicyRecord, error) {
	if token.IsZero() {
		return nil, services.ErrInvalidIdentity.Derive().WithDetail("field", "token")
	}
	if exemptWallet.IsZero() {
		return nil, services.ErrInvalidIdentity.Derive().WithDetail("field", "exempt_wallet")
	}
	if authority.IsZero() {
		return nil, services.ErrInvalidIdentity.Derive().WithDetail("field", "governance_authority")
	}

	record := models.NewPolicyRecord(token, exemptWallet, authority)

	err := s.txManager.InTransaction(ctx, func(txCtx context.Context, tx repositories.Transaction) error {
		if err := s.store.Create(txCtx, record); err != nil {
			return err
		}

		event := models.NewAuditEvent(token, models.AuditActionPolicyInitialized, s.clock.Now().Unix()).
			WithActor(authority).
			WithRequest(requestID).
			WithDetails(map[string]interface{}{
				"exempt_wallet":  exemptWallet.String(),
				"cap_raw":        record.CapRaw,
				"schema_version": record.SchemaVersion,
			})
		return s.auditRepo.Insert(txCtx, event)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("policy initialized",
		zap.String("token", token.String()),
		zap.String("exempt_wallet", exemptWallet.String()),
		zap.Uint64("cap_raw", record.CapRaw))
	return record, nil
}

// GetPolicy retrieves the policy record for a token.
func (s *Service) GetPolicy(ctx context.Context, token models.Identity) (*models.PolicyRecord, error) {
	return s.store.Get(ctx, token)
}

// ProposeCap stages a timelocked cap change. The proposal replaces any
// pending update unconditionally, which restarts the 48 hour clock; there is
// never more than one pending change per token.
func (s *Service) ProposeCap(ctx context.Context, token, caller models.Identity, newCap uint64, requestID string) (*models.PolicyRecord, error) {
	var record *models.PolicyRecord
	err := s.txManager.InTransaction(ctx, func(txCtx context.Context, tx repositories.Transaction) error {
		var err error
		record, err = s.lockAuthorized(txCtx, token, caller)
		if err != nil {
			return err
		}

		// Bounds are checked only once the caller is authorized
		if newCap == 0 || newCap > models.MaxReasonableCap {
			return services.ErrInvalidCap.Derive().
				WithDetail("new_cap", newCap).
				WithDetail("max_reasonable_cap", models.MaxReasonableCap)
		}

		now := s.clock.Now()
		record.PendingUpdate = &models.PendingCapUpdate{
			NewCap:        newCap,
			ProposedAt:    now.Unix(),
			ExecutionTime: now.Add(models.TimelockDuration).Unix(),
		}
		if err := s.store.Update(txCtx, record); err != nil {
			return err
		}

		event := models.NewAuditEvent(token, models.AuditActionCapUpdateProposed, now.Unix()).
			WithActor(caller).
			WithRequest(requestID).
			WithDetails(map[string]interface{}{
				"current_cap":    record.CapRaw,
				"new_cap":        newCap,
				"proposed_at":    record.PendingUpdate.ProposedAt,
				"execution_time": record.PendingUpdate.ExecutionTime,
			})
		return s.auditRepo.Insert(txCtx, event)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("cap update proposed",
		zap.String("token", token.String()),
		zap.Uint64("new_cap", newCap),
		zap.Int64("execution_time", record.PendingUpdate.ExecutionTime))
	return record, nil
}

// ExecuteCapUpdate applies a pending cap change once its timelock has
// expired. Execution at exactly the recorded execution time is allowed.
func (s *Service) ExecuteCapUpdate(ctx context.Context, token, caller models.Identity, requestID string) (*models.PolicyRecord, error) {
	var record *models.PolicyRecord
	err := s.txManager.InTransaction(ctx, func(txCtx context.Context, tx repositories.Transaction) error {
		var err error
		record, err = s.lockAuthorized(txCtx, token, caller)
		if err != nil {
			return err
		}

		if record.PendingUpdate == nil {
			return services.ErrNoPendingUpdate.Derive().WithDetail("token", token.String())
		}

		now := s.clock.Now()
		if now.Unix() < record.PendingUpdate.ExecutionTime {
			return services.ErrTimelockNotExpired.Derive().
				WithDetail("execution_time", record.PendingUpdate.ExecutionTime).
				WithDetail("ledger_time", now.Unix())
		}

		oldCap := record.CapRaw
		record.CapRaw = record.PendingUpdate.NewCap
		record.PendingUpdate = nil
		if err := s.store.Update(txCtx, record); err != nil {
			return err
		}

		event := models.NewAuditEvent(token, models.AuditActionCapUpdateExecuted, now.Unix()).
			WithActor(caller).
			WithRequest(requestID).
			WithDetails(map[string]interface{}{
				"old_cap": oldCap,
				"new_cap": record.CapRaw,
			})
		return s.auditRepo.Insert(txCtx, event)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("cap update executed",
		zap.String("token", token.String()),
		zap.Uint64("cap_raw", record.CapRaw))
	return record, nil
}

// CancelCapUpdate discards a pending cap change. The active cap is untouched.
func (s *Service) CancelCapUpdate(ctx context.Context, token, caller models.Identity, requestID string) (*models.PolicyRecord, error) {
	var record *models.PolicyRecord
	err := s.txManager.InTransaction(ctx, func(txCtx context.Context, tx repositories.Transaction) error {
		var err error
		record, err = s.lockAuthorized(txCtx, token, caller)
		if err != nil {
			return err
		}

		if record.PendingUpdate == nil {
			return services.ErrNoPendingUpdate.Derive().WithDetail("token", token.String())
		}

		canceledCap := record.PendingUpdate.NewCap
		record.PendingUpdate = nil
		if err := s.store.Update(txCtx, record); err != nil {
			return err
		}

		event := models.NewAuditEvent(token, models.AuditActionCapUpdateCanceled, s.clock.Now().Unix()).
			WithActor(caller).
			WithRequest(requestID).
			WithDetails(map[string]interface{}{
				"canceled_cap": canceledCap,
				"current_cap":  record.CapRaw,
			})
		return s.auditRepo.Insert(txCtx, event)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("cap update canceled", zap.String("token", token.String()))
	return record, nil
}

// RotateAuthority transfers governance control to a new authority. The change
// takes effect immediately, with no timelock; a pending cap update survives
// the rotation and becomes executable by the new authority.
func (s *Service) RotateAuthority(ctx context.Context, token, caller, newAuthority models.Identity, requestID string) (*models.PolicyRecord, error) {
	var record *models.PolicyRecord
	err := s.txManager.InTransaction(ctx, func(txCtx context.Context, tx repositories.Transaction) error {
		var err error
		record, err = s.lockAuthorized(txCtx, token, caller)
		if err != nil {
			return err
		}

		if newAuthority.IsZero() {
			return services.ErrInvalidIdentity.Derive().WithDetail("field", "new_authority")
		}

		oldAuthority := record.GovernanceAuthority
		record.GovernanceAuthority = newAuthority
		if err := s.store.Update(txCtx, record); err != nil {
			return err
		}

		event := models.NewAuditEvent(token, models.AuditActionAuthorityRotated, s.clock.Now().Unix()).
			WithActor(caller).
			WithRequest(requestID).
			WithDetails(map[string]interface{}{
				"old_authority": oldAuthority.String(),
				"new_authority": newAuthority.String(),
			})
		return s.auditRepo.Insert(txCtx, event)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("governance authority rotated",
		zap.String("token", token.String()),
		zap.String("new_authority", newAuthority.String()))
	return record, nil
}

// Migrate moves a policy record to a newer schema version. Versions only move
// forward and only within the range this build supports. With a single schema
// version in existence the registry is empty, so every well-formed request is
// rejected until a future version lands.
func (s *Service) Migrate(ctx context.Context, token, caller models.Identity, targetVersion uint8, requestID string) (*models.PolicyRecord, error) {
	var record *models.PolicyRecord
	err := s.txManager.InTransaction(ctx, func(txCtx context.Context, tx repositories.Transaction) error {
		var err error
		record, err = s.lockAuthorized(txCtx, token, caller)
		if err != nil {
			return err
		}

		if targetVersion <= record.SchemaVersion {
			return services.ErrInvalidMigrationVersion.Derive().
				WithDetail("current_version", record.SchemaVersion).
				WithDetail("target_version", targetVersion)
		}
		if targetVersion > models.SupportedSchemaCeiling {
			return services.ErrUnsupportedVersion.Derive().
				WithDetail("target_version", targetVersion).
				WithDetail("supported_ceiling", models.SupportedSchemaCeiling)
		}

		migrate, ok := migrations[migrationKey{from: record.SchemaVersion, to: targetVersion}]
		if !ok {
			return services.ErrUnsupportedMigration.Derive().
				WithDetail("current_version", record.SchemaVersion).
				WithDetail("target_version", targetVersion)
		}

		oldVersion := record.SchemaVersion
		if err := migrate(record); err != nil {
			return services.WrapInternal("migration failed", err)
		}
		record.SchemaVersion = targetVersion
		if err := s.store.Update(txCtx, record); err != nil {
			return err
		}

		event := models.NewAuditEvent(token, models.AuditActionConfigMigrated, s.clock.Now().Unix()).
			WithActor(caller).
			WithRequest(requestID).
			WithDetails(map[string]interface{}{
				"old_version": oldVersion,
				"new_version": targetVersion,
			})
		return s.auditRepo.Insert(txCtx, event)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("policy schema migrated",
		zap.String("token", token.String()),
		zap.Uint8("schema_version", record.SchemaVersion))
	return record, nil
}

// lockAuthorized loads the policy record with its row locked and verifies the
// caller is the current governance authority.
func (s *Service) lockAuthorized(ctx context.Context, token, caller models.Identity) (*models.PolicyRecord, error) {
	record, err := s.store.GetForUpdate(ctx, token)
	if err != nil {
		return nil, err
	}
	if caller != record.GovernanceAuthority {
		return nil, services.ErrUnauthorized.Derive().WithDetail("token", token.String())
	}
	return record, nil
}
