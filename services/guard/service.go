package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/tokenops/capguard/ledger"
	"github.com/tokenops/capguard/models"
	"github.com/tokenops/capguard/repositories"
	"github.com/tokenops/capguard/services"
	"go.uber.org/zap"
)

// TransferRequest describes one transfer presented for evaluation.
type TransferRequest struct {
	Token       models.Identity // token mint
	Source      models.Identity // source token account
	Destination models.Identity // destination token account
	Amount      uint64          // base units
}

// DecisionRecorder records rejected transfers on the audit trail. The guard
// calls it synchronously but implementations must not block the decision path.
type DecisionRecorder interface {
	RecordRejectedTransfer(req TransferRequest, reason RejectReason, path string)
}

// Service is the transfer-time entrypoint. The external ledger invokes it
// once per transfer, on the pre-check path and/or at settlement; both paths
// run the same decision logic, so identical inputs always reach the same
// decision. The service never mutates balances and never re-enters the
// ledger's transfer flow: it only reads pre-transfer account state.
type Service struct {
	store         repositories.PolicyStore
	ledger        ledger.Reader
	recorder      DecisionRecorder
	ledgerProgram models.Identity
	logger        *zap.Logger
}

// NewService creates a new guard service. ledgerProgram is the program that
// must own every token account presented on a transfer.
func NewService(store repositories.PolicyStore, reader ledger.Reader, recorder DecisionRecorder, ledgerProgram models.Identity, logger *zap.Logger) *Service {
	return &Service{
		store:         store,
		ledger:        reader,
		recorder:      recorder,
		ledgerProgram: ledgerProgram,
		logger:        logger,
	}
}

// CheckTransfer evaluates a transfer on the pre-check (simulation) path.
func (s *Service) CheckTransfer(ctx context.Context, req TransferRequest) (Decision, error) {
	return s.decide(ctx, req, "check")
}

// ApplyTransfer evaluates a transfer on the settlement path. Decision-only:
// the ledger performs the actual balance change.
func (s *Service) ApplyTransfer(ctx context.Context, req TransferRequest) (Decision, error) {
	return s.decide(ctx, req, "apply")
}

// decide is the single decision path shared by CheckTransfer and ApplyTransfer.
func (s *Service) decide(ctx context.Context, req TransferRequest, path string) (Decision, error) {
	// All three accounts must belong to the expected ledger program; this
	// guards against spoofed accounts substituted for genuine token state.
	destination, decision, err := s.verifyAccounts(ctx, req)
	if err != nil {
		return Decision{}, err
	}
	if !decision.Allowed {
		return s.reject(req, decision, path), nil
	}

	policy, err := s.store.Get(ctx, req.Token)
	if err != nil {
		if services.IsNotFoundError(err) {
			return s.reject(req, Reject(RejectPolicyNotFound), path), nil
		}
		return Decision{}, services.WrapInternal("failed to load policy record", err)
	}

	decision = Evaluate(req.Amount, destination.Owner, destination.Balance, policy)
	if !decision.Allowed {
		return s.reject(req, decision, path), nil
	}

	s.logger.Debug("transfer allowed",
		zap.String("path", path),
		zap.String("token", req.Token.String()),
		zap.Uint64("amount", req.Amount))
	return decision, nil
}

// verifyAccounts checks program ownership of source, destination and mint,
// and returns the destination account state for the cap check.
func (s *Service) verifyAccounts(ctx context.Context, req TransferRequest) (*ledger.TokenAccount, Decision, error) {
	var destination *ledger.TokenAccount

	for _, address := range []models.Identity{req.Source, req.Destination, req.Token} {
		account, err := s.ledger.TokenAccount(ctx, address)
		if err != nil {
			// An address the ledger cannot resolve is not genuine token state.
			if errors.Is(err, ledger.ErrAccountNotFound) {
				return nil, Reject(RejectInvalidOwner), nil
			}
			return nil, Decision{}, services.WrapError(services.ErrorTypeInternal,
				fmt.Sprintf("ledger query failed for account %s", address), err)
		}
		if account.Program != s.ledgerProgram {
			return nil, Reject(RejectInvalidOwner), nil
		}
		if address == req.Destination {
			destination = account
		}
	}

	return destination, Allow(), nil
}

// reject records the denial on the audit trail and returns it.
func (s *Service) reject(req TransferRequest, decision Decision, path string) Decision {
	s.logger.Info("transfer rejected",
		zap.String("path", path),
		zap.String("token", req.Token.String()),
		zap.String("destination", req.Destination.String()),
		zap.Uint64("amount", req.Amount),
		zap.String("reason", string(decision.Reason)))

	if s.recorder != nil {
		s.recorder.RecordRejectedTransfer(req, decision.Reason, path)
	}
	return decision
}
