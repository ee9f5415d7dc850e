package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tokenops/capguard/middleware"
	"github.com/tokenops/capguard/models"
	"github.com/tokenops/capguard/utils"
	"go.uber.org/zap"
)

// InitializePolicyRequest represents a request to create a policy record
type InitializePolicyRequest struct {
	Token        string `json:"token" validate:"required,len=64,hexadecimal"`
	ExemptWallet string `json:"exempt_wallet" validate:"required,len=64,hexadecimal"`
	Authority    string `json:"authority" validate:"required,len=64,hexadecimal"`
}

// ProposeCapRequest represents a request to stage a timelocked cap change
type ProposeCapRequest struct {
	NewCap uint64 `json:"new_cap" validate:"required,gt=0"`
}

// RotateAuthorityRequest represents a request to change the governance authority
type RotateAuthorityRequest struct {
	NewAuthority string `json:"new_authority" validate:"required,len=64,hexadecimal"`
}

// MigrateRequest represents a request to migrate a record's schema version
type MigrateRequest struct {
	TargetVersion uint8 `json:"target_version" validate:"required,gt=0"`
}

// PolicyResponse represents a policy record in API responses
type PolicyResponse struct {
	Token               string                   `json:"token"`
	SchemaVersion       uint8                    `json:"schema_version"`
	ExemptWallet        string                   `json:"exempt_wallet"`
	CapRaw              uint64                   `json:"cap_raw"`
	GovernanceAuthority string                   `json:"governance_authority"`
	PendingUpdate       *models.PendingCapUpdate `json:"pending_update,omitempty"`
	CreatedAt           string                   `json:"created_at"`
	UpdatedAt           string                   `json:"updated_at"`
}

// GovernanceService defines the interface for policy governance operations
type GovernanceService interface {
	InitializePolicy(ctx context.Context, token, exemptWallet, authority models.Identity, requestID string) (*models.PolicyRecord, error)
	GetPolicy(ctx context.Context, token models.Identity) (*models.PolicyRecord, error)
	ProposeCap(ctx context.Context, token, caller models.Identity, newCap uint64, requestID string) (*models.PolicyRecord, error)
	ExecuteCapUpdate(ctx context.Context, token, caller models.Identity, requestID string) (*models.PolicyRecord, error)
	CancelCapUpdate(ctx context.Context, token, caller models.Identity, requestID string) (*models.PolicyRecord, error)
	RotateAuthority(ctx context.Context, token, caller, newAuthority models.Identity, requestID string) (*models.PolicyRecord, error)
	Migrate(ctx context.Context, token, caller models.Identity, targetVersion uint8, requestID string) (*models.PolicyRecord, error)
}

// GovernanceHandler handles policy governance HTTP requests
type GovernanceHandler struct {
	service GovernanceService
	logger  *zap.Logger
}

// NewGovernanceHandler creates a new GovernanceHandler
func NewGovernanceHandler(service GovernanceService, logger *zap.Logger) *GovernanceHandler {
	return &GovernanceHandler{
		service: service,
		logger:  logger,
	}
}

// HandleInitializePolicy handles POST /v1/policies
func (h *GovernanceHandler) HandleInitializePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req InitializePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	token, err := models.ParseIdentity(req.Token)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	exemptWallet, err := models.ParseIdentity(req.ExemptWallet)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	authority, err := models.ParseIdentity(req.Authority)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	record, err := h.service.InitializePolicy(ctx, token, exemptWallet, authority, requestID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("policy record created",
		zap.String("request_id", requestID),
		zap.String("token", token.String()))
	_ = utils.WriteCreated(w, recordToResponse(record))
}

// HandleGetPolicy handles GET /v1/policies/{token}
func (h *GovernanceHandler) HandleGetPolicy(w http.ResponseWriter, r *http.Request) {
	token, ok := h.tokenParam(w, r)
	if !ok {
		return
	}

	record, err := h.service.GetPolicy(r.Context(), token)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, recordToResponse(record))
}

// HandleProposeCap handles POST /v1/policies/{token}/cap/propose
func (h *GovernanceHandler) HandleProposeCap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	token, ok := h.tokenParam(w, r)
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req ProposeCapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	record, err := h.service.ProposeCap(ctx, token, caller, req.NewCap, requestID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, recordToResponse(record))
}

// HandleExecuteCapUpdate handles POST /v1/policies/{token}/cap/execute
func (h *GovernanceHandler) HandleExecuteCapUpdate(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.ExecuteCapUpdate)
}

// HandleCancelCapUpdate handles POST /v1/policies/{token}/cap/cancel
func (h *GovernanceHandler) HandleCancelCapUpdate(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.CancelCapUpdate)
}

// HandleRotateAuthority handles POST /v1/policies/{token}/authority
func (h *GovernanceHandler) HandleRotateAuthority(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	token, ok := h.tokenParam(w, r)
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req RotateAuthorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	newAuthority, err := models.ParseIdentity(req.NewAuthority)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	record, err := h.service.RotateAuthority(ctx, token, caller, newAuthority, requestID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, recordToResponse(record))
}

// HandleMigrate handles POST /v1/policies/{token}/migrate
func (h *GovernanceHandler) HandleMigrate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	token, ok := h.tokenParam(w, r)
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req MigrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	record, err := h.service.Migrate(ctx, token, caller, req.TargetVersion, requestID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, recordToResponse(record))
}

// mutate runs a body-less governance operation (execute, cancel)
func (h *GovernanceHandler) mutate(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, token, caller models.Identity, requestID string) (*models.PolicyRecord, error)) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	token, ok := h.tokenParam(w, r)
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	record, err := op(ctx, token, caller, requestID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, recordToResponse(record))
}

// tokenParam parses the {token} URL parameter
func (h *GovernanceHandler) tokenParam(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	token, err := models.ParseIdentity(chi.URLParam(r, "token"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid token identity", nil)
		return models.Identity{}, false
	}
	return token, true
}

// caller retrieves the authenticated caller identity from the request context
func (h *GovernanceHandler) caller(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	caller, ok := middleware.GetCallerFromContext(r.Context())
	if !ok {
		h.logger.Error("missing caller identity in context")
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return models.Identity{}, false
	}
	return caller, true
}

// recordToResponse converts a policy record to the API response format
func recordToResponse(record *models.PolicyRecord) PolicyResponse {
	return PolicyResponse{
		Token:               record.Token.String(),
		SchemaVersion:       record.SchemaVersion,
		ExemptWallet:        record.ExemptWallet.String(),
		CapRaw:              record.CapRaw,
		GovernanceAuthority: record.GovernanceAuthority.String(),
		PendingUpdate:       record.PendingUpdate,
		CreatedAt:           record.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:           record.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
