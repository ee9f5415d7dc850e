package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tokenops/capguard/middleware"
	"github.com/tokenops/capguard/models"
	"github.com/tokenops/capguard/services/guard"
	"github.com/tokenops/capguard/utils"
	"go.uber.org/zap"
)

// TransferRequest represents a transfer presented for evaluation
type TransferRequest struct {
	Token       string `json:"token" validate:"required,len=64,hexadecimal"`
	Source      string `json:"source" validate:"required,len=64,hexadecimal"`
	Destination string `json:"destination" validate:"required,len=64,hexadecimal"`
	Amount      uint64 `json:"amount"`
}

// TransferService defines the interface for transfer evaluation
type TransferService interface {
	// CheckTransfer evaluates a transfer on the pre-check path
	CheckTransfer(ctx context.Context, req guard.TransferRequest) (guard.Decision, error)

	// ApplyTransfer evaluates a transfer on the settlement path
	ApplyTransfer(ctx context.Context, req guard.TransferRequest) (guard.Decision, error)
}

// TransferHandler handles transfer evaluation HTTP requests
type TransferHandler struct {
	service TransferService
	logger  *zap.Logger
}

// NewTransferHandler creates a new TransferHandler
func NewTransferHandler(service TransferService, logger *zap.Logger) *TransferHandler {
	return &TransferHandler{
		service: service,
		logger:  logger,
	}
}

// HandleCheckTransfer handles POST /v1/transfers/check
func (h *TransferHandler) HandleCheckTransfer(w http.ResponseWriter, r *http.Request) {
	h.evaluate(w, r, h.service.CheckTransfer)
}

// HandleApplyTransfer handles POST /v1/transfers/apply
func (h *TransferHandler) HandleApplyTransfer(w http.ResponseWriter, r *http.Request) {
	h.evaluate(w, r, h.service.ApplyTransfer)
}

// evaluate parses the request and runs one of the two evaluation paths.
// Policy denials are regular 200 responses with allowed=false; only malformed
// requests and infrastructure failures produce error statuses.
func (h *TransferHandler) evaluate(w http.ResponseWriter, r *http.Request, eval func(context.Context, guard.TransferRequest) (guard.Decision, error)) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	transfer, err := req.toTransfer()
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	decision, err := eval(ctx, transfer)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, decision)
}

// toTransfer converts the wire request to the service type
func (r *TransferRequest) toTransfer() (guard.TransferRequest, error) {
	token, err := models.ParseIdentity(r.Token)
	if err != nil {
		return guard.TransferRequest{}, err
	}
	source, err := models.ParseIdentity(r.Source)
	if err != nil {
		return guard.TransferRequest{}, err
	}
	destination, err := models.ParseIdentity(r.Destination)
	if err != nil {
		return guard.TransferRequest{}, err
	}
	return guard.TransferRequest{
		Token:       token,
		Source:      source,
		Destination: destination,
		Amount:      r.Amount,
	}, nil
}
