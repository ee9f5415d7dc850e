package handlers

import (
	"net/http"
	"strconv"

	"github.com/tokenops/capguard/models"
	"github.com/tokenops/capguard/repositories"
	"github.com/tokenops/capguard/utils"
	"go.uber.org/zap"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 200
)

// AuditHandler serves the read side of the audit trail
type AuditHandler struct {
	auditRepo repositories.AuditRepository
	logger    *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(auditRepo repositories.AuditRepository, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		auditRepo: auditRepo,
		logger:    logger,
	}
}

// HandleListEvents handles GET /v1/audit/events?token=...&action=...&limit=...&offset=...
func (h *AuditHandler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		_ = utils.WriteBadRequest(w, "token query parameter is required", nil)
		return
	}
	token, err := models.ParseIdentity(tokenStr)
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid token identity", nil)
		return
	}

	limit := queryInt(r, "limit", defaultAuditPageSize)
	if limit <= 0 || limit > maxAuditPageSize {
		limit = defaultAuditPageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	var events []*models.AuditEvent
	if actionStr := r.URL.Query().Get("action"); actionStr != "" {
		events, err = h.auditRepo.ListByAction(ctx, token, models.AuditAction(actionStr), limit, offset)
	} else {
		events, err = h.auditRepo.ListByToken(ctx, token, limit, offset)
	}
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if events == nil {
		events = []*models.AuditEvent{}
	}
	_ = utils.WriteOK(w, events)
}

// queryInt parses an integer query parameter with a fallback
func queryInt(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
