package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tokenops/capguard/middleware"
	"github.com/tokenops/capguard/models"
	"github.com/tokenops/capguard/services"
	"go.uber.org/zap"
)

// MockGovernanceService is a mock implementation of GovernanceService
type MockGovernanceService struct {
	mock.Mock
}

func (m *MockGovernanceService) InitializePolicy(ctx context.Context, token, exemptWallet, authority models.Identity, requestID string) (*models.PolicyRecord, error) {
	args := m.Called(ctx, token, exemptWallet, authority, requestID)
	if record := args.Get(0); record != nil {
		return record.(*models.PolicyRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGovernanceService) GetPolicy(ctx context.Context, token models.Identity) (*models.PolicyRecord, error) {
	args := m.Called(ctx, token)
	if record := args.Get(0); record != nil {
		return record.(*models.PolicyRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGovernanceService) ProposeCap(ctx context.Context, token, caller models.Identity, newCap uint64, requestID string) (*models.PolicyRecord, error) {
	args := m.Called(ctx, token, caller, newCap, requestID)
	if record := args.Get(0); record != nil {
		return record.(*models.PolicyRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGovernanceService) ExecuteCapUpdate(ctx context.Context, token, caller models.Identity, requestID string) (*models.PolicyRecord, error) {
	args := m.Called(ctx, token, caller, requestID)
	if record := args.Get(0); record != nil {
		return record.(*models.PolicyRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGovernanceService) CancelCapUpdate(ctx context.Context, token, caller models.Identity, requestID string) (*models.PolicyRecord, error) {
	args := m.Called(ctx, token, caller, requestID)
	if record := args.Get(0); record != nil {
		return record.(*models.PolicyRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGovernanceService) RotateAuthority(ctx context.Context, token, caller, newAuthority models.Identity, requestID string) (*models.PolicyRecord, error) {
	args := m.Called(ctx, token, caller, newAuthority, requestID)
	if record := args.Get(0); record != nil {
		return record.(*models.PolicyRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGovernanceService) Migrate(ctx context.Context, token, caller models.Identity, targetVersion uint8, requestID string) (*models.PolicyRecord, error) {
	args := m.Called(ctx, token, caller, targetVersion, requestID)
	if record := args.Get(0); record != nil {
		return record.(*models.PolicyRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func mustIdentity(t *testing.T, hex string) models.Identity {
	t.Helper()
	id, err := models.ParseIdentity(hex)
	require.NoError(t, err)
	return id
}

// governanceRequest builds a request routed through chi so URL parameters
// resolve, with an authenticated caller in the context.
func governanceRequest(t *testing.T, handler http.HandlerFunc, method, path string, caller models.Identity, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	r := chi.NewRouter()
	r.MethodFunc(method, "/v1/policies/{token}/cap/propose", handler)
	r.MethodFunc(method, "/v1/policies/{token}/cap/execute", handler)
	r.MethodFunc(method, "/v1/policies/{token}/cap/cancel", handler)
	r.MethodFunc(method, "/v1/policies/{token}/authority", handler)
	r.MethodFunc(method, "/v1/policies/{token}/migrate", handler)
	r.MethodFunc(method, "/v1/policies/{token}", handler)
	r.MethodFunc(method, "/v1/policies", handler)

	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(middleware.WithCaller(req.Context(), caller))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleInitializePolicy(t *testing.T) {
	svc := new(MockGovernanceService)
	handler := NewGovernanceHandler(svc, zap.NewNop())

	token := mustIdentity(t, hexIdentity(0x01))
	exempt := mustIdentity(t, hexIdentity(0x02))
	authority := mustIdentity(t, hexIdentity(0x03))
	record := models.NewPolicyRecord(token, exempt, authority)

	svc.On("InitializePolicy", mock.Anything, token, exempt, authority, mock.Anything).Return(record, nil)

	w := governanceRequest(t, handler.HandleInitializePolicy, http.MethodPost, "/v1/policies", authority, map[string]string{
		"token":         hexIdentity(0x01),
		"exempt_wallet": hexIdentity(0x02),
		"authority":     hexIdentity(0x03),
	})

	assert.Equal(t, http.StatusCreated, w.Code)

	var response struct {
		Data PolicyResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, hexIdentity(0x01), response.Data.Token)
	assert.Equal(t, models.DefaultCapRaw, response.Data.CapRaw)
}

func TestHandleInitializePolicy_Conflict(t *testing.T) {
	svc := new(MockGovernanceService)
	handler := NewGovernanceHandler(svc, zap.NewNop())

	svc.On("InitializePolicy", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, services.ErrPolicyExists)

	w := governanceRequest(t, handler.HandleInitializePolicy, http.MethodPost, "/v1/policies", mustIdentity(t, hexIdentity(0x03)), map[string]string{
		"token":         hexIdentity(0x01),
		"exempt_wallet": hexIdentity(0x02),
		"authority":     hexIdentity(0x03),
	})

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleProposeCap(t *testing.T) {
	svc := new(MockGovernanceService)
	handler := NewGovernanceHandler(svc, zap.NewNop())

	token := mustIdentity(t, hexIdentity(0x01))
	caller := mustIdentity(t, hexIdentity(0x03))
	record := models.NewPolicyRecord(token, mustIdentity(t, hexIdentity(0x02)), caller)
	record.PendingUpdate = &models.PendingCapUpdate{NewCap: 10_000_000_000}

	svc.On("ProposeCap", mock.Anything, token, caller, uint64(10_000_000_000), mock.Anything).Return(record, nil)

	w := governanceRequest(t, handler.HandleProposeCap, http.MethodPost,
		"/v1/policies/"+hexIdentity(0x01)+"/cap/propose", caller,
		map[string]uint64{"new_cap": 10_000_000_000})

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Data PolicyResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.NotNil(t, response.Data.PendingUpdate)
	assert.Equal(t, uint64(10_000_000_000), response.Data.PendingUpdate.NewCap)
}

func TestHandleProposeCap_ZeroCapRejected(t *testing.T) {
	svc := new(MockGovernanceService)
	handler := NewGovernanceHandler(svc, zap.NewNop())

	w := governanceRequest(t, handler.HandleProposeCap, http.MethodPost,
		"/v1/policies/"+hexIdentity(0x01)+"/cap/propose", mustIdentity(t, hexIdentity(0x03)),
		map[string]uint64{"new_cap": 0})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "ProposeCap", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleExecuteCapUpdate_TimelockConflict(t *testing.T) {
	svc := new(MockGovernanceService)
	handler := NewGovernanceHandler(svc, zap.NewNop())

	svc.On("ExecuteCapUpdate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, services.ErrTimelockNotExpired)

	w := governanceRequest(t, handler.HandleExecuteCapUpdate, http.MethodPost,
		"/v1/policies/"+hexIdentity(0x01)+"/cap/execute", mustIdentity(t, hexIdentity(0x03)), nil)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleCancelCapUpdate_NotAuthority(t *testing.T) {
	svc := new(MockGovernanceService)
	handler := NewGovernanceHandler(svc, zap.NewNop())

	svc.On("CancelCapUpdate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, services.ErrUnauthorized)

	w := governanceRequest(t, handler.HandleCancelCapUpdate, http.MethodPost,
		"/v1/policies/"+hexIdentity(0x01)+"/cap/cancel", mustIdentity(t, hexIdentity(0x99)), nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandleMigrate_UnsupportedVersion(t *testing.T) {
	svc := new(MockGovernanceService)
	handler := NewGovernanceHandler(svc, zap.NewNop())

	svc.On("Migrate", mock.Anything, mock.Anything, mock.Anything, uint8(2), mock.Anything).
		Return(nil, services.ErrUnsupportedVersion)

	w := governanceRequest(t, handler.HandleMigrate, http.MethodPost,
		"/v1/policies/"+hexIdentity(0x01)+"/migrate", mustIdentity(t, hexIdentity(0x03)),
		map[string]uint8{"target_version": 2})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandleGetPolicy_NotFound(t *testing.T) {
	svc := new(MockGovernanceService)
	handler := NewGovernanceHandler(svc, zap.NewNop())

	svc.On("GetPolicy", mock.Anything, mock.Anything).Return(nil, services.ErrPolicyNotFound)

	w := governanceRequest(t, handler.HandleGetPolicy, http.MethodGet,
		"/v1/policies/"+hexIdentity(0x01), mustIdentity(t, hexIdentity(0x03)), nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetPolicy_BadTokenParam(t *testing.T) {
	svc := new(MockGovernanceService)
	handler := NewGovernanceHandler(svc, zap.NewNop())

	w := governanceRequest(t, handler.HandleGetPolicy, http.MethodGet,
		"/v1/policies/nothex", mustIdentity(t, hexIdentity(0x03)), nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "GetPolicy", mock.Anything, mock.Anything)
}
