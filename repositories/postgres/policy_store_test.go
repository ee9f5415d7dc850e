package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tokenops/capguard/models"
	"github.com/tokenops/capguard/services"
	"go.uber.org/zap"
)

func newMockStore(t *testing.T) (*PolicyStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := &PolicyStore{
		db:     &DB{DB: db, logger: zap.NewNop()},
		logger: zap.NewNop(),
	}
	return store, mock
}

func testIdentity(b byte) models.Identity {
	var id models.Identity
	for i := range id {
		id[i] = b
	}
	return id
}

func TestPolicyStore_Create(t *testing.T) {
	store, mock := newMockStore(t)
	record := models.NewPolicyRecord(testIdentity(0x01), testIdentity(0x02), testIdentity(0x03))

	mock.ExpectExec("INSERT INTO policy_records").
		WithArgs(record.Token, record.MarshalPayload(), int16(record.SchemaVersion), record.CreatedAt, record.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Create(context.Background(), record)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyStore_CreateDuplicate(t *testing.T) {
	store, mock := newMockStore(t)
	record := models.NewPolicyRecord(testIdentity(0x01), testIdentity(0x02), testIdentity(0x03))

	mock.ExpectExec("INSERT INTO policy_records").
		WillReturnError(&pq.Error{Code: "23505"})

	err := store.Create(context.Background(), record)
	require.Error(t, err)
	assert.True(t, services.IsConflictError(err))
}

func TestPolicyStore_GetRoundTrip(t *testing.T) {
	store, mock := newMockStore(t)
	token := testIdentity(0x01)

	record := models.NewPolicyRecord(token, testIdentity(0x02), testIdentity(0x03))
	record.PendingUpdate = &models.PendingCapUpdate{
		NewCap:        10_000_000_000,
		ProposedAt:    1_700_000_000,
		ExecutionTime: 1_700_172_800,
	}

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"token", "payload", "created_at", "updated_at"}).
		AddRow(token[:], record.MarshalPayload(), now, now)

	mock.ExpectQuery("SELECT token, payload, created_at, updated_at FROM policy_records").
		WithArgs(token).
		WillReturnRows(rows)

	got, err := store.Get(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, token, got.Token)
	assert.Equal(t, record.CapRaw, got.CapRaw)
	assert.Equal(t, record.ExemptWallet, got.ExemptWallet)
	assert.Equal(t, record.GovernanceAuthority, got.GovernanceAuthority)
	require.NotNil(t, got.PendingUpdate)
	assert.Equal(t, *record.PendingUpdate, *got.PendingUpdate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyStore_GetNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	token := testIdentity(0x01)

	mock.ExpectQuery("SELECT token, payload, created_at, updated_at FROM policy_records").
		WithArgs(token).
		WillReturnRows(sqlmock.NewRows([]string{"token", "payload", "created_at", "updated_at"}))

	_, err := store.Get(context.Background(), token)
	require.Error(t, err)
	assert.True(t, services.IsNotFoundError(err))
}

func TestPolicyStore_GetForUpdateLocksRow(t *testing.T) {
	store, mock := newMockStore(t)
	token := testIdentity(0x01)
	record := models.NewPolicyRecord(token, testIdentity(0x02), testIdentity(0x03))

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"token", "payload", "created_at", "updated_at"}).
		AddRow(token[:], record.MarshalPayload(), now, now)

	mock.ExpectQuery("SELECT token, payload, created_at, updated_at FROM policy_records WHERE token = \\$1 FOR UPDATE").
		WithArgs(token).
		WillReturnRows(rows)

	got, err := store.GetForUpdate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, record.CapRaw, got.CapRaw)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyStore_UpdateNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	record := models.NewPolicyRecord(testIdentity(0x01), testIdentity(0x02), testIdentity(0x03))

	mock.ExpectExec("UPDATE policy_records").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Update(context.Background(), record)
	require.Error(t, err)
	assert.True(t, services.IsNotFoundError(err))
}
