package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tokenops/capguard/repositories"
	"go.uber.org/zap"
)

func newMockTxManager(t *testing.T) (repositories.TransactionManager, *DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	wrapped := &DB{DB: db, logger: zap.NewNop()}
	return NewTransactionManager(wrapped, zap.NewNop()), wrapped, mock
}

func TestInTransaction_CommitsOnSuccess(t *testing.T) {
	tm, db, mock := newMockTxManager(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE policy_records").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := tm.InTransaction(context.Background(), func(txCtx context.Context, _ repositories.Transaction) error {
		// The executor resolved from txCtx must be the transaction, not the
		// pool, or the ordered expectations fail
		_, execErr := GetExecutor(txCtx, db).ExecContext(txCtx,
			"UPDATE policy_records SET payload = $2 WHERE token = $1", "tok", "payload")
		return execErr
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTransaction_RollsBackOnError(t *testing.T) {
	tm, _, mock := newMockTxManager(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("audit insert failed")
	err := tm.InTransaction(context.Background(), func(context.Context, repositories.Transaction) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetExecutor_FallsBackToPool(t *testing.T) {
	_, db, _ := newMockTxManager(t)

	assert.Same(t, db.DB, GetExecutor(context.Background(), db))
}
