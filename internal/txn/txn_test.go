package txn

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/wfcore/engine/internal/compensation"
	"github.com/wfcore/engine/internal/domain"
	"github.com/wfcore/engine/internal/logger"
	"github.com/wfcore/engine/internal/wferrors"
)

func newTestManager(t *testing.T) (*Manager, sqlmock.Sqlmock, *memEventStore) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	bunDB := bun.NewDB(sqlDB, pgdialect.New())
	events := newMemEventStore()
	compensations := compensation.New(events, logger.Nop())
	m := New(bunDB, events, compensations, 5*time.Second)
	return m, mock, events
}

func TestExecuteInTransaction_CommitsAndAppendsLifecycleEvents(t *testing.T) {
	t.Parallel()
	m, mock, events := newTestManager(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	result, txnID, err := m.ExecuteInTransaction(context.Background(), TxParams{ExecutionID: "exec-1", NodeID: "n1"},
		func(ctx context.Context, tx bun.IDB) (any, error) {
			return "ok", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.NotEmpty(t, txnID)
	assert.NoError(t, mock.ExpectationsWereMet())

	timeline, err := events.Timeline(context.Background(), "exec-1")
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	assert.Equal(t, domain.EventTransactionStarted, timeline[0].EventType)
	assert.Equal(t, domain.EventTransactionCommitted, timeline[1].EventType)
}

func TestExecuteInTransaction_RollsBackAndWrapsOpError(t *testing.T) {
	t.Parallel()
	m, mock, events := newTestManager(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	opErr := errors.New("handler exploded")
	_, txnID, err := m.ExecuteInTransaction(context.Background(), TxParams{ExecutionID: "exec-1", NodeID: "n1"},
		func(ctx context.Context, tx bun.IDB) (any, error) {
			return nil, opErr
		})

	var txnFailure *wferrors.TransactionFailure
	require.ErrorAs(t, err, &txnFailure)
	assert.Equal(t, txnID, txnFailure.TransactionID)
	assert.ErrorIs(t, err, opErr)

	timeline, err := events.Timeline(context.Background(), "exec-1")
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	assert.Equal(t, domain.EventTransactionRolledBack, timeline[1].EventType)
}

func TestExecuteInTransaction_PreCommitValidatorFailureRollsBackWithoutRunningOp(t *testing.T) {
	t.Parallel()
	m, mock, _ := newTestManager(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	opRan := false
	_, _, err := m.ExecuteInTransaction(context.Background(), TxParams{
		ExecutionID: "exec-1",
		NodeID: "n1",
		PreCommitValidator: func(ctx context.Context) error {
			return errors.New("balance check failed")
		},
	}, func(ctx context.Context, tx bun.IDB) (any, error) {
		opRan = true
		return "ok", nil
	})

	var txnFailure *wferrors.TransactionFailure
	require.ErrorAs(t, err, &txnFailure)
	var txnValidation *wferrors.TransactionValidation
	require.ErrorAs(t, err, &txnValidation)
	assert.False(t, opRan)
}

func TestExecuteInTransaction_NullResultForbiddenRejectsNilOpResult(t *testing.T) {
	t.Parallel()
	m, mock, _ := newTestManager(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, _, err := m.ExecuteInTransaction(context.Background(), TxParams{
		ExecutionID: "exec-1",
		NodeID: "n1",
		NullResultForbidden: true,
	}, func(ctx context.Context, tx bun.IDB) (any, error) {
		return nil, nil
	})

	var txnValidation *wferrors.TransactionValidation
	require.ErrorAs(t, err, &txnValidation)
}

func TestExecuteInTransaction_ForceRollbackAbortsAfterOpSucceeds(t *testing.T) {
	t.Parallel()
	m, mock, _ := newTestManager(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	ready := make(chan struct{})
	proceed := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		_, _, err := m.ExecuteInTransaction(context.Background(), TxParams{ExecutionID: "exec-1", NodeID: "n1"},
			func(ctx context.Context, tx bun.IDB) (any, error) {
				close(ready)
				<-proceed
				return "ok", nil
			})
		done <- err
	}()

	<-ready
	var active []ActiveTransaction
	require.Eventually(t, func() bool {
		active = m.GetActiveTransactions()
		return len(active) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, m.ForceRollback(active[0].TransactionID))
	close(proceed)

	err := <-done
	var txnValidation *wferrors.TransactionValidation
	assert.ErrorAs(t, err, &txnValidation)
	assert.Empty(t, m.GetActiveTransactions())
}

func TestExecuteWithTwoPhaseCommit_CommitSucceeds(t *testing.T) {
	t.Parallel()
	m, mock, _ := newTestManager(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	committed := false
	result, err := m.ExecuteWithTwoPhaseCommit(context.Background(), TxParams{ExecutionID: "exec-1", NodeID: "n1"}, TwoPhaseOp{
		Prepare: func(ctx context.Context, tx bun.IDB) (any, error) { return "prepared", nil },
		Commit: func(ctx context.Context, prepared any) error {
			committed = true
			assert.Equal(t, "prepared", prepared)
			return nil
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "prepared", result)
	assert.True(t, committed)
}

func TestExecuteWithTwoPhaseCommit_CommitFailureTriggersSuccessfulCompensation(t *testing.T) {
	t.Parallel()
	m, mock, events := newTestManager(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := events.Append(context.Background(), &domain.ExecutionEvent{
		ExecutionID: "exec-1",
		SequenceNumber: 1,
		EventType: domain.EventNodeCompleted,
		NodeID: "n1",
		NodeType: domain.NodeTask,
		IdempotencyKey: "seed-1",
	})
	require.NoError(t, err)

	commitErr := errors.New("downstream commit unreachable")
	compensated := false
	_, err = m.ExecuteWithTwoPhaseCommit(context.Background(), TxParams{ExecutionID: "exec-1", NodeID: "n1"}, TwoPhaseOp{
		Prepare: func(ctx context.Context, tx bun.IDB) (any, error) { return "prepared", nil },
		Commit: func(ctx context.Context, prepared any) error { return commitErr },
		HasCompensation: true,
		CompensationHandler: func(ctx context.Context, executionID, nodeID string, nodeType domain.NodeType, originalOutput domain.Vars) error {
			compensated = true
			assert.Equal(t, "n1", nodeID)
			return nil
		},
	})

	require.Error(t, err)
	assert.True(t, compensated)
	assert.ErrorIs(t, err, commitErr)
	var compFailure *wferrors.CompensationFailure
	assert.False(t, errors.As(err, &compFailure))
}

func TestExecuteWithTwoPhaseCommit_CompensationFailureEscalates(t *testing.T) {
	t.Parallel()
	m, mock, events := newTestManager(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := events.Append(context.Background(), &domain.ExecutionEvent{
		ExecutionID: "exec-1",
		SequenceNumber: 1,
		EventType: domain.EventNodeCompleted,
		NodeID: "n1",
		NodeType: domain.NodeTask,
		IdempotencyKey: "seed-1",
	})
	require.NoError(t, err)

	commitErr := errors.New("downstream commit unreachable")
	_, err = m.ExecuteWithTwoPhaseCommit(context.Background(), TxParams{ExecutionID: "exec-1", NodeID: "n1"}, TwoPhaseOp{
		Prepare: func(ctx context.Context, tx bun.IDB) (any, error) { return "prepared", nil },
		Commit: func(ctx context.Context, prepared any) error { return commitErr },
		HasCompensation: true,
		CompensationHandler: func(ctx context.Context, executionID, nodeID string, nodeType domain.NodeType, originalOutput domain.Vars) error {
			return errors.New("compensation handler unreachable too")
		},
	})

	var compFailure *wferrors.CompensationFailure
	require.ErrorAs(t, err, &compFailure)
	assert.Equal(t, "n1", compFailure.NodeID)
	assert.ErrorIs(t, err, commitErr)
}
