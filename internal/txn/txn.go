// Package txn is the transaction manager: it wraps a
// closure in a serializable database transaction boundary and, for
// operations that cross a commit that cannot itself be made
// transactional (e.g. a downstream call), offers a two-phase Saga that
// falls back to the compensation registry on commit failure.
package txn

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/trace"

	"github.com/wfcore/engine/internal/compensation"
	"github.com/wfcore/engine/internal/domain"
	"github.com/wfcore/engine/internal/eventstore"
	"github.com/wfcore/engine/internal/tracing"
	"github.com/wfcore/engine/internal/wferrors"
)

// Op is the unit of work executeInTransaction runs inside the database
// transaction. It receives tx rather than the bare *bun.DB so every
// write it performs participates in the same commit/rollback boundary.
type Op func(ctx context.Context, tx bun.IDB) (any, error)

// TxParams configures one executeInTransaction call.
type TxParams struct {
	ExecutionID string
	NodeID string

	// Isolation overrides the default SERIALIZABLE isolation level.
	Isolation sql.IsolationLevel

	// Timeout overrides the manager's default transaction deadline.
	Timeout time.Duration

	// PreCommitValidator, if set, runs before Op and aborts the
	// transaction with TransactionValidation on failure.
	PreCommitValidator func(ctx context.Context) error

	// NullResultForbidden aborts with TransactionValidation if Op
	// returns a nil result.
	NullResultForbidden bool
}

// activeTxn is the in-memory bookkeeping entry for a transaction in
// flight, used for monitoring (getActiveTransactions) and the
// best-effort forceRollback signal.
type activeTxn struct {
	executionID string
	nodeID string
	startedAt time.Time
	forceRollback bool
}

// ActiveTransaction is the exported monitoring snapshot of an activeTxn.
type ActiveTransaction struct {
	TransactionID string
	ExecutionID string
	NodeID string
	StartedAt time.Time
}

// Manager runs operations inside serializable transactions and, for 2PC
// callers, coordinates with a compensation.Registry.
type Manager struct {
	db *bun.DB
	events eventstore.EventStore
	compensations *compensation.Registry
	defaultTimeout time.Duration
	tracer trace.Tracer

	mu sync.Mutex
	active map[string]*activeTxn
}

// New builds a Manager. defaultTimeout bounds every transaction unless
// TxParams.Timeout overrides it.
func New(db *bun.DB, events eventstore.EventStore, compensations *compensation.Registry, defaultTimeout time.Duration) *Manager {
	return &Manager{
		db: db,
		events: events,
		compensations: compensations,
		defaultTimeout: defaultTimeout,
		tracer: (*tracing.Provider)(nil).Tracer(),
		active: make(map[string]*activeTxn),
	}
}

// WithTracer sets the tracer used to emit a span around every
// ExecuteInTransaction call.
func (m *Manager) WithTracer(t trace.Tracer) *Manager {
	m.tracer = t
	return m
}

// ExecuteInTransaction generates a transaction id, appends
// TRANSACTION_STARTED, runs op inside a SERIALIZABLE (or
// caller-overridden) transaction with a deadline, commits or rolls
// back, and appends the matching terminal event.
func (m *Manager) ExecuteInTransaction(ctx context.Context, params TxParams, op Op) (any, string, error) {
	transactionID := fmt.Sprintf("txn-%s-%s-%d", params.ExecutionID, params.NodeID, time.Now().UnixNano())

	ctx, span := tracing.StartTransactionSpan(ctx, m.tracer, params.ExecutionID, params.NodeID)
	defer span.End()

	if _, err := eventstore.AppendNext(ctx, m.events, params.ExecutionID, &domain.ExecutionEvent{
		EventType: domain.EventTransactionStarted,
		NodeID: params.NodeID,
		TransactionID: transactionID,
		Status: "RUNNING",
	}); err != nil {
		return nil, transactionID, fmt.Errorf("append TRANSACTION_STARTED: %w", err)
	}

	timeout := params.Timeout
	if timeout == 0 {
		timeout = m.defaultTimeout
	}
	isolation := params.Isolation
	if isolation == 0 {
		isolation = sql.LevelSerializable
	}

	m.register(transactionID, params.ExecutionID, params.NodeID)
	defer m.unregister(transactionID)

	txCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var result any
	txErr := m.db.RunInTx(txCtx, &sql.TxOptions{Isolation: isolation}, func(ctx context.Context, tx bun.Tx) error {
		if params.PreCommitValidator != nil {
			if err := params.PreCommitValidator(ctx); err != nil {
				return &wferrors.TransactionValidation{Reason: err.Error()}
			}
		}
		if m.isForceRollback(transactionID) {
			return &wferrors.TransactionValidation{Reason: "transaction marked for forced rollback"}
		}
		r, err := op(ctx, tx)
		if err != nil {
			return err
		}
		if r == nil && params.NullResultForbidden {
			return &wferrors.TransactionValidation{Reason: "op returned a nil result"}
		}
		if m.isForceRollback(transactionID) {
			return &wferrors.TransactionValidation{Reason: "transaction marked for forced rollback"}
		}
		result = r
		return nil
	})

	if txErr != nil {
		tracing.RecordError(span, txErr)
		if _, err := eventstore.AppendNext(ctx, m.events, params.ExecutionID, &domain.ExecutionEvent{
			EventType: domain.EventTransactionRolledBack,
			NodeID: params.NodeID,
			TransactionID: transactionID,
			Status: "FAILED",
			ErrorSnapshot: txErr.Error(),
		}); err != nil {
			return nil, transactionID, fmt.Errorf("append TRANSACTION_ROLLED_BACK: %w", err)
		}
		return nil, transactionID, &wferrors.TransactionFailure{TransactionID: transactionID, Cause: txErr}
	}

	if _, err := eventstore.AppendNext(ctx, m.events, params.ExecutionID, &domain.ExecutionEvent{
		EventType: domain.EventTransactionCommitted,
		NodeID: params.NodeID,
		TransactionID: transactionID,
		Status: "COMPLETED",
	}); err != nil {
		return nil, transactionID, fmt.Errorf("append TRANSACTION_COMMITTED: %w", err)
	}

	return result, transactionID, nil
}

// TwoPhaseOp is a Saga: Prepare runs inside a transaction, Commit runs
// outside it against whatever external system the transaction can't
// itself cover.
type TwoPhaseOp struct {
	Prepare Op
	Commit func(ctx context.Context, prepared any) error
	HasCompensation bool
	CompensationHandler compensation.Handler
}

// ExecuteWithTwoPhaseCommit runs op.Prepare inside ExecuteInTransaction,
// registers a compensation handler if offered, then runs Commit outside
// the prepare transaction. A Commit failure triggers compensation; if
// compensation also fails the manager escalates to CompensationFailure,
// its only failure mode beyond an ordinary commit error.
func (m *Manager) ExecuteWithTwoPhaseCommit(ctx context.Context, params TxParams, op TwoPhaseOp) (any, error) {
	prepared, _, err := m.ExecuteInTransaction(ctx, params, op.Prepare)
	if err != nil {
		return nil, err
	}

	if op.HasCompensation && op.CompensationHandler != nil {
		m.compensations.RegisterInstance(params.ExecutionID, params.NodeID, op.CompensationHandler)
	}

	if err := op.Commit(ctx, prepared); err != nil {
		result, cerr := m.compensations.CompensateNode(ctx, params.ExecutionID, params.NodeID)
		if cerr != nil || result == nil || !result.Success {
			return nil, &wferrors.CompensationFailure{NodeID: params.NodeID, Cause: err}
		}
		return nil, fmt.Errorf("commit failed for node %q (compensated): %w", params.NodeID, err)
	}

	return prepared, nil
}

// CheckIdempotency delegates to the event store; callers must check
// before the side-effecting part of an Op to suppress retries.
func (m *Manager) CheckIdempotency(ctx context.Context, idempotencyKey string) (bool, error) {
	return m.events.ExistsByIdempotencyKey(ctx, idempotencyKey)
}

func (m *Manager) register(transactionID, executionID, nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[transactionID] = &activeTxn{executionID: executionID, nodeID: nodeID, startedAt: time.Now()}
}

// isForceRollback reports whether ForceRollback has marked transactionID
// since it was registered. Checked by ExecuteInTransaction's tx callback
// both before and after op runs, so a rollback request observed at either
// point aborts the commit.
func (m *Manager) isForceRollback(transactionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.active[transactionID]
	return ok && tx.forceRollback
}

func (m *Manager) unregister(transactionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, transactionID)
}

// GetActiveTransactions returns a monitoring snapshot of every
// transaction currently in flight.
func (m *Manager) GetActiveTransactions() []ActiveTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ActiveTransaction, 0, len(m.active))
	for id, tx := range m.active {
		out = append(out, ActiveTransaction{TransactionID: id, ExecutionID: tx.executionID, NodeID: tx.nodeID, StartedAt: tx.startedAt})
	}
	return out
}

// ForceRollback marks a transaction id for rollback on its next commit
// check. A transaction already committed or rolled back synchronously by
// the time this is called has nothing left to mark; this only affects a
// transaction an operator observes as still active in
// GetActiveTransactions.
func (m *Manager) ForceRollback(transactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.active[transactionID]
	if !ok {
		return fmt.Errorf("transaction %q is not active", transactionID)
	}
	tx.forceRollback = true
	return nil
}
