package ports

import (
	"context"
	"time"

	"github.com/labelhive/labelhive/internal/core/domain"
)

// Repository abstracts the item/assignment/pool store (DuckDB). Pairing,
// submission completion, suspension and pool closure are single transactions;
// partial application of any of them is the primary correctness hazard this
// interface guards against.
type Repository interface {
	// Pools
	SavePool(ctx context.Context, pool domain.WorkPool) error
	GetPool(ctx context.Context, id domain.PoolID) (domain.WorkPool, error)
	ListActivePools(ctx context.Context) ([]domain.WorkPool, error)
	UpdatePoolStatus(ctx context.Context, id domain.PoolID, status domain.PoolStatus, now time.Time) error

	// ClosePool terminates the pool, its live assignments and any unfinished
	// items in one transaction.
	ClosePool(ctx context.Context, id domain.PoolID, status domain.PoolStatus, now time.Time) error

	// Items
	InsertItems(ctx context.Context, items []domain.WorkItem) error
	GetItem(ctx context.Context, id domain.ItemID) (domain.WorkItem, error)
	ListPendingItems(ctx context.Context, poolID domain.PoolID, limit int) ([]domain.WorkItem, error)
	CountItems(ctx context.Context, poolID domain.PoolID) (int, error)
	MarkItemStarted(ctx context.Context, id domain.ItemID, workerID domain.WorkerID, now time.Time) error

	// Assignments
	GetAssignment(ctx context.Context, poolID domain.PoolID, workerID domain.WorkerID) (domain.Assignment, error)
	ListAssignments(ctx context.Context, poolID domain.PoolID) ([]domain.Assignment, error)
	SetAssignmentStatus(ctx context.Context, poolID domain.PoolID, workerID domain.WorkerID, status domain.AssignmentStatus, now time.Time) error

	// PairItem applies one pairing atomically. Returns domain.ErrConflict when
	// the item was taken concurrently or the worker's capacity check fails
	// inside the transaction.
	PairItem(ctx context.Context, p domain.Pairing) error

	// CompleteSubmission persists the item's submitted/graded state and the
	// assignment counter deltas atomically.
	CompleteSubmission(ctx context.Context, rec domain.SubmissionRecord) error

	// ReviewItem applies a manual verdict to a SUBMITTED or UNDER_REVIEW item.
	ReviewItem(ctx context.Context, rec domain.ReviewRecord) error

	// SuspendWorker pauses the worker's assignment and reverts their ASSIGNED
	// items to PENDING in one transaction. Returns the number of reverted items.
	SuspendWorker(ctx context.Context, poolID domain.PoolID, workerID domain.WorkerID, now time.Time) (int, error)
}

// WorkerDirectory is the external worker registry. The assignment core never
// writes worker profiles; it only reads snapshots and bumps accuracy counters.
type WorkerDirectory interface {
	FindEligible(ctx context.Context, req domain.WorkerRequirements) ([]domain.WorkerSnapshot, error)
	GetSnapshot(ctx context.Context, id domain.WorkerID) (domain.WorkerSnapshot, error)
	UpdateAccuracyCounters(ctx context.Context, id domain.WorkerID, completedDelta, approvedDelta int) error
}

// NotificationSink receives fire-and-forget assignment notices. Failures are
// dropped by implementations, never surfaced to the distributor.
type NotificationSink interface {
	NotifyAssigned(workerID domain.WorkerID, itemID domain.ItemID, poolID domain.PoolID)
}

// Clock is injected so elapsed-time and recency arithmetic is deterministic
// under test.
type Clock interface {
	Now() time.Time
}
