package domain

import "time"

// SkippedReason explains why a distribution cycle assigned nothing.
// Callers use Retryable to distinguish "try again later" from
// "fix the pool configuration".
type SkippedReason string

const (
	SkippedReasonNone       SkippedReason = ""
	SkippedReasonNoWorkers  SkippedReason = "no_eligible_workers"
	SkippedReasonNoItems    SkippedReason = "no_pending_items"
	SkippedReasonNotActive  SkippedReason = "pool_not_active"
	SkippedReasonManualPool SkippedReason = "manual_pool"
)

// Retryable reports whether the condition is transient.
func (r SkippedReason) Retryable() bool {
	return r == SkippedReasonNoWorkers || r == SkippedReasonNoItems
}

// CycleResult is the outcome of one distribution cycle.
type CycleResult struct {
	PoolID        PoolID        `json:"pool_id"`
	AssignedCount int           `json:"assigned_count"`
	SkippedReason SkippedReason `json:"skipped_reason,omitempty"`
}

// ItemResult is returned to the caller after a submission is processed.
type ItemResult struct {
	ItemID     ItemID     `json:"item_id"`
	Status     ItemStatus `json:"status"`
	Score      *int       `json:"score,omitempty"`
	DurationMs int64      `json:"duration_ms"`
	Backfilled *ItemID    `json:"backfilled,omitempty"`
}

// Pairing describes one atomic item-to-worker pairing. The repository applies
// it as a single transaction: flip the item to ASSIGNED (with QC substitution
// when Probe is set), upsert the worker's assignment record and re-check the
// held-item capacity inside the transaction.
type Pairing struct {
	ItemID     ItemID
	PoolID     PoolID
	WorkerID   WorkerID
	Capacity   int            // assignment capacity when a new record is created
	MaxHeld    int            // min(batchSize, maxTasksPerUser - completedInPool)
	Probe      *ProbeTemplate // non-nil substitutes the probe for the real content
	AssignedAt time.Time
}

// SubmissionRecord is the atomic persistence unit for a processed
// submission: the item's final state plus the assignment counter deltas.
type SubmissionRecord struct {
	ItemID      ItemID
	PoolID      PoolID
	WorkerID    WorkerID
	Submission  Payload
	SubmittedAt time.Time
	DurationMs  int64
	Status      ItemStatus // SUBMITTED, UNDER_REVIEW, APPROVED or REJECTED
	Score       *int
	ReviewedAt  *time.Time
	ReviewAuto  bool
}

// Approved reports whether the submission was auto-approved.
func (s SubmissionRecord) Approved() bool {
	return s.Status == ItemStatusApproved
}

// ReviewRecord is the manual-review counterpart applied to SUBMITTED or
// UNDER_REVIEW items by the external review surface.
type ReviewRecord struct {
	ItemID     ItemID
	PoolID     PoolID
	WorkerID   WorkerID
	Approved   bool
	Score      *int
	ReviewedAt time.Time
}
