package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/labelhive/labelhive/internal/core/domain"
)

// PairItem applies one item-to-worker pairing as a single transaction: the
// held-item capacity is re-checked, the assignment record is created or
// touched, and the item flips PENDING -> ASSIGNED with QC substitution when a
// probe is attached. Any precondition raced away by a concurrent writer
// surfaces as domain.ErrConflict and leaves nothing applied.
func (r *Repository) PairItem(ctx context.Context, p domain.Pairing) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Capacity re-check inside the transaction.
	var held int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM work_items
		WHERE pool_id = ? AND assigned_to = ? AND status IN (?, ?)`,
		string(p.PoolID), string(p.WorkerID),
		string(domain.ItemStatusAssigned), string(domain.ItemStatusInProgress),
	).Scan(&held)
	if err != nil {
		return fmt.Errorf("count held items: %w", err)
	}
	if held >= p.MaxHeld {
		return fmt.Errorf("worker %s at capacity in pool %s: %w", p.WorkerID, p.PoolID, domain.ErrConflict)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO assignments (pool_id, worker_id, capacity, status,
		                         tasks_completed, tasks_approved, total_duration_ms,
		                         created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, 0, 0, ?, ?)
		ON CONFLICT (pool_id, worker_id) DO UPDATE SET updated_at = excluded.updated_at`,
		string(p.PoolID), string(p.WorkerID), p.Capacity,
		string(domain.AssignmentStatusActive), p.AssignedAt, p.AssignedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert assignment: %w", err)
	}

	// A paused or terminated assignment must not receive work.
	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM assignments WHERE pool_id = ? AND worker_id = ?`,
		string(p.PoolID), string(p.WorkerID)).Scan(&status)
	if err != nil {
		return fmt.Errorf("read assignment status: %w", err)
	}
	if domain.AssignmentStatus(status) != domain.AssignmentStatusActive {
		return fmt.Errorf("assignment for worker %s is %s: %w", p.WorkerID, status, domain.ErrConflict)
	}

	var res sql.Result
	if p.Probe != nil {
		input, err := marshalPayload(p.Probe.Input)
		if err != nil {
			return err
		}
		expected, err := marshalPayload(p.Probe.ExpectedAnswer)
		if err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx, `
			UPDATE work_items SET
				status = ?, assigned_to = ?, assigned_at = ?, updated_at = ?,
				is_quality_check = true, input = ?, expected_answer = ?
			WHERE id = ? AND pool_id = ? AND status = ?`,
			string(domain.ItemStatusAssigned), string(p.WorkerID), p.AssignedAt, p.AssignedAt,
			input, expected,
			string(p.ItemID), string(p.PoolID), string(domain.ItemStatusPending))
		if err != nil {
			return fmt.Errorf("assign probe item: %w", err)
		}
	} else {
		// Non-probe pairing restores the creation-time content, undoing any
		// QC substitution a previous cycle applied before the item was
		// reclaimed: pending items are re-evaluated every cycle.
		res, err = tx.ExecContext(ctx, `
			UPDATE work_items SET
				status = ?, assigned_to = ?, assigned_at = ?, updated_at = ?,
				is_quality_check = false, input = source_input, expected_answer = NULL
			WHERE id = ? AND pool_id = ? AND status = ?`,
			string(domain.ItemStatusAssigned), string(p.WorkerID), p.AssignedAt, p.AssignedAt,
			string(p.ItemID), string(p.PoolID), string(domain.ItemStatusPending))
		if err != nil {
			return fmt.Errorf("assign item: %w", err)
		}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("item %s no longer pending: %w", p.ItemID, domain.ErrConflict)
	}

	return asConflict(tx.Commit())
}

// CompleteSubmission persists the item's submitted (and possibly graded)
// state together with the assignment counter deltas.
func (r *Repository) CompleteSubmission(ctx context.Context, rec domain.SubmissionRecord) error {
	submission, err := marshalPayload(rec.Submission)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		UPDATE work_items SET
			status = ?, submission = ?, submitted_at = ?, duration_ms = ?,
			reviewed_at = ?, review_auto = ?, score = ?, updated_at = ?
		WHERE id = ? AND assigned_to = ? AND status IN (?, ?)`,
		string(rec.Status), submission, rec.SubmittedAt, rec.DurationMs,
		nullTime(rec.ReviewedAt), rec.ReviewAuto, nullInt(rec.Score), rec.SubmittedAt,
		string(rec.ItemID), string(rec.WorkerID),
		string(domain.ItemStatusAssigned), string(domain.ItemStatusInProgress))
	if err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("item %s not held by worker %s: %w", rec.ItemID, rec.WorkerID, domain.ErrConflict)
	}

	approvedDelta := 0
	if rec.Approved() {
		approvedDelta = 1
	}
	// updated_at is bound first: DuckDB cannot infer a parameter's type when
	// it follows an arithmetic "col + ?" parameter in the same SET list.
	_, err = tx.ExecContext(ctx, `
		UPDATE assignments SET
			updated_at        = ?,
			tasks_completed   = tasks_completed + 1,
			tasks_approved    = tasks_approved + ?,
			total_duration_ms = total_duration_ms + ?
		WHERE pool_id = ? AND worker_id = ?`,
		rec.SubmittedAt, approvedDelta, rec.DurationMs,
		string(rec.PoolID), string(rec.WorkerID))
	if err != nil {
		return fmt.Errorf("update assignment counters: %w", err)
	}

	return asConflict(tx.Commit())
}

// ReviewItem applies a manual verdict to a SUBMITTED or UNDER_REVIEW item.
func (r *Repository) ReviewItem(ctx context.Context, rec domain.ReviewRecord) error {
	status := domain.ItemStatusRejected
	if rec.Approved {
		status = domain.ItemStatusApproved
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		UPDATE work_items SET
			status = ?, reviewed_at = ?, review_auto = false, score = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(status), rec.ReviewedAt, nullInt(rec.Score), rec.ReviewedAt,
		string(rec.ItemID),
		string(domain.ItemStatusSubmitted), string(domain.ItemStatusUnderReview))
	if err != nil {
		return fmt.Errorf("record review: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("item %s not reviewable: %w", rec.ItemID, domain.ErrConflict)
	}

	if rec.Approved {
		_, err = tx.ExecContext(ctx, `
			UPDATE assignments SET tasks_approved = tasks_approved + 1, updated_at = ?
			WHERE pool_id = ? AND worker_id = ?`,
			rec.ReviewedAt, string(rec.PoolID), string(rec.WorkerID))
		if err != nil {
			return fmt.Errorf("update assignment counters: %w", err)
		}
	}

	return asConflict(tx.Commit())
}

// SuspendWorker pauses the assignment and reverts the worker's ASSIGNED items
// to PENDING in the same transaction, so the worker is never observably
// PAUSED while still holding unstarted items. IN_PROGRESS items stay with the
// worker. The operation is idempotent for already-paused assignments.
func (r *Repository) SuspendWorker(ctx context.Context, poolID domain.PoolID, workerID domain.WorkerID, now time.Time) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		UPDATE assignments SET status = ?, updated_at = ?
		WHERE pool_id = ? AND worker_id = ? AND status IN (?, ?)`,
		string(domain.AssignmentStatusPaused), now,
		string(poolID), string(workerID),
		string(domain.AssignmentStatusActive), string(domain.AssignmentStatusPaused))
	if err != nil {
		return 0, fmt.Errorf("pause assignment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var status string
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM assignments WHERE pool_id = ? AND worker_id = ?`,
			string(poolID), string(workerID)).Scan(&status)
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("assignment for worker %s in pool %s: %w", workerID, poolID, domain.ErrWorkerNotFound)
		}
		if err != nil {
			return 0, fmt.Errorf("read assignment status: %w", err)
		}
		return 0, fmt.Errorf("assignment for worker %s is %s: %w", workerID, status, domain.ErrInvalidState)
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE work_items SET
			status = ?, assigned_to = NULL, assigned_at = NULL, updated_at = ?
		WHERE pool_id = ? AND assigned_to = ? AND status = ?`,
		string(domain.ItemStatusPending), now,
		string(poolID), string(workerID), string(domain.ItemStatusAssigned))
	if err != nil {
		return 0, fmt.Errorf("revert items: %w", err)
	}
	released, _ := res.RowsAffected()

	if err := asConflict(tx.Commit()); err != nil {
		return 0, err
	}
	return int(released), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt(i *int) sql.NullInt32 {
	if i == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*i), Valid: true}
}
