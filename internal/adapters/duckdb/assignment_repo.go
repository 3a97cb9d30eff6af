package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/labelhive/labelhive/internal/core/domain"
)

const assignmentColumns = `pool_id, worker_id, capacity, status, tasks_completed,
	tasks_approved, total_duration_ms, created_at, updated_at`

func (r *Repository) GetAssignment(ctx context.Context, poolID domain.PoolID, workerID domain.WorkerID) (domain.Assignment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE pool_id = ? AND worker_id = ?`,
		string(poolID), string(workerID))

	a, err := scanAssignment(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Assignment{}, fmt.Errorf("assignment for worker %s in pool %s: %w", workerID, poolID, domain.ErrWorkerNotFound)
		}
		return domain.Assignment{}, err
	}

	a.ItemIDs, err = r.heldItems(ctx, poolID, workerID)
	if err != nil {
		return domain.Assignment{}, err
	}
	return a, nil
}

func (r *Repository) ListAssignments(ctx context.Context, poolID domain.PoolID) ([]domain.Assignment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE pool_id = ? ORDER BY created_at`,
		string(poolID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(assignments) == 0 {
		return assignments, nil
	}

	held, err := r.heldItemsByWorker(ctx, poolID)
	if err != nil {
		return nil, err
	}
	for i := range assignments {
		assignments[i].ItemIDs = held[assignments[i].WorkerID]
	}
	return assignments, nil
}

func (r *Repository) SetAssignmentStatus(ctx context.Context, poolID domain.PoolID, workerID domain.WorkerID, status domain.AssignmentStatus, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE assignments SET status = ?, updated_at = ? WHERE pool_id = ? AND worker_id = ?`,
		string(status), now, string(poolID), string(workerID))
	if err != nil {
		return asConflict(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("assignment for worker %s in pool %s: %w", workerID, poolID, domain.ErrWorkerNotFound)
	}
	return nil
}

// heldItems returns the IDs of items currently occupying the worker's
// capacity in the pool, ordered by assignment time.
func (r *Repository) heldItems(ctx context.Context, poolID domain.PoolID, workerID domain.WorkerID) ([]domain.ItemID, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM work_items
		WHERE pool_id = ? AND assigned_to = ? AND status IN (?, ?)
		ORDER BY assigned_at`,
		string(poolID), string(workerID),
		string(domain.ItemStatusAssigned), string(domain.ItemStatusInProgress))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []domain.ItemID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, domain.ItemID(id))
	}
	return ids, rows.Err()
}

func (r *Repository) heldItemsByWorker(ctx context.Context, poolID domain.PoolID) (map[domain.WorkerID][]domain.ItemID, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT assigned_to, id FROM work_items
		WHERE pool_id = ? AND assigned_to IS NOT NULL AND status IN (?, ?)
		ORDER BY assigned_at`,
		string(poolID),
		string(domain.ItemStatusAssigned), string(domain.ItemStatusInProgress))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	held := make(map[domain.WorkerID][]domain.ItemID)
	for rows.Next() {
		var worker, id string
		if err := rows.Scan(&worker, &id); err != nil {
			return nil, err
		}
		w := domain.WorkerID(worker)
		held[w] = append(held[w], domain.ItemID(id))
	}
	return held, rows.Err()
}

func scanAssignment(row rowScanner) (domain.Assignment, error) {
	var a domain.Assignment
	var poolIDStr, workerIDStr, statusStr string

	err := row.Scan(
		&poolIDStr, &workerIDStr, &a.Capacity, &statusStr,
		&a.TasksCompleted, &a.TasksApproved, &a.TotalDurationMs,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return a, err
	}

	a.PoolID = domain.PoolID(poolIDStr)
	a.WorkerID = domain.WorkerID(workerIDStr)
	a.Status = domain.AssignmentStatus(statusStr)
	return a, nil
}
