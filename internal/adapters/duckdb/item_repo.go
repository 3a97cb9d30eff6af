package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/labelhive/labelhive/internal/core/domain"
)

const itemColumns = `id, pool_id, sequence, batch_id, input, source_input, status,
	assigned_to, assigned_at, is_quality_check, expected_answer, submission,
	submitted_at, duration_ms, reviewed_at, review_auto, score, created_at, updated_at`

func (r *Repository) InsertItems(ctx context.Context, items []domain.WorkItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, item := range items {
		input, err := marshalPayload(item.Input)
		if err != nil {
			return err
		}
		source := input
		if !item.SourceInput.IsZero() {
			if source, err = marshalPayload(item.SourceInput); err != nil {
				return err
			}
		}
		expected, err := marshalPayloadPtr(item.ExpectedAnswer)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO work_items (id, pool_id, sequence, batch_id, input, source_input,
			                        status, is_quality_check, expected_answer,
			                        created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(item.ID), string(item.PoolID), item.Sequence, item.BatchID,
			input, source, string(item.Status), item.IsQualityCheck, expected,
			item.CreatedAt, item.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert item %s: %w", item.ID, err)
		}
	}

	return asConflict(tx.Commit())
}

func (r *Repository) GetItem(ctx context.Context, id domain.ItemID) (domain.WorkItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM work_items WHERE id = ?`, string(id))

	item, err := scanItem(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.WorkItem{}, fmt.Errorf("item %s: %w", id, domain.ErrItemNotFound)
		}
		return domain.WorkItem{}, err
	}
	return item, nil
}

func (r *Repository) ListPendingItems(ctx context.Context, poolID domain.PoolID, limit int) ([]domain.WorkItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM work_items
		 WHERE pool_id = ? AND status = ?
		 ORDER BY sequence LIMIT ?`,
		string(poolID), string(domain.ItemStatusPending), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.WorkItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *Repository) CountItems(ctx context.Context, poolID domain.PoolID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM work_items WHERE pool_id = ?`, string(poolID)).Scan(&count)
	return count, err
}

// MarkItemStarted records the ASSIGNED -> IN_PROGRESS transition, guarded by
// ownership: started items are not reclaimed by suspension.
func (r *Repository) MarkItemStarted(ctx context.Context, id domain.ItemID, workerID domain.WorkerID, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE work_items SET status = ?, updated_at = ?
		WHERE id = ? AND assigned_to = ? AND status = ?`,
		string(domain.ItemStatusInProgress), now,
		string(id), string(workerID), string(domain.ItemStatusAssigned))
	if err != nil {
		return asConflict(err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	// Distinguish the failure for the caller.
	item, err := r.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if item.AssignedTo == nil || *item.AssignedTo != workerID {
		return fmt.Errorf("item %s, worker %s: %w", id, workerID, domain.ErrNotAssigned)
	}
	return fmt.Errorf("item %s is %s: %w", id, item.Status, domain.ErrInvalidState)
}

func scanItem(row rowScanner) (domain.WorkItem, error) {
	var item domain.WorkItem
	var idStr, poolIDStr, statusStr, inputStr, sourceStr string
	var assignedTo sql.NullString
	var assignedAt, submittedAt, reviewedAt sql.NullTime
	var expected, submission sql.NullString
	var score sql.NullInt32

	err := row.Scan(
		&idStr, &poolIDStr, &item.Sequence, &item.BatchID, &inputStr, &sourceStr,
		&statusStr, &assignedTo, &assignedAt, &item.IsQualityCheck, &expected,
		&submission, &submittedAt, &item.DurationMs, &reviewedAt, &item.ReviewAuto,
		&score, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return item, err
	}

	item.ID = domain.ItemID(idStr)
	item.PoolID = domain.PoolID(poolIDStr)
	item.Status = domain.ItemStatus(statusStr)

	if item.Input, err = unmarshalPayload(inputStr); err != nil {
		return item, err
	}
	if item.SourceInput, err = unmarshalPayload(sourceStr); err != nil {
		return item, err
	}
	if item.ExpectedAnswer, err = unmarshalPayloadPtr(expected); err != nil {
		return item, err
	}
	if item.Submission, err = unmarshalPayloadPtr(submission); err != nil {
		return item, err
	}

	if assignedTo.Valid {
		w := domain.WorkerID(assignedTo.String)
		item.AssignedTo = &w
	}
	if assignedAt.Valid {
		t := assignedAt.Time
		item.AssignedAt = &t
	}
	if submittedAt.Valid {
		t := submittedAt.Time
		item.SubmittedAt = &t
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		item.ReviewedAt = &t
	}
	if score.Valid {
		s := int(score.Int32)
		item.Score = &s
	}
	return item, nil
}
