package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/labelhive/labelhive/internal/core/domain"
)

const poolColumns = `id, name, required_skills, minimum_accuracy, max_tasks_per_user,
	max_concurrent_workers, batch_size, total_tasks, strategy, status, require_review,
	created_at, updated_at`

// SavePool upserts the pool row and replaces its probe templates.
func (r *Repository) SavePool(ctx context.Context, pool domain.WorkPool) error {
	skillsJSON, err := json.Marshal(pool.RequiredSkills)
	if err != nil {
		return fmt.Errorf("marshal required skills: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO work_pools (`+poolColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name           = excluded.name,
			status         = excluded.status,
			require_review = excluded.require_review,
			updated_at     = excluded.updated_at`,
		string(pool.ID), pool.Name, string(skillsJSON), pool.MinimumAccuracy,
		pool.MaxTasksPerUser, pool.MaxConcurrentWorkers, pool.BatchSize,
		pool.TotalTasks, string(pool.Strategy), string(pool.Status),
		pool.RequireReview, pool.CreatedAt, pool.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert pool: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM probe_templates WHERE pool_id = ?`, string(pool.ID)); err != nil {
		return fmt.Errorf("clear probes: %w", err)
	}
	for _, probe := range pool.Probes {
		input, err := marshalPayload(probe.Input)
		if err != nil {
			return err
		}
		expected, err := marshalPayload(probe.ExpectedAnswer)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO probe_templates (id, pool_id, input, expected_answer)
			VALUES (?, ?, ?, ?)`,
			probe.ID, string(pool.ID), input, expected,
		)
		if err != nil {
			return fmt.Errorf("insert probe %s: %w", probe.ID, err)
		}
	}

	return asConflict(tx.Commit())
}

func (r *Repository) GetPool(ctx context.Context, id domain.PoolID) (domain.WorkPool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+poolColumns+` FROM work_pools WHERE id = ?`, string(id))

	pool, err := scanPool(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.WorkPool{}, fmt.Errorf("pool %s: %w", id, domain.ErrPoolNotFound)
		}
		return domain.WorkPool{}, err
	}

	probes, err := r.listProbes(ctx, id)
	if err != nil {
		return domain.WorkPool{}, err
	}
	pool.Probes = probes
	return pool, nil
}

func (r *Repository) ListActivePools(ctx context.Context) ([]domain.WorkPool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+poolColumns+` FROM work_pools WHERE status = ? ORDER BY created_at`,
		string(domain.PoolStatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []domain.WorkPool
	for rows.Next() {
		pool, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, pool)
	}
	return pools, rows.Err()
}

func (r *Repository) UpdatePoolStatus(ctx context.Context, id domain.PoolID, status domain.PoolStatus, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE work_pools SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), now, string(id))
	if err != nil {
		return asConflict(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pool %s: %w", id, domain.ErrPoolNotFound)
	}
	return nil
}

// ClosePool terminates the pool, its live assignments and all unfinished
// items in one transaction.
func (r *Repository) ClosePool(ctx context.Context, id domain.PoolID, status domain.PoolStatus, now time.Time) error {
	assignmentStatus := domain.AssignmentStatusCompleted
	if status == domain.PoolStatusCancelled {
		assignmentStatus = domain.AssignmentStatusCancelled
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE work_pools SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), now, string(id))
	if err != nil {
		return fmt.Errorf("close pool: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pool %s: %w", id, domain.ErrPoolNotFound)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE assignments SET status = ?, updated_at = ?
		WHERE pool_id = ? AND status IN (?, ?)`,
		string(assignmentStatus), now, string(id),
		string(domain.AssignmentStatusActive), string(domain.AssignmentStatusPaused))
	if err != nil {
		return fmt.Errorf("close assignments: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE work_items SET status = ?, updated_at = ?
		WHERE pool_id = ? AND status NOT IN (?, ?, ?)`,
		string(domain.ItemStatusExpired), now, string(id),
		string(domain.ItemStatusApproved), string(domain.ItemStatusRejected),
		string(domain.ItemStatusExpired))
	if err != nil {
		return fmt.Errorf("expire items: %w", err)
	}

	return asConflict(tx.Commit())
}

func (r *Repository) listProbes(ctx context.Context, poolID domain.PoolID) ([]domain.ProbeTemplate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, input, expected_answer FROM probe_templates WHERE pool_id = ? ORDER BY id`,
		string(poolID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var probes []domain.ProbeTemplate
	for rows.Next() {
		var p domain.ProbeTemplate
		var input, expected string
		if err := rows.Scan(&p.ID, &input, &expected); err != nil {
			return nil, err
		}
		p.PoolID = poolID
		if p.Input, err = unmarshalPayload(input); err != nil {
			return nil, err
		}
		if p.ExpectedAnswer, err = unmarshalPayload(expected); err != nil {
			return nil, err
		}
		probes = append(probes, p)
	}
	return probes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPool(row rowScanner) (domain.WorkPool, error) {
	var p domain.WorkPool
	var idStr, skillsJSON, strategyStr, statusStr string

	err := row.Scan(
		&idStr, &p.Name, &skillsJSON, &p.MinimumAccuracy, &p.MaxTasksPerUser,
		&p.MaxConcurrentWorkers, &p.BatchSize, &p.TotalTasks, &strategyStr,
		&statusStr, &p.RequireReview, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}

	p.ID = domain.PoolID(idStr)
	p.Strategy = domain.AssignmentStrategy(strategyStr)
	p.Status = domain.PoolStatus(statusStr)
	if skillsJSON != "" {
		if err := json.Unmarshal([]byte(skillsJSON), &p.RequiredSkills); err != nil {
			return p, fmt.Errorf("unmarshal required skills: %w", err)
		}
	}
	return p, nil
}
