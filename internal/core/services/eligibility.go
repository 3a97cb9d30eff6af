package services

import (
	"log/slog"

	"github.com/labelhive/labelhive/internal/core/domain"
)

// EligibilityFilter decides which directory workers qualify for a pool.
// It is pure over its inputs: snapshots come from the directory, assignment
// records from the repository, and no side effects are performed.
type EligibilityFilter struct {
	logger *slog.Logger
}

func NewEligibilityFilter(logger *slog.Logger) *EligibilityFilter {
	return &EligibilityFilter{logger: logger}
}

// Eligible returns the subset of workers qualifying for the pool, preserving
// the directory's ordering. An empty result is a normal condition that halts
// distribution for the cycle, not an error.
//
// A worker qualifies when all of the following hold:
//   - verified account and active profile
//   - skill intersection with the pool's requirements is non-empty, or the
//     pool has no skill requirement
//   - historical accuracy meets the pool minimum (no history passes)
//   - their per-pool assignment is not paused/terminated and they still have
//     held-item headroom under min(batchSize, maxTasksPerUser - completed)
func (f *EligibilityFilter) Eligible(
	pool domain.WorkPool,
	workers []domain.WorkerSnapshot,
	assignments map[domain.WorkerID]domain.Assignment,
) []domain.WorkerSnapshot {
	eligible := make([]domain.WorkerSnapshot, 0, len(workers))

	for _, w := range workers {
		if !w.Verified || !w.Active {
			continue
		}
		if pool.HasSkillRequirement() && w.SkillOverlap(pool.RequiredSkills) == 0 {
			continue
		}
		if acc, ok := w.Accuracy(); ok && pool.MinimumAccuracy > 0 && acc < pool.MinimumAccuracy {
			continue
		}

		if a, ok := assignments[w.ID]; ok {
			if a.Status != domain.AssignmentStatusActive {
				continue
			}
			if a.TasksCompleted >= pool.MaxTasksPerUser {
				continue
			}
			if a.Held() >= pool.HeldCapacity(a.TasksCompleted) {
				continue
			}
		}

		eligible = append(eligible, w)
	}

	f.logger.Debug("eligibility filter applied",
		"pool_id", pool.ID,
		"candidates", len(workers),
		"eligible", len(eligible),
	)
	return eligible
}
