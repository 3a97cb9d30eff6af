// Package directory provides an in-memory WorkerDirectory. The real worker
// registry lives in the surrounding marketplace; this implementation backs
// the dispatcher binary and tests.
package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/labelhive/labelhive/internal/core/domain"
	"github.com/labelhive/labelhive/internal/core/ports"
)

type Directory struct {
	mu      sync.RWMutex
	workers map[domain.WorkerID]domain.WorkerSnapshot
	order   []domain.WorkerID // registration order, kept for deterministic listings
}

var _ ports.WorkerDirectory = (*Directory)(nil)

func New() *Directory {
	return &Directory{workers: make(map[domain.WorkerID]domain.WorkerSnapshot)}
}

// Register adds or replaces a worker snapshot.
func (d *Directory) Register(w domain.WorkerSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.workers[w.ID]; !exists {
		d.order = append(d.order, w.ID)
	}
	d.workers[w.ID] = w
}

// FindEligible returns verified, active workers meeting at least one of the
// requested skills (all workers when no skills are requested), in
// registration order. Finer-grained filtering is the eligibility filter's job.
func (d *Directory) FindEligible(ctx context.Context, req domain.WorkerRequirements) ([]domain.WorkerSnapshot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []domain.WorkerSnapshot
	for _, id := range d.order {
		w := d.workers[id]
		if !w.Verified || !w.Active {
			continue
		}
		if len(req.Skills) > 0 && w.SkillOverlap(req.Skills) == 0 {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

func (d *Directory) GetSnapshot(ctx context.Context, id domain.WorkerID) (domain.WorkerSnapshot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	w, ok := d.workers[id]
	if !ok {
		return domain.WorkerSnapshot{}, fmt.Errorf("worker %s: %w", id, domain.ErrWorkerNotFound)
	}
	return w, nil
}

func (d *Directory) UpdateAccuracyCounters(ctx context.Context, id domain.WorkerID, completedDelta, approvedDelta int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	w, ok := d.workers[id]
	if !ok {
		return fmt.Errorf("worker %s: %w", id, domain.ErrWorkerNotFound)
	}
	w.TasksCompleted += completedDelta
	w.TasksApproved += approvedDelta
	d.workers[id] = w
	return nil
}

// Touch records worker activity for recency scoring.
func (d *Directory) Touch(id domain.WorkerID, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if w, ok := d.workers[id]; ok {
		w.LastActiveAt = at
		d.workers[id] = w
	}
}
