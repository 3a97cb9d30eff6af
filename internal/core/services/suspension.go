package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/labelhive/labelhive/internal/core/domain"
	"github.com/labelhive/labelhive/internal/core/ports"
)

// SuspensionHandler pauses a worker's assignment in a pool and returns their
// unstarted items to the pending pool. The repository applies both writes in
// one transaction: a worker is never PAUSED while items remain ASSIGNED to
// them. Items already IN_PROGRESS stay with the worker.
type SuspensionHandler struct {
	logger *slog.Logger
	repo   ports.Repository
	clock  ports.Clock
}

func NewSuspensionHandler(logger *slog.Logger, repo ports.Repository, clock ports.Clock) *SuspensionHandler {
	return &SuspensionHandler{logger: logger, repo: repo, clock: clock}
}

// Suspend pauses the worker+pool assignment and reverts their ASSIGNED items
// to PENDING so the next distribution cycle can re-offer them.
func (h *SuspensionHandler) Suspend(ctx context.Context, poolID domain.PoolID, workerID domain.WorkerID, reason string) error {
	released, err := h.repo.SuspendWorker(ctx, poolID, workerID, h.clock.Now())
	if err != nil {
		return fmt.Errorf("suspend worker %s in pool %s: %w", workerID, poolID, err)
	}

	h.logger.Warn("worker suspended",
		"pool_id", poolID,
		"worker_id", workerID,
		"reason", reason,
		"items_released", released,
	)
	return nil
}

// Resume reactivates a paused assignment after out-of-band review.
func (h *SuspensionHandler) Resume(ctx context.Context, poolID domain.PoolID, workerID domain.WorkerID) error {
	a, err := h.repo.GetAssignment(ctx, poolID, workerID)
	if err != nil {
		return fmt.Errorf("load assignment: %w", err)
	}
	if a.Status != domain.AssignmentStatusPaused {
		return fmt.Errorf("assignment for worker %s in pool %s is %s: %w", workerID, poolID, a.Status, domain.ErrInvalidState)
	}
	if err := h.repo.SetAssignmentStatus(ctx, poolID, workerID, domain.AssignmentStatusActive, h.clock.Now()); err != nil {
		return fmt.Errorf("resume worker %s in pool %s: %w", workerID, poolID, err)
	}
	h.logger.Info("worker resumed", "pool_id", poolID, "worker_id", workerID)
	return nil
}
