package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/labelhive/labelhive/internal/core/domain"
	"github.com/labelhive/labelhive/internal/core/ports"
)

// SubmissionHandler accepts completed-work payloads. QC probes are graded
// synchronously before the call returns; failed probes suspend the worker.
// After a successful non-failing submission the handler backfills one fresh
// pending item into the worker's assignment, best-effort.
type SubmissionHandler struct {
	logger    *slog.Logger
	repo      ports.Repository
	directory ports.WorkerDirectory
	grader    *AutoGrader
	injector  *QCInjector
	suspender *SuspensionHandler
	notifier  ports.NotificationSink
	clock     ports.Clock
}

func NewSubmissionHandler(
	logger *slog.Logger,
	repo ports.Repository,
	directory ports.WorkerDirectory,
	grader *AutoGrader,
	injector *QCInjector,
	suspender *SuspensionHandler,
	notifier ports.NotificationSink,
	clock ports.Clock,
) *SubmissionHandler {
	return &SubmissionHandler{
		logger:    logger,
		repo:      repo,
		directory: directory,
		grader:    grader,
		injector:  injector,
		suspender: suspender,
		notifier:  notifier,
		clock:     clock,
	}
}

// Submit processes one worker submission for one item. A submission for an
// item not held by the worker is rejected as an access violation and logged
// as an integrity signal, never silently ignored.
func (h *SubmissionHandler) Submit(ctx context.Context, itemID domain.ItemID, workerID domain.WorkerID, payload domain.Payload) (domain.ItemResult, error) {
	var result domain.ItemResult

	item, err := h.repo.GetItem(ctx, itemID)
	if err != nil {
		return result, fmt.Errorf("load item: %w", err)
	}

	if item.AssignedTo == nil || *item.AssignedTo != workerID {
		h.logger.Warn("submission rejected: item not assigned to worker",
			"item_id", itemID, "worker_id", workerID, "pool_id", item.PoolID)
		return result, fmt.Errorf("item %s, worker %s: %w", itemID, workerID, domain.ErrNotAssigned)
	}
	if !item.Held() {
		return result, fmt.Errorf("item %s is %s: %w", itemID, item.Status, domain.ErrInvalidState)
	}

	pool, err := h.repo.GetPool(ctx, item.PoolID)
	if err != nil {
		return result, fmt.Errorf("load pool: %w", err)
	}

	now := h.clock.Now()
	var durationMs int64
	if item.AssignedAt != nil {
		durationMs = now.Sub(*item.AssignedAt).Milliseconds()
	}

	rec := domain.SubmissionRecord{
		ItemID:      itemID,
		PoolID:      item.PoolID,
		WorkerID:    workerID,
		Submission:  payload,
		SubmittedAt: now,
		DurationMs:  durationMs,
		Status:      domain.ItemStatusSubmitted,
	}

	graded := false
	if item.IsQualityCheck {
		if item.ExpectedAnswer == nil {
			// QC integrity invariant broken upstream; fail loudly.
			return result, fmt.Errorf("quality-check item %s has no expected answer: %w", itemID, domain.ErrInvalidState)
		}
		graded = true
		score := h.grader.Score(payload, *item.ExpectedAnswer)
		rec.Score = &score
		rec.ReviewedAt = &now
		rec.ReviewAuto = true
		if score == 100 {
			rec.Status = domain.ItemStatusApproved
		} else {
			rec.Status = domain.ItemStatusRejected
		}
	} else if pool.RequireReview {
		rec.Status = domain.ItemStatusUnderReview
	}

	if err := h.repo.CompleteSubmission(ctx, rec); err != nil {
		return result, fmt.Errorf("persist submission: %w", err)
	}

	result = domain.ItemResult{
		ItemID:     itemID,
		Status:     rec.Status,
		Score:      rec.Score,
		DurationMs: durationMs,
	}

	if graded {
		approvedDelta := 0
		if rec.Approved() {
			approvedDelta = 1
		}
		// Counters are advisory; a directory hiccup must not fail the submission.
		if err := h.directory.UpdateAccuracyCounters(ctx, workerID, 1, approvedDelta); err != nil {
			h.logger.Error("failed to update accuracy counters",
				"worker_id", workerID, "error", err)
		}

		if !rec.Approved() {
			if err := h.suspender.Suspend(ctx, item.PoolID, workerID, "failed quality check"); err != nil {
				return result, err
			}
			return result, nil
		}
	}

	if id := h.backfill(ctx, &pool, workerID); id != nil {
		result.Backfilled = id
	}
	return result, nil
}

// backfill tops the worker's assignment back up with one pending item from
// the same pool if capacity allows. Failures are logged and swallowed: a
// missed backfill is never fatal to the submission that triggered it.
func (h *SubmissionHandler) backfill(ctx context.Context, pool *domain.WorkPool, workerID domain.WorkerID) *domain.ItemID {
	a, err := h.repo.GetAssignment(ctx, pool.ID, workerID)
	if err != nil {
		h.logger.Debug("backfill skipped: no assignment", "pool_id", pool.ID, "worker_id", workerID)
		return nil
	}
	if a.Status != domain.AssignmentStatusActive || pool.Status != domain.PoolStatusActive {
		return nil
	}
	if a.Held() >= pool.HeldCapacity(a.TasksCompleted) {
		return nil
	}

	items, err := h.repo.ListPendingItems(ctx, pool.ID, 1)
	if err != nil || len(items) == 0 {
		return nil
	}
	item := items[0]

	pairing := domain.Pairing{
		ItemID:     item.ID,
		PoolID:     pool.ID,
		WorkerID:   workerID,
		Capacity:   pool.BatchSize,
		MaxHeld:    pool.HeldCapacity(a.TasksCompleted),
		Probe:      h.injector.Probe(pool),
		AssignedAt: h.clock.Now(),
	}
	if err := h.repo.PairItem(ctx, pairing); err != nil {
		h.logger.Debug("backfill pairing failed",
			"pool_id", pool.ID, "worker_id", workerID, "item_id", item.ID, "error", err)
		return nil
	}

	if h.notifier != nil {
		h.notifier.NotifyAssigned(workerID, item.ID, pool.ID)
	}
	return &item.ID
}
