package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/labelhive/labelhive/internal/core/domain"
	"github.com/labelhive/labelhive/internal/core/ports"
)

// Distributor pairs pending items with weighted-random-selected eligible
// workers, respecting per-worker and per-pool capacity. One cycle handles one
// pool; the facade serializes cycles per pool, while cycles for different
// pools may run concurrently with each other and with submissions.
type Distributor struct {
	logger    *slog.Logger
	repo      ports.Repository
	directory ports.WorkerDirectory
	filter    *EligibilityFilter
	scorer    *WeightScorer
	injector  *QCInjector
	notifier  ports.NotificationSink
	clock     ports.Clock
	rng       *lockedRand
}

func NewDistributor(
	logger *slog.Logger,
	repo ports.Repository,
	directory ports.WorkerDirectory,
	filter *EligibilityFilter,
	scorer *WeightScorer,
	injector *QCInjector,
	notifier ports.NotificationSink,
	clock ports.Clock,
	rng *lockedRand,
) *Distributor {
	return &Distributor{
		logger:    logger,
		repo:      repo,
		directory: directory,
		filter:    filter,
		scorer:    scorer,
		injector:  injector,
		notifier:  notifier,
		clock:     clock,
		rng:       rng,
	}
}

// candidate is one scored worker with its remaining capacity for this cycle.
// Weights are computed once per cycle and never recomputed mid-cycle.
type candidate struct {
	worker    domain.WorkerSnapshot
	weight    int
	held      int
	completed int
	hasRecord bool // an ACTIVE assignment record already exists
}

// RunCycle executes one distribution pass for the pool. Zero pairings is a
// normal outcome reported through SkippedReason; only persistence failures
// surface as errors, and pairings committed before the failure stay intact.
func (d *Distributor) RunCycle(ctx context.Context, poolID domain.PoolID) (domain.CycleResult, error) {
	result := domain.CycleResult{PoolID: poolID}

	pool, err := d.repo.GetPool(ctx, poolID)
	if err != nil {
		return result, fmt.Errorf("load pool: %w", err)
	}
	if pool.Status != domain.PoolStatusActive {
		result.SkippedReason = domain.SkippedReasonNotActive
		return result, nil
	}
	if pool.Strategy != domain.StrategyAuto {
		result.SkippedReason = domain.SkippedReasonManualPool
		return result, nil
	}

	snapshots, err := d.directory.FindEligible(ctx, domain.WorkerRequirements{Skills: pool.RequiredSkills})
	if err != nil {
		return result, fmt.Errorf("worker directory lookup: %w", err)
	}

	records, err := d.repo.ListAssignments(ctx, poolID)
	if err != nil {
		return result, fmt.Errorf("list assignments: %w", err)
	}
	byWorker := make(map[domain.WorkerID]domain.Assignment, len(records))
	activeRecords := 0
	for _, a := range records {
		byWorker[a.WorkerID] = a
		if a.Status == domain.AssignmentStatusActive {
			activeRecords++
		}
	}

	eligible := d.filter.Eligible(pool, snapshots, byWorker)
	if len(eligible) == 0 {
		result.SkippedReason = domain.SkippedReasonNoWorkers
		return result, nil
	}

	candidates := make([]*candidate, 0, len(eligible))
	for _, w := range eligible {
		c := &candidate{worker: w, weight: d.scorer.Score(w, pool)}
		if a, ok := byWorker[w.ID]; ok {
			c.held = a.Held()
			c.completed = a.TasksCompleted
			c.hasRecord = a.Status == domain.AssignmentStatusActive
		}
		candidates = append(candidates, c)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].weight > candidates[j].weight
	})

	// New assignment records may only be created while the pool has
	// concurrent-worker headroom.
	newWorkerBudget := pool.MaxConcurrentWorkers - activeRecords
	if newWorkerBudget < 0 {
		newWorkerBudget = 0
	}

	items, err := d.repo.ListPendingItems(ctx, poolID, pool.MaxConcurrentWorkers*pool.BatchSize)
	if err != nil {
		return result, fmt.Errorf("list pending items: %w", err)
	}
	if len(items) == 0 {
		result.SkippedReason = domain.SkippedReasonNoItems
		return result, nil
	}

	for _, item := range items {
		selectable := selectableCandidates(candidates, &pool, newWorkerBudget)
		if len(selectable) == 0 {
			// Everyone is at capacity; remaining items wait for the next cycle.
			break
		}

		probe := d.injector.Probe(&pool)

		weights := make([]int, len(selectable))
		for i, c := range selectable {
			weights[i] = c.weight
		}
		chosen := selectable[pickWeighted(d.rng, weights)]

		pairing := domain.Pairing{
			ItemID:     item.ID,
			PoolID:     poolID,
			WorkerID:   chosen.worker.ID,
			Capacity:   pool.BatchSize,
			MaxHeld:    pool.HeldCapacity(chosen.completed),
			Probe:      probe,
			AssignedAt: d.clock.Now(),
		}

		if err := d.pairWithRetry(ctx, pairing); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				d.logger.Warn("pairing skipped after conflict retry",
					"pool_id", poolID, "item_id", item.ID, "worker_id", chosen.worker.ID)
				continue
			}
			return result, fmt.Errorf("pair item %s: %w", item.ID, err)
		}

		chosen.held++
		if !chosen.hasRecord {
			chosen.hasRecord = true
			newWorkerBudget--
		}
		result.AssignedCount++

		if d.notifier != nil {
			d.notifier.NotifyAssigned(chosen.worker.ID, item.ID, poolID)
		}
	}

	d.logger.Info("distribution cycle finished",
		"pool_id", poolID, "assigned", result.AssignedCount, "pending_seen", len(items))
	return result, nil
}

// pairWithRetry retries a conflicted pairing exactly once before giving up.
func (d *Distributor) pairWithRetry(ctx context.Context, p domain.Pairing) error {
	err := d.repo.PairItem(ctx, p)
	if err == nil || !errors.Is(err, domain.ErrConflict) {
		return err
	}
	return d.repo.PairItem(ctx, p)
}

func selectableCandidates(candidates []*candidate, pool *domain.WorkPool, newWorkerBudget int) []*candidate {
	out := make([]*candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.held >= pool.HeldCapacity(c.completed) {
			continue
		}
		if !c.hasRecord && newWorkerBudget <= 0 {
			continue
		}
		out = append(out, c)
	}
	return out
}
