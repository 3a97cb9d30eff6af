package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/labelhive/labelhive/internal/core/domain"
)

// activePoolLister is the minimal repository view the ticker needs.
type activePoolLister interface {
	ListActivePools(ctx context.Context) ([]domain.WorkPool, error)
}

// cycleRunner lets the ticker drive the service without importing it.
type cycleRunner interface {
	RunDistributionCycle(ctx context.Context, poolID domain.PoolID) (domain.CycleResult, error)
}

// PoolTicker periodically runs a distribution cycle for every ACTIVE pool
// with the AUTO strategy. The dispatcher binary runs one of these; manual
// pools are skipped by the distributor itself.
type PoolTicker struct {
	logger *slog.Logger
	pools  activePoolLister
	runner cycleRunner
	tick   time.Duration
}

func NewPoolTicker(logger *slog.Logger, pools activePoolLister, runner cycleRunner, tick time.Duration) *PoolTicker {
	if tick <= 0 {
		tick = 30 * time.Second
	}
	return &PoolTicker{
		logger: logger,
		pools:  pools,
		runner: runner,
		tick:   tick,
	}
}

// Run starts the distribution loop. Blocks until ctx is cancelled.
func (t *PoolTicker) Run(ctx context.Context) error {
	t.logger.Info("pool ticker started", "tick", t.tick)
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("pool ticker stopped")
			return nil
		case <-ticker.C:
			t.runAll(ctx)
		}
	}
}

func (t *PoolTicker) runAll(ctx context.Context) {
	pools, err := t.pools.ListActivePools(ctx)
	if err != nil {
		t.logger.Error("failed to list active pools", "error", err)
		return
	}

	for _, pool := range pools {
		if pool.Strategy != domain.StrategyAuto {
			continue
		}
		result, err := t.runner.RunDistributionCycle(ctx, pool.ID)
		if err != nil {
			t.logger.Error("distribution cycle failed", "pool_id", pool.ID, "error", err)
			continue
		}
		if result.AssignedCount > 0 || result.SkippedReason == domain.SkippedReasonNone {
			t.logger.Info("distribution cycle",
				"pool_id", pool.ID, "assigned", result.AssignedCount)
		} else {
			t.logger.Debug("distribution cycle skipped",
				"pool_id", pool.ID, "reason", result.SkippedReason)
		}
	}
}
