package services

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/labelhive/labelhive/internal/core/domain"
	"github.com/labelhive/labelhive/internal/core/ports"
)

// AssignmentService is the surface the surrounding marketplace calls into.
// It owns no HTTP or wire format; dependencies (store, worker directory,
// notification sink, clock, randomness) are injected so the core runs
// without a live database under test.
type AssignmentService struct {
	logger      *slog.Logger
	repo        ports.Repository
	directory   ports.WorkerDirectory
	clock       ports.Clock
	notifier    ports.NotificationSink
	distributor *Distributor
	submissions *SubmissionHandler
	suspender   *SuspensionHandler

	// cycleLocks serializes distribution cycles per pool. Cycles for
	// different pools are independent and may overlap freely.
	cycleLocks sync.Map // domain.PoolID -> *semaphore.Weighted
}

func New(
	logger *slog.Logger,
	repo ports.Repository,
	directory ports.WorkerDirectory,
	notifier ports.NotificationSink,
	clock ports.Clock,
	rng *rand.Rand,
) *AssignmentService {
	filter := NewEligibilityFilter(logger)
	scorer := NewWeightScorer(clock)
	// One locked generator feeds injection and weighted draws everywhere:
	// cycles for different pools run concurrently, as do submissions.
	shared := newLockedRand(rng)
	injector := NewQCInjector(shared)
	grader := NewAutoGrader()
	suspender := NewSuspensionHandler(logger, repo, clock)

	return &AssignmentService{
		logger:      logger,
		repo:        repo,
		directory:   directory,
		clock:       clock,
		notifier:    notifier,
		distributor: NewDistributor(logger, repo, directory, filter, scorer, injector, notifier, clock, shared),
		submissions: NewSubmissionHandler(logger, repo, directory, grader, injector, suspender, notifier, clock),
		suspender:   suspender,
	}
}

// CreatePool validates the spec, seeds the QC probe templates and persists
// the pool in DRAFT state.
func (s *AssignmentService) CreatePool(ctx context.Context, spec domain.PoolSpec) (domain.PoolID, error) {
	if err := validatePoolSpec(&spec); err != nil {
		return "", err
	}

	now := s.clock.Now()
	id := domain.PoolID(uuid.New().String())

	probes := make([]domain.ProbeTemplate, len(spec.Probes))
	for i, p := range spec.Probes {
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		p.PoolID = id
		probes[i] = p
	}
	if recommended := spec.TotalTasks / 10; len(probes) < recommended {
		s.logger.Info("probe seed below recommended count",
			"pool", spec.Name, "probes", len(probes), "recommended", recommended)
	}

	pool := domain.WorkPool{
		ID:                   id,
		Name:                 spec.Name,
		RequiredSkills:       spec.RequiredSkills,
		MinimumAccuracy:      spec.MinimumAccuracy,
		MaxTasksPerUser:      spec.MaxTasksPerUser,
		MaxConcurrentWorkers: spec.MaxConcurrentWorkers,
		BatchSize:            spec.BatchSize,
		TotalTasks:           spec.TotalTasks,
		Strategy:             spec.Strategy,
		Status:               domain.PoolStatusDraft,
		RequireReview:        spec.RequireReview,
		Probes:               probes,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.SavePool(ctx, pool); err != nil {
		return "", fmt.Errorf("save pool: %w", err)
	}

	s.logger.Info("pool created", "pool_id", id, "name", spec.Name, "probes", len(probes))
	return id, nil
}

func validatePoolSpec(spec *domain.PoolSpec) error {
	if spec.Strategy == "" {
		spec.Strategy = domain.StrategyAuto
	}
	switch spec.Strategy {
	case domain.StrategyAuto, domain.StrategyManual, domain.StrategyApplicationBased:
	default:
		return fmt.Errorf("unknown strategy %q: %w", spec.Strategy, domain.ErrPoolMisconfigured)
	}
	if spec.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive: %w", domain.ErrPoolMisconfigured)
	}
	if spec.MaxTasksPerUser <= 0 {
		return fmt.Errorf("max tasks per user must be positive: %w", domain.ErrPoolMisconfigured)
	}
	if spec.MaxConcurrentWorkers <= 0 {
		return fmt.Errorf("max concurrent workers must be positive: %w", domain.ErrPoolMisconfigured)
	}
	if spec.Strategy == domain.StrategyAuto && len(spec.Probes) == 0 {
		return fmt.Errorf("auto pools need at least one probe template: %w", domain.ErrPoolMisconfigured)
	}
	for _, p := range spec.Probes {
		if p.Input.IsZero() || p.ExpectedAnswer.IsZero() {
			return fmt.Errorf("probe template missing input or expected answer: %w", domain.ErrPoolMisconfigured)
		}
	}
	return nil
}

// AddItems bulk-creates pending items from the given inputs under a fresh
// batch identifier and returns their IDs in input order.
func (s *AssignmentService) AddItems(ctx context.Context, poolID domain.PoolID, inputs []domain.Payload) ([]domain.ItemID, error) {
	pool, err := s.repo.GetPool(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("load pool: %w", err)
	}
	switch pool.Status {
	case domain.PoolStatusCompleted, domain.PoolStatusCancelled:
		return nil, fmt.Errorf("pool %s is %s: %w", poolID, pool.Status, domain.ErrInvalidState)
	}

	existing, err := s.repo.CountItems(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}

	now := s.clock.Now()
	batchID := uuid.New().String()
	items := make([]domain.WorkItem, len(inputs))
	ids := make([]domain.ItemID, len(inputs))
	for i, input := range inputs {
		id := domain.ItemID(uuid.New().String())
		ids[i] = id
		items[i] = domain.WorkItem{
			ID:        id,
			PoolID:    poolID,
			Sequence:  existing + i + 1,
			BatchID:   batchID,
			Input:     input,
			Status:    domain.ItemStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	if err := s.repo.InsertItems(ctx, items); err != nil {
		return nil, fmt.Errorf("insert items: %w", err)
	}
	s.logger.Info("items added", "pool_id", poolID, "batch_id", batchID, "count", len(items))
	return ids, nil
}

// ActivatePool moves a seeded DRAFT pool to ACTIVE so distribution can begin.
func (s *AssignmentService) ActivatePool(ctx context.Context, poolID domain.PoolID) error {
	pool, err := s.repo.GetPool(ctx, poolID)
	if err != nil {
		return fmt.Errorf("load pool: %w", err)
	}
	if pool.Status != domain.PoolStatusDraft && pool.Status != domain.PoolStatusPaused {
		return fmt.Errorf("pool %s is %s: %w", poolID, pool.Status, domain.ErrInvalidState)
	}
	count, err := s.repo.CountItems(ctx, poolID)
	if err != nil {
		return fmt.Errorf("count items: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("pool %s has no items: %w", poolID, domain.ErrPoolMisconfigured)
	}
	return s.repo.UpdatePoolStatus(ctx, poolID, domain.PoolStatusActive, s.clock.Now())
}

// PausePool halts distribution without touching live assignments.
func (s *AssignmentService) PausePool(ctx context.Context, poolID domain.PoolID) error {
	pool, err := s.repo.GetPool(ctx, poolID)
	if err != nil {
		return fmt.Errorf("load pool: %w", err)
	}
	if pool.Status != domain.PoolStatusActive {
		return fmt.Errorf("pool %s is %s: %w", poolID, pool.Status, domain.ErrInvalidState)
	}
	return s.repo.UpdatePoolStatus(ctx, poolID, domain.PoolStatusPaused, s.clock.Now())
}

// ClosePool terminates the pool, cancelling or completing live assignments
// and expiring unfinished items in one transaction.
func (s *AssignmentService) ClosePool(ctx context.Context, poolID domain.PoolID, cancelled bool) error {
	status := domain.PoolStatusCompleted
	if cancelled {
		status = domain.PoolStatusCancelled
	}
	if err := s.repo.ClosePool(ctx, poolID, status, s.clock.Now()); err != nil {
		return fmt.Errorf("close pool: %w", err)
	}
	s.logger.Info("pool closed", "pool_id", poolID, "status", status)
	return nil
}

// RunDistributionCycle executes one distribution pass. Cycles for the same
// pool are serialized here; callers may invoke this concurrently.
func (s *AssignmentService) RunDistributionCycle(ctx context.Context, poolID domain.PoolID) (domain.CycleResult, error) {
	sem := s.poolLock(poolID)
	if err := sem.Acquire(ctx, 1); err != nil {
		return domain.CycleResult{PoolID: poolID}, err
	}
	defer sem.Release(1)

	return s.distributor.RunCycle(ctx, poolID)
}

func (s *AssignmentService) poolLock(poolID domain.PoolID) *semaphore.Weighted {
	if sem, ok := s.cycleLocks.Load(poolID); ok {
		return sem.(*semaphore.Weighted)
	}
	sem, _ := s.cycleLocks.LoadOrStore(poolID, semaphore.NewWeighted(1))
	return sem.(*semaphore.Weighted)
}

// SubmitItem accepts a worker's completed-work payload.
func (s *AssignmentService) SubmitItem(ctx context.Context, itemID domain.ItemID, workerID domain.WorkerID, payload domain.Payload) (domain.ItemResult, error) {
	return s.submissions.Submit(ctx, itemID, workerID, payload)
}

// StartItem records that the worker began working on an assigned item.
// Started items are not reclaimed by suspension.
func (s *AssignmentService) StartItem(ctx context.Context, itemID domain.ItemID, workerID domain.WorkerID) error {
	return s.repo.MarkItemStarted(ctx, itemID, workerID, s.clock.Now())
}

// AssignItemTo pairs one pending item with a specific worker, for MANUAL and
// APPLICATION_BASED pools. It reuses the distributor's transactional pairing
// path but performs no QC injection: probes are an auto-distribution concern.
func (s *AssignmentService) AssignItemTo(ctx context.Context, itemID domain.ItemID, workerID domain.WorkerID) error {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("load item: %w", err)
	}
	pool, err := s.repo.GetPool(ctx, item.PoolID)
	if err != nil {
		return fmt.Errorf("load pool: %w", err)
	}
	if pool.Status != domain.PoolStatusActive {
		return fmt.Errorf("pool %s is %s: %w", pool.ID, pool.Status, domain.ErrInvalidState)
	}
	if _, err := s.directory.GetSnapshot(ctx, workerID); err != nil {
		return fmt.Errorf("worker lookup: %w", err)
	}

	completed := 0
	if a, err := s.repo.GetAssignment(ctx, pool.ID, workerID); err == nil {
		if a.Status != domain.AssignmentStatusActive {
			return fmt.Errorf("assignment for worker %s is %s: %w", workerID, a.Status, domain.ErrInvalidState)
		}
		completed = a.TasksCompleted
	}

	pairing := domain.Pairing{
		ItemID:     itemID,
		PoolID:     pool.ID,
		WorkerID:   workerID,
		Capacity:   pool.BatchSize,
		MaxHeld:    pool.HeldCapacity(completed),
		AssignedAt: s.clock.Now(),
	}
	if err := s.repo.PairItem(ctx, pairing); err != nil {
		return fmt.Errorf("pair item %s: %w", itemID, err)
	}
	if s.notifier != nil {
		s.notifier.NotifyAssigned(workerID, itemID, pool.ID)
	}
	return nil
}

// ReviewItem applies a manual verdict to a submitted item and feeds the same
// accuracy counters as auto-grading.
func (s *AssignmentService) ReviewItem(ctx context.Context, itemID domain.ItemID, approved bool) error {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("load item: %w", err)
	}
	if item.Status != domain.ItemStatusSubmitted && item.Status != domain.ItemStatusUnderReview {
		return fmt.Errorf("item %s is %s: %w", itemID, item.Status, domain.ErrInvalidState)
	}
	if item.AssignedTo == nil {
		return fmt.Errorf("item %s has no submitter: %w", itemID, domain.ErrInvalidState)
	}

	score := 0
	if approved {
		score = 100
	}
	rec := domain.ReviewRecord{
		ItemID:     itemID,
		PoolID:     item.PoolID,
		WorkerID:   *item.AssignedTo,
		Approved:   approved,
		Score:      &score,
		ReviewedAt: s.clock.Now(),
	}
	if err := s.repo.ReviewItem(ctx, rec); err != nil {
		return fmt.Errorf("review item: %w", err)
	}

	approvedDelta := 0
	if approved {
		approvedDelta = 1
	}
	if err := s.directory.UpdateAccuracyCounters(ctx, *item.AssignedTo, 1, approvedDelta); err != nil {
		s.logger.Error("failed to update accuracy counters",
			"worker_id", *item.AssignedTo, "error", err)
	}
	return nil
}

// SuspendWorker pauses the worker's assignment for the pool and returns their
// unstarted items to the pending pool.
func (s *AssignmentService) SuspendWorker(ctx context.Context, workerID domain.WorkerID, poolID domain.PoolID, reason string) error {
	return s.suspender.Suspend(ctx, poolID, workerID, reason)
}

// ResumeWorker reactivates a paused assignment.
func (s *AssignmentService) ResumeWorker(ctx context.Context, workerID domain.WorkerID, poolID domain.PoolID) error {
	return s.suspender.Resume(ctx, poolID, workerID)
}
