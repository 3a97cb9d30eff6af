package services

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/labelhive/labelhive/internal/core/domain"
	"github.com/labelhive/labelhive/internal/core/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func testRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

func testLockedRNG(seed uint64) *lockedRand {
	return newLockedRand(testRNG(seed))
}

// fakeClock is a settable clock for deterministic elapsed-time tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeRepo is an in-memory ports.Repository with the same transactional
// semantics as the DuckDB adapter, guarded by one mutex. pairHook lets tests
// inject conflicts and outages into PairItem.
type fakeRepo struct {
	mu          sync.Mutex
	pools       map[domain.PoolID]domain.WorkPool
	items       map[domain.ItemID]domain.WorkItem
	assignments map[string]domain.Assignment // poolID/workerID
	pairHook    func(domain.Pairing) error
}

var _ ports.Repository = (*fakeRepo)(nil)

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		pools:       make(map[domain.PoolID]domain.WorkPool),
		items:       make(map[domain.ItemID]domain.WorkItem),
		assignments: make(map[string]domain.Assignment),
	}
}

func assignmentKey(poolID domain.PoolID, workerID domain.WorkerID) string {
	return string(poolID) + "/" + string(workerID)
}

func (r *fakeRepo) SavePool(ctx context.Context, pool domain.WorkPool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools[pool.ID] = pool
	return nil
}

func (r *fakeRepo) GetPool(ctx context.Context, id domain.PoolID) (domain.WorkPool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pool, ok := r.pools[id]
	if !ok {
		return domain.WorkPool{}, fmt.Errorf("pool %s: %w", id, domain.ErrPoolNotFound)
	}
	return pool, nil
}

func (r *fakeRepo) ListActivePools(ctx context.Context) ([]domain.WorkPool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pools []domain.WorkPool
	for _, p := range r.pools {
		if p.Status == domain.PoolStatusActive {
			pools = append(pools, p)
		}
	}
	return pools, nil
}

func (r *fakeRepo) UpdatePoolStatus(ctx context.Context, id domain.PoolID, status domain.PoolStatus, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pool, ok := r.pools[id]
	if !ok {
		return fmt.Errorf("pool %s: %w", id, domain.ErrPoolNotFound)
	}
	pool.Status = status
	pool.UpdatedAt = now
	r.pools[id] = pool
	return nil
}

func (r *fakeRepo) ClosePool(ctx context.Context, id domain.PoolID, status domain.PoolStatus, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pool, ok := r.pools[id]
	if !ok {
		return fmt.Errorf("pool %s: %w", id, domain.ErrPoolNotFound)
	}
	pool.Status = status
	pool.UpdatedAt = now
	r.pools[id] = pool

	assignmentStatus := domain.AssignmentStatusCompleted
	if status == domain.PoolStatusCancelled {
		assignmentStatus = domain.AssignmentStatusCancelled
	}
	for key, a := range r.assignments {
		if a.PoolID == id && (a.Status == domain.AssignmentStatusActive || a.Status == domain.AssignmentStatusPaused) {
			a.Status = assignmentStatus
			r.assignments[key] = a
		}
	}
	for itemID, item := range r.items {
		if item.PoolID != id {
			continue
		}
		switch item.Status {
		case domain.ItemStatusApproved, domain.ItemStatusRejected, domain.ItemStatusExpired:
		default:
			item.Status = domain.ItemStatusExpired
			r.items[itemID] = item
		}
	}
	return nil
}

func (r *fakeRepo) InsertItems(ctx context.Context, items []domain.WorkItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		if item.SourceInput.IsZero() {
			item.SourceInput = item.Input
		}
		r.items[item.ID] = item
	}
	return nil
}

func (r *fakeRepo) GetItem(ctx context.Context, id domain.ItemID) (domain.WorkItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return domain.WorkItem{}, fmt.Errorf("item %s: %w", id, domain.ErrItemNotFound)
	}
	return item, nil
}

func (r *fakeRepo) ListPendingItems(ctx context.Context, poolID domain.PoolID, limit int) ([]domain.WorkItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.WorkItem
	for _, item := range r.items {
		if item.PoolID == poolID && item.Status == domain.ItemStatusPending {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Sequence < items[j].Sequence })
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (r *fakeRepo) CountItems(ctx context.Context, poolID domain.PoolID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, item := range r.items {
		if item.PoolID == poolID {
			count++
		}
	}
	return count, nil
}

func (r *fakeRepo) MarkItemStarted(ctx context.Context, id domain.ItemID, workerID domain.WorkerID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return fmt.Errorf("item %s: %w", id, domain.ErrItemNotFound)
	}
	if item.AssignedTo == nil || *item.AssignedTo != workerID {
		return fmt.Errorf("item %s, worker %s: %w", id, workerID, domain.ErrNotAssigned)
	}
	if item.Status != domain.ItemStatusAssigned {
		return fmt.Errorf("item %s is %s: %w", id, item.Status, domain.ErrInvalidState)
	}
	item.Status = domain.ItemStatusInProgress
	item.UpdatedAt = now
	r.items[id] = item
	return nil
}

func (r *fakeRepo) GetAssignment(ctx context.Context, poolID domain.PoolID, workerID domain.WorkerID) (domain.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assignments[assignmentKey(poolID, workerID)]
	if !ok {
		return domain.Assignment{}, fmt.Errorf("assignment for worker %s in pool %s: %w", workerID, poolID, domain.ErrWorkerNotFound)
	}
	a.ItemIDs = r.heldLocked(poolID, workerID)
	return a, nil
}

func (r *fakeRepo) ListAssignments(ctx context.Context, poolID domain.PoolID) ([]domain.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Assignment
	for _, a := range r.assignments {
		if a.PoolID == poolID {
			a.ItemIDs = r.heldLocked(poolID, a.WorkerID)
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkerID < out[j].WorkerID })
	return out, nil
}

func (r *fakeRepo) SetAssignmentStatus(ctx context.Context, poolID domain.PoolID, workerID domain.WorkerID, status domain.AssignmentStatus, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := assignmentKey(poolID, workerID)
	a, ok := r.assignments[key]
	if !ok {
		return fmt.Errorf("assignment for worker %s in pool %s: %w", workerID, poolID, domain.ErrWorkerNotFound)
	}
	a.Status = status
	a.UpdatedAt = now
	r.assignments[key] = a
	return nil
}

func (r *fakeRepo) PairItem(ctx context.Context, p domain.Pairing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pairHook != nil {
		if err := r.pairHook(p); err != nil {
			return err
		}
	}

	if len(r.heldLocked(p.PoolID, p.WorkerID)) >= p.MaxHeld {
		return fmt.Errorf("worker %s at capacity in pool %s: %w", p.WorkerID, p.PoolID, domain.ErrConflict)
	}

	key := assignmentKey(p.PoolID, p.WorkerID)
	a, ok := r.assignments[key]
	if !ok {
		a = domain.Assignment{
			PoolID:    p.PoolID,
			WorkerID:  p.WorkerID,
			Capacity:  p.Capacity,
			Status:    domain.AssignmentStatusActive,
			CreatedAt: p.AssignedAt,
		}
	}
	if a.Status != domain.AssignmentStatusActive {
		return fmt.Errorf("assignment for worker %s is %s: %w", p.WorkerID, a.Status, domain.ErrConflict)
	}
	a.UpdatedAt = p.AssignedAt

	item, ok := r.items[p.ItemID]
	if !ok || item.Status != domain.ItemStatusPending {
		return fmt.Errorf("item %s no longer pending: %w", p.ItemID, domain.ErrConflict)
	}

	item.Status = domain.ItemStatusAssigned
	worker := p.WorkerID
	item.AssignedTo = &worker
	at := p.AssignedAt
	item.AssignedAt = &at
	item.UpdatedAt = at
	if p.Probe != nil {
		item.IsQualityCheck = true
		item.Input = p.Probe.Input
		expected := p.Probe.ExpectedAnswer
		item.ExpectedAnswer = &expected
	} else {
		item.IsQualityCheck = false
		item.Input = item.SourceInput
		item.ExpectedAnswer = nil
	}

	r.items[p.ItemID] = item
	r.assignments[key] = a
	return nil
}

func (r *fakeRepo) CompleteSubmission(ctx context.Context, rec domain.SubmissionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[rec.ItemID]
	if !ok {
		return fmt.Errorf("item %s: %w", rec.ItemID, domain.ErrItemNotFound)
	}
	if item.AssignedTo == nil || *item.AssignedTo != rec.WorkerID || !item.Held() {
		return fmt.Errorf("item %s not held by worker %s: %w", rec.ItemID, rec.WorkerID, domain.ErrConflict)
	}

	item.Status = rec.Status
	submission := rec.Submission
	item.Submission = &submission
	at := rec.SubmittedAt
	item.SubmittedAt = &at
	item.DurationMs = rec.DurationMs
	item.ReviewedAt = rec.ReviewedAt
	item.ReviewAuto = rec.ReviewAuto
	item.Score = rec.Score
	item.UpdatedAt = at
	r.items[rec.ItemID] = item

	key := assignmentKey(rec.PoolID, rec.WorkerID)
	if a, ok := r.assignments[key]; ok {
		a.TasksCompleted++
		if rec.Approved() {
			a.TasksApproved++
		}
		a.TotalDurationMs += rec.DurationMs
		a.UpdatedAt = at
		r.assignments[key] = a
	}
	return nil
}

func (r *fakeRepo) ReviewItem(ctx context.Context, rec domain.ReviewRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[rec.ItemID]
	if !ok {
		return fmt.Errorf("item %s: %w", rec.ItemID, domain.ErrItemNotFound)
	}
	if item.Status != domain.ItemStatusSubmitted && item.Status != domain.ItemStatusUnderReview {
		return fmt.Errorf("item %s not reviewable: %w", rec.ItemID, domain.ErrConflict)
	}

	if rec.Approved {
		item.Status = domain.ItemStatusApproved
	} else {
		item.Status = domain.ItemStatusRejected
	}
	at := rec.ReviewedAt
	item.ReviewedAt = &at
	item.ReviewAuto = false
	item.Score = rec.Score
	item.UpdatedAt = at
	r.items[rec.ItemID] = item

	if rec.Approved {
		key := assignmentKey(rec.PoolID, rec.WorkerID)
		if a, ok := r.assignments[key]; ok {
			a.TasksApproved++
			a.UpdatedAt = at
			r.assignments[key] = a
		}
	}
	return nil
}

func (r *fakeRepo) SuspendWorker(ctx context.Context, poolID domain.PoolID, workerID domain.WorkerID, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := assignmentKey(poolID, workerID)
	a, ok := r.assignments[key]
	if !ok {
		return 0, fmt.Errorf("assignment for worker %s in pool %s: %w", workerID, poolID, domain.ErrWorkerNotFound)
	}
	switch a.Status {
	case domain.AssignmentStatusActive, domain.AssignmentStatusPaused:
	default:
		return 0, fmt.Errorf("assignment for worker %s is %s: %w", workerID, a.Status, domain.ErrInvalidState)
	}
	a.Status = domain.AssignmentStatusPaused
	a.UpdatedAt = now
	r.assignments[key] = a

	released := 0
	for id, item := range r.items {
		if item.PoolID == poolID && item.AssignedTo != nil && *item.AssignedTo == workerID &&
			item.Status == domain.ItemStatusAssigned {
			item.Status = domain.ItemStatusPending
			item.AssignedTo = nil
			item.AssignedAt = nil
			item.UpdatedAt = now
			r.items[id] = item
			released++
		}
	}
	return released, nil
}

// fakeDirectory serves snapshots in registration order, like the in-memory
// adapter it stands in for.
type fakeDirectory struct {
	mu      sync.Mutex
	order   []domain.WorkerID
	workers map[domain.WorkerID]domain.WorkerSnapshot
}

var _ ports.WorkerDirectory = (*fakeDirectory)(nil)

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{workers: make(map[domain.WorkerID]domain.WorkerSnapshot)}
}

func (d *fakeDirectory) add(w domain.WorkerSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.workers[w.ID]; !ok {
		d.order = append(d.order, w.ID)
	}
	d.workers[w.ID] = w
}

func (d *fakeDirectory) FindEligible(ctx context.Context, req domain.WorkerRequirements) ([]domain.WorkerSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []domain.WorkerSnapshot
	for _, id := range d.order {
		out = append(out, d.workers[id])
	}
	return out, nil
}

func (d *fakeDirectory) GetSnapshot(ctx context.Context, id domain.WorkerID) (domain.WorkerSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.workers[id]
	if !ok {
		return domain.WorkerSnapshot{}, fmt.Errorf("worker %s: %w", id, domain.ErrWorkerNotFound)
	}
	return w, nil
}

func (d *fakeDirectory) UpdateAccuracyCounters(ctx context.Context, id domain.WorkerID, completedDelta, approvedDelta int) error {
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

// recordingNotifier captures assignment notices for assertion.
type recordingNotifier struct {
	mu      sync.Mutex
	notices []struct {
		WorkerID domain.WorkerID
		ItemID   domain.ItemID
		PoolID   domain.PoolID
	}
}

func (n *recordingNotifier) NotifyAssigned(workerID domain.WorkerID, itemID domain.ItemID, poolID domain.PoolID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, struct {
		WorkerID domain.WorkerID
		ItemID   domain.ItemID
		PoolID   domain.PoolID
	}{workerID, itemID, poolID})
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

func (r *fakeRepo) heldLocked(poolID domain.PoolID, workerID domain.WorkerID) []domain.ItemID {
	var ids []domain.ItemID
	for id, item := range r.items {
		if item.PoolID == poolID && item.AssignedTo != nil && *item.AssignedTo == workerID && item.Held() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
