package domain

import "time"

type AssignmentStatus string

const (
	AssignmentStatusActive    AssignmentStatus = "ACTIVE"
	AssignmentStatusPaused    AssignmentStatus = "PAUSED"
	AssignmentStatusCompleted AssignmentStatus = "COMPLETED"
	AssignmentStatusCancelled AssignmentStatus = "CANCELLED"
)

// Assignment links one worker to one pool. The held item list is derived
// from the item table (an item's assignee reference is the single source of
// truth), which keeps pairing and suspension one-write operations.
type Assignment struct {
	PoolID          PoolID           `json:"pool_id"`
	WorkerID        WorkerID         `json:"worker_id"`
	ItemIDs         []ItemID         `json:"item_ids"` // derived: items currently held
	Capacity        int              `json:"capacity"` // pool batch size at creation
	Status          AssignmentStatus `json:"status"`
	TasksCompleted  int              `json:"tasks_completed"`
	TasksApproved   int              `json:"tasks_approved"`
	TotalDurationMs int64            `json:"total_duration_ms"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Accuracy returns the rolling percentage of approved submissions; the second
// return is false when nothing has been completed yet.
func (a *Assignment) Accuracy() (float64, bool) {
	if a.TasksCompleted == 0 {
		return 0, false
	}
	return float64(a.TasksApproved) / float64(a.TasksCompleted) * 100, true
}

// AvgDurationMs returns the mean completion time across counted submissions.
func (a *Assignment) AvgDurationMs() int64 {
	if a.TasksCompleted == 0 {
		return 0
	}
	return a.TotalDurationMs / int64(a.TasksCompleted)
}

// Held returns how many items the worker currently holds in this pool.
func (a *Assignment) Held() int {
	return len(a.ItemIDs)
}
