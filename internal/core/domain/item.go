package domain

import (
	"errors"
	"time"
)

type ItemID string

type ItemStatus string

const (
	ItemStatusPending     ItemStatus = "PENDING"
	ItemStatusAssigned    ItemStatus = "ASSIGNED"
	ItemStatusInProgress  ItemStatus = "IN_PROGRESS"
	ItemStatusSubmitted   ItemStatus = "SUBMITTED"
	ItemStatusUnderReview ItemStatus = "UNDER_REVIEW"
	ItemStatusApproved    ItemStatus = "APPROVED"
	ItemStatusRejected    ItemStatus = "REJECTED"
	ItemStatusExpired     ItemStatus = "EXPIRED"
)

// WorkItem is one unit of work within a pool.
type WorkItem struct {
	ID             ItemID     `json:"id"`
	PoolID         PoolID     `json:"pool_id"`
	Sequence       int        `json:"sequence"`
	BatchID        string     `json:"batch_id"`
	Input          Payload    `json:"input"`        // content presented to the worker
	SourceInput    Payload    `json:"source_input"` // creation-time content, restored when a QC substitution is not re-drawn
	Status         ItemStatus `json:"status"`
	AssignedTo     *WorkerID  `json:"assigned_to,omitempty"`
	AssignedAt     *time.Time `json:"assigned_at,omitempty"`
	IsQualityCheck bool       `json:"is_quality_check"`
	ExpectedAnswer *Payload   `json:"expected_answer,omitempty"`
	Submission     *Payload   `json:"submission,omitempty"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
	DurationMs     int64      `json:"duration_ms"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
	ReviewAuto     bool       `json:"review_auto"`
	Score          *int       `json:"score,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

var (
	ErrItemNotFound = errors.New("item not found")
	ErrNotAssigned  = errors.New("item not assigned to worker")
	ErrInvalidState = errors.New("invalid state transition")
	ErrConflict     = errors.New("concurrent modification conflict")
)

// itemTransitions is the forward state machine. The two permitted
// backward-looking moves are ASSIGNED→PENDING (suspension reclaim) and
// UNDER_REVIEW→REJECTED.
var itemTransitions = map[ItemStatus][]ItemStatus{
	ItemStatusPending:     {ItemStatusAssigned, ItemStatusExpired},
	ItemStatusAssigned:    {ItemStatusInProgress, ItemStatusSubmitted, ItemStatusUnderReview, ItemStatusApproved, ItemStatusRejected, ItemStatusPending, ItemStatusExpired},
	ItemStatusInProgress:  {ItemStatusSubmitted, ItemStatusUnderReview, ItemStatusApproved, ItemStatusRejected, ItemStatusExpired},
	ItemStatusSubmitted:   {ItemStatusUnderReview, ItemStatusApproved, ItemStatusRejected, ItemStatusExpired},
	ItemStatusUnderReview: {ItemStatusApproved, ItemStatusRejected, ItemStatusExpired},
}

// ValidItemTransition reports whether a work item may move from one status to
// another.
func ValidItemTransition(from, to ItemStatus) bool {
	for _, next := range itemTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Held reports whether the item currently occupies a slot of its holder's
// assignment capacity.
func (i *WorkItem) Held() bool {
	return i.Status == ItemStatusAssigned || i.Status == ItemStatusInProgress
}
