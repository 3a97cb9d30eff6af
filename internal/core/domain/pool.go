package domain

import (
	"errors"
	"time"
)

type PoolID string

type PoolStatus string

const (
	PoolStatusDraft     PoolStatus = "DRAFT"
	PoolStatusActive    PoolStatus = "ACTIVE"
	PoolStatusPaused    PoolStatus = "PAUSED"
	PoolStatusCompleted PoolStatus = "COMPLETED"
	PoolStatusCancelled PoolStatus = "CANCELLED"
)

// AssignmentStrategy controls how items in a pool reach workers.
// Only AUTO pools are handled by the distributor; the other two are
// paired explicitly by the surrounding service.
type AssignmentStrategy string

const (
	StrategyAuto             AssignmentStrategy = "AUTO"
	StrategyManual           AssignmentStrategy = "MANUAL"
	StrategyApplicationBased AssignmentStrategy = "APPLICATION_BASED"
)

// SkillRequirement is one entry of a pool's required-skill list.
type SkillRequirement struct {
	Skill    string `json:"skill"`
	MinLevel int    `json:"min_level"`
}

// ProbeTemplate is a known-answer pair owned by a pool, substituted for
// real work by the QC injector.
type ProbeTemplate struct {
	ID             string  `json:"id"`
	PoolID         PoolID  `json:"pool_id"`
	Input          Payload `json:"input"`
	ExpectedAnswer Payload `json:"expected_answer"`
}

// WorkPool is a commissioned batch of work with shared configuration.
type WorkPool struct {
	ID                   PoolID             `json:"id"`
	Name                 string             `json:"name"`
	RequiredSkills       []SkillRequirement `json:"required_skills"`
	MinimumAccuracy      float64            `json:"minimum_accuracy"` // percent, 0 disables the check
	MaxTasksPerUser      int                `json:"max_tasks_per_user"`
	MaxConcurrentWorkers int                `json:"max_concurrent_workers"`
	BatchSize            int                `json:"batch_size"`
	TotalTasks           int                `json:"total_tasks"`
	Strategy             AssignmentStrategy `json:"strategy"`
	Status               PoolStatus         `json:"status"`
	RequireReview        bool               `json:"require_review"`
	Probes               []ProbeTemplate    `json:"probes,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// PoolSpec is the caller-supplied description used by CreatePool.
type PoolSpec struct {
	Name                 string
	RequiredSkills       []SkillRequirement
	MinimumAccuracy      float64
	MaxTasksPerUser      int
	MaxConcurrentWorkers int
	BatchSize            int
	TotalTasks           int
	Strategy             AssignmentStrategy
	RequireReview        bool
	Probes               []ProbeTemplate
}

var (
	ErrPoolNotFound      = errors.New("pool not found")
	ErrPoolMisconfigured = errors.New("pool misconfigured")
)

// HasSkillRequirement reports whether the pool restricts workers by skill.
func (p *WorkPool) HasSkillRequirement() bool {
	return len(p.RequiredSkills) > 0
}

// HeldCapacity returns how many items a worker may hold concurrently in this
// pool given how many they have already completed here.
func (p *WorkPool) HeldCapacity(completedInPool int) int {
	remaining := p.MaxTasksPerUser - completedInPool
	if remaining < 0 {
		remaining = 0
	}
	if p.BatchSize < remaining {
		return p.BatchSize
	}
	return remaining
}
