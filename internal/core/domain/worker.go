package domain

import (
	"errors"
	"time"
)

type WorkerID string

// WorkerSnapshot is the directory's view of a worker at a point in time.
// The assignment core never owns worker records; it consumes snapshots.
type WorkerSnapshot struct {
	ID              WorkerID       `json:"id"`
	Verified        bool           `json:"verified"`
	Active          bool           `json:"active"`
	Skills          map[string]int `json:"skills"` // skill name -> proficiency level
	TasksCompleted  int            `json:"tasks_completed"`
	TasksApproved   int            `json:"tasks_approved"`
	ActiveTaskCount int            `json:"active_task_count"`
	LastActiveAt    time.Time      `json:"last_active_at"`
}

// WorkerRequirements narrows a directory lookup to workers plausibly useful
// for a pool. The eligibility filter applies the full rule set afterwards.
type WorkerRequirements struct {
	Skills []SkillRequirement
}

var ErrWorkerNotFound = errors.New("worker not found")

// Accuracy returns the historical approval percentage; false when the worker
// has no graded history.
func (w WorkerSnapshot) Accuracy() (float64, bool) {
	if w.TasksCompleted == 0 {
		return 0, false
	}
	return float64(w.TasksApproved) / float64(w.TasksCompleted) * 100, true
}

// MeetsSkill reports whether the worker satisfies one skill requirement.
func (w WorkerSnapshot) MeetsSkill(req SkillRequirement) bool {
	level, ok := w.Skills[req.Skill]
	return ok && level >= req.MinLevel
}

// SkillOverlap counts how many of the given requirements the worker meets.
func (w WorkerSnapshot) SkillOverlap(reqs []SkillRequirement) int {
	n := 0
	for _, req := range reqs {
		if w.MeetsSkill(req) {
			n++
		}
	}
	return n
}
