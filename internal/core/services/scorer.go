package services

import (
	"time"

	"github.com/labelhive/labelhive/internal/core/domain"
	"github.com/labelhive/labelhive/internal/core/ports"
)

const baseWeight = 100

// WeightScorer assigns each eligible worker a selection priority for a pool.
// The additive term order is fixed: accuracy, experience, skill match, load,
// recency. Weighted random selection makes the magnitudes functional, so the
// terms must not be reordered or retuned casually.
type WeightScorer struct {
	clock ports.Clock
}

func NewWeightScorer(clock ports.Clock) *WeightScorer {
	return &WeightScorer{clock: clock}
}

// Score returns the worker's non-negative weight for the pool.
func (s *WeightScorer) Score(w domain.WorkerSnapshot, pool domain.WorkPool) int {
	weight := baseWeight

	// Accuracy bonus
	if acc, ok := w.Accuracy(); ok {
		switch {
		case acc > 95:
			weight += 20
		case acc > 90:
			weight += 10
		}
	}

	// Experience bonus
	switch {
	case w.TasksCompleted > 1000:
		weight += 15
	case w.TasksCompleted > 100:
		weight += 8
	}

	// Skill-match bonus
	weight += 5 * w.SkillOverlap(pool.RequiredSkills)

	// Load penalty
	switch {
	case w.ActiveTaskCount > 10:
		weight -= 20
	case w.ActiveTaskCount > 5:
		weight -= 10
	}

	// Recency. A zero LastActiveAt means the directory has no activity data
	// for the worker; that is neutral, not stale.
	if !w.LastActiveAt.IsZero() {
		idle := s.clock.Now().Sub(w.LastActiveAt)
		switch {
		case idle <= 24*time.Hour:
			weight += 10
		case idle > 7*24*time.Hour:
			weight -= 15
		}
	}

	if weight < 0 {
		weight = 0
	}
	return weight
}
