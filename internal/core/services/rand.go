package services

import (
	"math/rand/v2"
	"sync"
)

// lockedRand serializes draws from a shared generator. Cycles for different
// pools may run concurrently with each other and with submissions, and
// rand/v2 generators are not safe for concurrent use; one lock keeps the
// stream intact while a single seed still reproduces it.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newLockedRand(rng *rand.Rand) *lockedRand {
	return &lockedRand{rng: rng}
}

func (r *lockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

func (r *lockedRand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(n)
}

func (r *lockedRand) Int64N(n int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Int64N(n)
}
