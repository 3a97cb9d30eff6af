package services

import (
	"github.com/labelhive/labelhive/internal/core/domain"
)

// qcInjectionRate is the fixed probability that an item about to be assigned
// is replaced with a known-answer probe.
const qcInjectionRate = 0.10

// QCInjector decides, per assignment slot, whether to substitute a quality
// probe for the real work content. The decision is made at assignment time,
// so an item left pending may be re-evaluated on a later cycle.
type QCInjector struct {
	rng *lockedRand
}

// NewQCInjector builds an injector around the given generator. Callers seed
// the generator themselves; tests pass a fixed seed for reproducibility.
func NewQCInjector(rng *lockedRand) *QCInjector {
	return &QCInjector{rng: rng}
}

// Probe returns the probe template to substitute for the next slot, or nil
// when the slot keeps its real content. Pools without probe templates are
// never injected.
func (q *QCInjector) Probe(pool *domain.WorkPool) *domain.ProbeTemplate {
	if len(pool.Probes) == 0 {
		return nil
	}
	if q.rng.Float64() >= qcInjectionRate {
		return nil
	}
	probe := pool.Probes[q.rng.IntN(len(pool.Probes))]
	return &probe
}
