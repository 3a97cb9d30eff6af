package services

// selectByDraw resolves a draw in [1, totalWeight] against the cumulative
// weight array: the first index whose cumulative weight reaches the draw is
// selected. A draw landing exactly on a weight boundary therefore selects the
// earlier-indexed candidate, which keeps selection reproducible for tests.
func selectByDraw(weights []int, draw int64) int {
	var cum int64
	for i, w := range weights {
		cum += int64(w)
		if cum >= draw {
			return i
		}
	}
	return len(weights) - 1
}

// pickWeighted selects an index with probability proportional to its weight.
// When every weight is zero the pick falls back to uniform: an eligible
// worker with a floored score is still a legal assignee.
func pickWeighted(rng *lockedRand, weights []int) int {
	var total int64
	for _, w := range weights {
		total += int64(w)
	}
	if total == 0 {
		return rng.IntN(len(weights))
	}
	return selectByDraw(weights, rng.Int64N(total)+1)
}
