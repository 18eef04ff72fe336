package trajectory

import (
	"math"
)

const (
	// OriginalProgressTolerance is how close an inverse lookup must land.
	OriginalProgressTolerance = 0.001

	maxInverseSteps = 64
)

// IndexForProgress maps progress in [0, 1] to the nearest sample index of an
// n-sample trajectory.
func IndexForProgress(n int, progress float64) int {
	if n <= 0 {
		return 0
	}
	return clampInt(int(math.Round(progress*float64(n))), 0, n-1)
}

// OriginalFraction is sample i's original timestamp normalized by the last
// sample's. Samples without original timestamps fall back to i/(n-1).
func (t Trajectory) OriginalFraction(i int) float64 {
	n := len(t)
	if n == 0 {
		return 0
	}
	i = clampInt(i, 0, n-1)
	last := t[n-1].OriginalTimestamp
	cur := t[i].OriginalTimestamp
	if cur == nil || last == nil || *last == 0 {
		if n == 1 {
			return 0
		}
		return float64(i) / float64(n-1)
	}
	return *cur / *last
}

// CurrentOriginalProgress returns where in the original footage progress p
// falls, as an absolute fraction of the source clip. sampledPercents with
// trimStart and trimEnd give the window the trajectory covers.
func (t Trajectory) CurrentOriginalProgress(p float64, sampledPercents []float64, trimStart, trimEnd int) float64 {
	if len(t) == 0 || len(sampledPercents) == 0 {
		return 0
	}
	start := sampledPercents[clampInt(trimStart, 0, len(sampledPercents)-1)]
	end := sampledPercents[clampInt(trimEnd, 0, len(sampledPercents)-1)]
	frac := t.OriginalFraction(IndexForProgress(len(t), p))
	return start + frac*(end-start)
}

// ProgressForOriginalProgress inverts the normalized original fraction by
// bisection over progress. It stops when the nearest sample lands within
// OriginalProgressTolerance of target, or when two consecutive guesses map
// to the same sample, in which case that sample's own progress is returned.
func (t Trajectory) ProgressForOriginalProgress(target float64) float64 {
	n := len(t)
	if n == 0 {
		return 0
	}

	lower, upper := 0.0, 1.0
	last := -1
	for step := 0; step < maxInverseSteps; step++ {
		guess := (lower + upper) / 2
		idx := IndexForProgress(n, guess)
		if idx == last {
			return float64(idx) / float64(n)
		}
		cur := t.OriginalFraction(idx)
		if math.Abs(cur-target) < OriginalProgressTolerance {
			return guess
		}
		if cur > target {
			upper = guess
		} else {
			lower = guess
		}
		last = idx
	}
	return (lower + upper) / 2
}

// LocalOriginalProgress maps an absolute original progress into the window
// [start, end]. ok is false when it falls outside the window, where no local
// sample exists.
func LocalOriginalProgress(original, start, end float64) (local float64, ok bool) {
	if original < start || original > end || end <= start {
		return 0, false
	}
	return (original - start) / (end - start), true
}
