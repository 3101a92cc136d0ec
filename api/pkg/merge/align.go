package merge

import (
	"math"
	"sort"
)

// ClosestMatch binary-searches sorted (ascending) timestamps for the
// entry nearest to target. It reports no match when the nearest
// entry's distance exceeds maxDiffSeconds, per spec.md §4.6's
// timestamp-matching helper - specified so alternative merge
// strategies (external frame indices) can reuse it instead of the
// direct video-seek path in Align.
func ClosestMatch(timestamps []float64, target, maxDiffSeconds float64) (index int, ok bool) {
	if len(timestamps) == 0 {
		return -1, false
	}

	i := sort.SearchFloat64s(timestamps, target)

	best := -1
	bestDiff := math.Inf(1)

	for _, candidate := range []int{i - 1, i} {
		if candidate < 0 || candidate >= len(timestamps) {
			continue
		}
		d := math.Abs(timestamps[candidate] - target)
		if d < bestDiff {
			best, bestDiff = candidate, d
		}
	}

	if best == -1 || bestDiff > maxDiffSeconds {
		return -1, false
	}
	return best, true
}
