package recovery

import (
	"math"
	"sort"
)

// median returns the middle value of vs (average of the two middle values for
// even counts). Zero for empty input.
func median(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sorted := make([]float64, len(vs))
	copy(sorted, vs)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// stdDev returns the population standard deviation of vs. Zero for fewer
// than two values.
func stdDev(vs []float64) float64 {
	if len(vs) < 2 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	mean := sum / float64(len(vs))

	var sq float64
	for _, v := range vs {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(vs)))
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
