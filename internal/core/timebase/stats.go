package timebase

import "sort"

// Intervals returns the differences between consecutive timestamps.
func Intervals(timestamps []float64) []float64 {
	if len(timestamps) < 2 {
		return nil
	}
	out := make([]float64, len(timestamps)-1)
	for i := 1; i < len(timestamps); i++ {
		out[i-1] = timestamps[i] - timestamps[i-1]
	}
	return out
}

// Median returns the median of values without modifying them.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// Outliers returns the indices of frames whose interval to the previous
// frame deviates from the median interval by more than tolerance.
func Outliers(timestamps []float64, tolerance float64) []int {
	intervals := Intervals(timestamps)
	return intervalOutliers(intervals, Median(intervals), tolerance)
}
