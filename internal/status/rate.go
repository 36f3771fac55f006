package status

import "math"

// RatePerMinute is the average rate of change of temps over times, in
// degrees per minute. Times are in seconds. Missing samples (NaN) are
// skipped; fewer than two usable samples give zero.
func RatePerMinute(times, temps []float64) float64 {
	first, last := -1, -1
	for i := range temps {
		if math.IsNaN(temps[i]) {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	if first < 0 || first == last {
		return 0
	}
	dt := times[last] - times[first]
	if dt <= 0 {
		return 0
	}
	return (temps[last] - temps[first]) / dt * 60
}
