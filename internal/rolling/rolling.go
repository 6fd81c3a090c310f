// Package rolling inverts trailing window sums.
package rolling

import "math"

// Undo recovers the per-period values x from sums, where each sum is the
// trailing total of the last window periods:
//
//	sums[i] = x[i-window+1] + ... + x[i]
//
// Periods before the first one are taken to be zero, which gives the
// recurrence x[i] = sums[i] - sums[i-1] + x[i-window]. The recurrence runs
// on the unrounded values; each result is then rounded to the nearest
// integer and clamped at zero. A window below one is treated as one.
func Undo(sums []float64, window int) []int64 {
	if window < 1 {
		window = 1
	}
	raw := make([]float64, len(sums))
	out := make([]int64, len(sums))
	for i, s := range sums {
		x := s
		if i > 0 {
			x -= sums[i-1]
		}
		if i >= window {
			x += raw[i-window]
		}
		raw[i] = x
		if r := math.Round(x); r > 0 {
			out[i] = int64(r)
		}
	}
	return out
}

// HourWindow returns the number of bins of binMinutes each covered by a
// trailing one hour frame, that is the current bin and every bin starting in
// the 59 minutes before it.
func HourWindow(binMinutes int) int {
	if binMinutes < 1 {
		return 1
	}
	return 59/binMinutes + 1
}

// Sum applies a trailing window sum to values. It is the inverse of Undo for
// non-negative integer inputs.
func Sum(values []int64, window int) []float64 {
	if window < 1 {
		window = 1
	}
	out := make([]float64, len(values))
	var total int64
	for i, v := range values {
		total += v
		if i >= window {
			total -= values[i-window]
		}
		out[i] = float64(total)
	}
	return out
}
