// Package sizing provides safe size arithmetic and conversions to prevent overflow.
package sizing

import "math"

// ToInt converts an int64 to int, returning overflowErr if it doesn't fit.
func ToInt(size int64, overflowErr error) (int, error) {
	if size < 0 || size > math.MaxInt {
		return 0, overflowErr
	}
	return int(size), nil
}

// Clamp returns how many of length bytes starting at off lie before total.
// It never overflows, even for length near math.MaxInt64.
// Callers must ensure 0 <= off <= total and length >= 0.
func Clamp(off, length, total int64) int64 {
	return min(length, total-off)
}
