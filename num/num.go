// Package num implements various utility functions regarding numeric types.
package num

import "math/bits"

// CeilDiv returns the ceiling of x / y.
func CeilDiv(x, y int) int {
	return (x + y - 1) / y
}

// Log2Ceil returns the ceiling of log2(x).
// Returns 0 for x <= 1.
func Log2Ceil(x int) int {
	if x <= 1 {
		return 0
	}
	return bits.Len(uint(x - 1))
}

// Log2Floor returns the floor of log2(x).
// Panics if x <= 0.
func Log2Floor(x int) int {
	if x <= 0 {
		panic("log2 of non-positive value")
	}
	return bits.Len(uint(x)) - 1
}

// IsPowerOfTwo returns whether x is a power of two.
func IsPowerOfTwo(x int) bool {
	return x > 0 && x&(x-1) == 0
}

// NextPowerOfTwo returns the smallest power of two not less than x.
func NextPowerOfTwo(x int) int {
	if x <= 1 {
		return 1
	}
	return 1 << Log2Ceil(x)
}
