// SPDX-License-Identifier: MIT
// Package bitint provides the power-of-2 helpers the engine needs for
// FFT window and buffer sizing. All operations are O(1), allocation
// free, and safe on the real-time path.
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size. The size-1
// subtraction keeps exact powers of 2 from being doubled. Non-positive
// inputs return 1.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len64(uint64(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2. Powers of 2
// have exactly one bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
