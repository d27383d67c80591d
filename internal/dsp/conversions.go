// SPDX-License-Identifier: MIT
package dsp

import "math"

// DBToLinear converts a decibel value to a linear gain multiplier.
func DBToLinear(dB float64) float64 {
	return math.Pow(10.0, dB/20.0)
}

// LinearToDB converts a linear gain multiplier to decibels.
// Returns a large negative floor for non-positive inputs.
func LinearToDB(linear float64) float64 {
	if linear <= 0 {
		return -120.0
	}
	return 20.0 * math.Log10(linear)
}
