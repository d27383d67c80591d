// SPDX-License-Identifier: MIT
// Package testsignal generates deterministic audio test signals used by
// the engine tests and benchmarks.
package testsignal

import (
	"math"
	"math/rand"
)

// Sine returns n samples of a sine wave at the given frequency and
// sample rate, scaled to 0.5 peak.
func Sine(n int, sampleRate, frequency float64) []float64 {
	buffer := make([]float64, n)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = 0.5 * math.Sin(2*math.Pi*frequency*t)
	}
	return buffer
}

// Harmonics returns n samples of a 440 Hz fundamental with two
// harmonics, scaled to stay inside [-1, 1].
func Harmonics(n int, sampleRate float64) []float64 {
	buffer := make([]float64, n)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = 0.5*math.Sin(2*math.Pi*440*t) +
			0.3*math.Sin(2*math.Pi*880*t) +
			0.2*math.Sin(2*math.Pi*1320*t)
	}
	return buffer
}

// Noise returns n samples of seeded uniform noise in [-0.5, 0.5].
func Noise(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	buffer := make([]float64, n)
	for i := range buffer {
		buffer[i] = rng.Float64() - 0.5
	}
	return buffer
}

// Impulse returns n samples of silence with a single unit impulse at
// index at.
func Impulse(n, at int) []float64 {
	buffer := make([]float64, n)
	if at >= 0 && at < n {
		buffer[at] = 1.0
	}
	return buffer
}

// MaxAbsDiff returns the largest absolute difference between a and b
// over the overlapping range.
func MaxAbsDiff(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var max float64
	for i := 0; i < n; i++ {
		if d := math.Abs(a[i] - b[i]); d > max {
			max = d
		}
	}
	return max
}
