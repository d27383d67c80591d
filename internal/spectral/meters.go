// SPDX-License-Identifier: MIT
package spectral

import (
	"math"
	"sync"
	"sync/atomic"
)

// meters is the engine's observability tap. The audio thread publishes
// per-bin gain multipliers with a TryLock so it can never block on a
// slow reader, and block peaks through plain atomics.
type meters struct {
	mu        sync.Mutex
	reduction []float64 // gain multipliers, channel 0, sized for the largest window
	bins      int

	inPeak  atomic.Uint64 // float64 bits
	outPeak atomic.Uint64
}

// publishReduction copies the latest per-bin gain multipliers into the
// snapshot if the lock is free; a contended cycle is skipped rather
// than waited for.
func (m *meters) publishReduction(gr []float64) {
	if !m.mu.TryLock() {
		return
	}
	copy(m.reduction[:len(gr)], gr)
	m.bins = len(gr)
	m.mu.Unlock()
}

// updatePeaks records the absolute block peaks of the first channel
// pair of input and output.
func (m *meters) updatePeaks(in, out [][]float64, channels int) {
	var inPeak, outPeak float64
	for ch := 0; ch < channels; ch++ {
		for _, s := range in[ch] {
			if a := math.Abs(s); a > inPeak {
				inPeak = a
			}
		}
		for _, s := range out[ch] {
			if a := math.Abs(s); a > outPeak {
				outPeak = a
			}
		}
	}
	m.inPeak.Store(math.Float64bits(inPeak))
	m.outPeak.Store(math.Float64bits(outPeak))
}

// GainReduction copies the most recent per-bin gain multipliers into
// dst (1.0 means no reduction) and returns the number of valid bins.
func (e *Engine) GainReduction(dst []float64) int {
	e.meters.mu.Lock()
	defer e.meters.mu.Unlock()
	n := e.meters.bins
	if n > len(dst) {
		n = len(dst)
	}
	copy(dst[:n], e.meters.reduction[:n])
	return n
}

// Peaks returns the absolute peak levels of the last processed block.
func (e *Engine) Peaks() (input, output float64) {
	return math.Float64frombits(e.meters.inPeak.Load()),
		math.Float64frombits(e.meters.outPeak.Load())
}

// BinFrequency returns the center frequency in Hz for meter bin index i
// (bank indexing: i corresponds to FFT bin i+1).
func (e *Engine) BinFrequency(i int) float64 {
	windowSize := float64(e.latency.Load())
	if windowSize <= 0 {
		return 0
	}
	return float64(i+1) * e.sampleRate / windowSize
}
