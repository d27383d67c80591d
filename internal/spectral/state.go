// SPDX-License-Identifier: MIT
package spectral

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/SoundWareInc/spectral-compressor/internal/dsp"
	"github.com/SoundWareInc/spectral-compressor/pkg/bitint"
)

// procState bundles everything whose size depends on the window order:
// ring buffers, scratch buffers, the FFT plan, the window coefficient
// table, and the compressor bank. The audio thread owns exactly one
// procState at a time; the rebuild worker constructs replacements off
// the audio thread and publishes them for adoption (see swap.go).
type procState struct {
	windowSize int
	channels   int
	sampleRate float64

	// Windows processed since this state was built. Output is withheld
	// until one full window of real data has passed through, which is
	// what produces the reported latency.
	windowsDone int

	window   []float64
	fft      *fourier.FFT
	scratch  []float64     // windowSize time-domain samples
	spectrum []complex128  // windowSize/2+1 bins

	bank          *dsp.CompressorBank
	sidechainSums []float64 // per-bin magnitude accumulators
	meterGR       []float64 // per-bin gain multipliers from the last cycle

	inRings  []*dsp.Ring[float64]
	outRings []*dsp.Ring[float64]
	scRings  []*dsp.Ring[float64]
}

func newProcState(order, channels int, sampleRate float64) *procState {
	windowSize := 1 << order
	if !bitint.IsPowerOfTwo(windowSize) || channels <= 0 {
		panic("spectral: invalid process state dimensions")
	}

	// Bin 0 is the DC offset and gets no compressor; bins above the
	// Nyquist mirror are reconstructed implicitly by the real-only
	// inverse transform. That leaves windowSize/2 usable bins.
	bins := windowSize / 2

	st := &procState{
		windowSize:    windowSize,
		channels:      channels,
		sampleRate:    sampleRate,
		window:        hannTable(windowSize),
		fft:           fourier.NewFFT(windowSize),
		scratch:       make([]float64, windowSize),
		spectrum:      make([]complex128, windowSize/2+1),
		bank:          dsp.NewCompressorBank(bins, channels),
		sidechainSums: make([]float64, bins),
		meterGR:       make([]float64, bins),
		inRings:       make([]*dsp.Ring[float64], channels),
		outRings:      make([]*dsp.Ring[float64], channels),
		scRings:       make([]*dsp.Ring[float64], channels),
	}
	for ch := 0; ch < channels; ch++ {
		st.inRings[ch] = dsp.NewRing[float64](windowSize)
		st.outRings[ch] = dsp.NewRing[float64](windowSize)
		st.scRings[ch] = dsp.NewRing[float64](windowSize)
	}
	return st
}

// hannTable returns a periodic Hann window scaled so its squared
// overlap-add sums to the overlap factor. Combined with the 1/overlap
// term in the makeup gain this makes the analysis/synthesis chain
// transparent at ratio 1 for any overlap factor of three or more.
func hannTable(n int) []float64 {
	w := make([]float64, n)
	var sumsq float64
	for i := range w {
		w[i] = 0.5 * (1.0 - math.Cos(2.0*math.Pi*float64(i)/float64(n)))
		sumsq += w[i] * w[i]
	}
	scale := math.Sqrt(float64(n) / sumsq)
	for i := range w {
		w[i] *= scale
	}
	return w
}
