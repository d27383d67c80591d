// SPDX-License-Identifier: MIT
/*
Package spectral implements a frequency-domain dynamic-range compressor:
the input signal is analyzed in overlapping FFT windows, every usable
frequency bin is compressed independently (optionally steered by a
sidechain signal), and the output is reconstructed by overlap-add.

Thread model:
- ProcessBlock and ProcessBlockBypassed run on the audio thread and
  never allocate, lock, or block.
- Parameter setters and the configuration rebuild worker run on
  whatever goroutine calls them; they communicate with the audio
  thread only through atomics and a published-state pointer.
*/
package spectral

import (
	"fmt"
	"math"
	"math/cmplx"
	"sync"
	"sync/atomic"

	applog "github.com/SoundWareInc/spectral-compressor/internal/log"
)

// baseThresholdDB anchors the fixed (non-sidechain) threshold curve.
const baseThresholdDB = 0.0

// Processor is the capability contract the host layer consumes: block
// processing with a bypassed variant of identical latency, transport
// preparation, and latency reporting.
type Processor interface {
	Prepare(sampleRate float64, maxBlockSize, channels int) error
	Release()
	ProcessBlock(in, sidechain, out [][]float64)
	ProcessBlockBypassed(in, out [][]float64)
	LatencySamples() int
}

// Engine is the concrete spectral compressor.
type Engine struct {
	params

	sampleRate   float64
	maxBlockSize int
	channels     int

	// Audio-thread owned. currentState swaps in published rebuilds.
	state      *procState
	published  atomic.Pointer[procState]
	makeupGain float64

	settingsDirty atomic.Bool
	latency       atomic.Int64

	rebuildCh chan struct{}
	stopCh    chan struct{}
	wg        sync.WaitGroup
	prepared  bool

	meters meters
}

var _ Processor = (*Engine)(nil)

// ValidateLayout rejects unsupported bus layouts before any processing
// happens: the sidechain bus, when present, must carry exactly as many
// channels as the main input.
func ValidateLayout(mainChannels, sidechainChannels int) error {
	if mainChannels <= 0 {
		return fmt.Errorf("spectral: main bus needs at least one channel, got %d", mainChannels)
	}
	if sidechainChannels != 0 && sidechainChannels != mainChannels {
		return fmt.Errorf("spectral: sidechain bus must match the main bus (%d channels), got %d",
			mainChannels, sidechainChannels)
	}
	return nil
}

// NewEngine creates an engine with default parameters. Prepare must be
// called before processing.
func NewEngine() *Engine {
	e := &Engine{}
	e.params.init()
	e.meters.reduction = make([]float64, 1<<(MaxWindowOrder-1))
	return e
}

// Prepare sizes the engine for a transport: it builds the initial
// process configuration synchronously and starts the rebuild worker.
// Calling Prepare on a prepared engine re-prepares it.
func (e *Engine) Prepare(sampleRate float64, maxBlockSize, channels int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("spectral: sample rate must be positive, got %g", sampleRate)
	}
	if maxBlockSize <= 0 || channels <= 0 {
		return fmt.Errorf("spectral: block size and channel count must be positive, got %d/%d",
			maxBlockSize, channels)
	}
	if e.prepared {
		e.Release()
	}

	e.sampleRate = sampleRate
	e.maxBlockSize = maxBlockSize
	e.channels = channels

	st := newProcState(e.WindowOrder(), channels, sampleRate)
	e.state = st
	e.published.Store(nil)
	e.latency.Store(int64(st.windowSize))
	e.settingsDirty.Store(true)

	e.rebuildCh = make(chan struct{}, 1)
	e.stopCh = make(chan struct{})
	e.wg.Add(1)
	go e.rebuildWorker()
	e.prepared = true

	applog.Infof("Spectral: prepared (rate %.1f Hz, window %d, %d channel(s))",
		sampleRate, st.windowSize, channels)
	return nil
}

// Release stops the rebuild worker and drops all processing state.
func (e *Engine) Release() {
	if !e.prepared {
		return
	}
	close(e.stopCh)
	e.wg.Wait()
	e.state = nil
	e.published.Store(nil)
	e.prepared = false
}

// LatencySamples reports the processing latency, which always equals
// the window size of the configuration the audio thread is using.
func (e *Engine) LatencySamples() int {
	return int(e.latency.Load())
}

// SampleRate returns the prepared sample rate.
func (e *Engine) SampleRate() float64 { return e.sampleRate }

// Channels returns the prepared channel count.
func (e *Engine) Channels() int { return e.channels }

// CompressorSettingsChanged marks the compressor bank for an in-place
// settings refresh, applied at most once at the start of the next
// processed block. Safe to call from any thread.
func (e *Engine) CompressorSettingsChanged() {
	e.settingsDirty.Store(true)
}

// ProcessBlock runs one host block through the compressor. in and out
// must each carry at least the prepared channel count of equal-length
// slices; they may alias. sidechain may be nil (treated as silence)
// and is only read while sidechain mode is active. Output channels
// beyond the prepared channel count are zero-filled.
//
// Real-time safe: no allocations, locks, or blocking operations.
func (e *Engine) ProcessBlock(in, sidechain, out [][]float64) {
	st := e.currentState()
	if e.settingsDirty.CompareAndSwap(true, false) {
		e.updateCompressorSettings(st)
	}
	e.doSTFT(st, in, sidechain, out, false)
	e.meters.updatePeaks(in, out, st.channels)
}

// ProcessBlockBypassed keeps the buffering, scheduling and latency of
// ProcessBlock but substitutes a direct copy for the spectral
// processing, so toggling bypass never causes a latency jump.
func (e *Engine) ProcessBlockBypassed(in, out [][]float64) {
	st := e.currentState()
	e.doSTFT(st, in, nil, out, true)
	e.meters.updatePeaks(in, out, st.channels)
}

// currentState returns the configuration the audio thread should use,
// adopting a freshly published rebuild if one is waiting. The swap is a
// single atomic pointer exchange; the superseded state is released by
// the garbage collector, never on the audio thread.
func (e *Engine) currentState() *procState {
	if next := e.published.Swap(nil); next != nil {
		e.state = next
		e.latency.Store(int64(next.windowSize))
	}
	return e.state
}

// doSTFT reconciles an arbitrary host block against the fixed windowing
// interval: it forwards samples into the ring buffers, fires one STFT
// cycle each time the input aligns with an interval boundary, and
// drains matured output (or silence, while the pipeline is filling)
// back to the host.
func (e *Engine) doSTFT(st *procState, in, sidechain, out [][]float64, bypassed bool) {
	blockLen := 0
	if len(in) > 0 {
		blockLen = len(in[0])
	}
	if blockLen == 0 {
		return
	}

	overlap := e.OverlapFactor()
	interval := st.windowSize / overlap
	scActive := !bypassed && e.SidechainActive()

	// Deterministic output on mismatched layouts: anything beyond the
	// configured channel count is silence.
	for ch := st.channels; ch < len(out); ch++ {
		zeroFill(out[ch][:blockLen])
	}

	// Samples needed to complete the ring buffers' alignment to the
	// next interval boundary. These belong to a window that has already
	// been (or will be) processed, so they are buffered and drained
	// without firing a cycle.
	already := (interval - st.inRings[0].Pos()%interval) % interval
	if already > blockLen {
		already = blockLen
	}
	toProcess := blockLen - already
	windows := (toProcess + interval - 1) / interval

	offset := 0
	if already > 0 {
		e.stepBuffers(st, in, sidechain, out, offset, already, overlap, scActive)
		offset += already
	}

	for w := 0; w < windows; w++ {
		if bypassed {
			e.bypassWindow(st, interval)
		} else {
			e.processWindow(st, scActive)
		}
		st.windowsDone++

		chunk := interval
		if remaining := blockLen - offset; chunk > remaining {
			chunk = remaining
		}
		e.stepBuffers(st, in, sidechain, out, offset, chunk, overlap, scActive)
		offset += chunk
	}

	if offset != blockLen {
		panic(fmt.Sprintf("spectral: consumed %d of %d block samples", offset, blockLen))
	}
}

// stepBuffers moves one chunk of samples between the host buffers and
// the ring buffers: input (and sidechain) samples in, matured output
// samples out. Until the first window size of real data has passed
// through, the output is silence and the drained slots are discarded so
// the output cursor stays in lockstep with the input cursor.
func (e *Engine) stepBuffers(st *procState, in, sidechain, out [][]float64, offset, n, overlap int, scActive bool) {
	for ch := 0; ch < st.channels; ch++ {
		st.inRings[ch].Write(in[ch][offset : offset+n])
		if st.windowsDone >= overlap {
			st.outRings[ch].Drain(out[ch][offset : offset+n])
		} else {
			zeroFill(out[ch][offset : offset+n])
			st.outRings[ch].Discard(n)
		}
		if scActive {
			if ch < len(sidechain) {
				st.scRings[ch].Write(sidechain[ch][offset : offset+n])
			} else {
				st.scRings[ch].Discard(n)
			}
		}
	}
}

// processWindow runs one full STFT cycle: sidechain threshold update,
// analysis windowing, forward transform, per-bin compression, inverse
// transform, synthesis windowing, and overlap-add with makeup gain.
func (e *Engine) processWindow(st *procState, scActive bool) {
	bins := st.bank.Bins()

	if scActive {
		// Thresholds follow the arithmetic mean of the sidechain bin
		// magnitudes across channels. Compression is already ballistics
		// based, so no extra smoothing is needed here. The accumulators
		// are zeroed as they are consumed.
		for ch := 0; ch < st.channels; ch++ {
			st.scRings[ch].CopyLast(st.scratch)
			st.fft.Coefficients(st.spectrum, st.scratch)
			for i := 0; i < bins; i++ {
				st.sidechainSums[i] += cmplx.Abs(st.spectrum[i+1])
			}
		}
		chInv := 1.0 / float64(st.channels)
		for i := 0; i < bins; i++ {
			st.bank.SetThresholdDB(i, st.sidechainSums[i]*chInv)
			st.sidechainSums[i] = 0
		}
	}

	invSize := 1.0 / float64(st.windowSize)
	for ch := 0; ch < st.channels; ch++ {
		st.inRings[ch].CopyLast(st.scratch)
		for i, w := range st.window {
			st.scratch[i] *= w
		}
		st.fft.Coefficients(st.spectrum, st.scratch)

		// Compress the magnitude of every usable bin and scale the
		// complex bin by the result, which preserves phase. Bin 0 (DC)
		// is skipped; the mirrored upper half is reconstructed by the
		// real-only inverse transform.
		for i := 0; i < bins; i++ {
			bin := i + 1
			magnitude := cmplx.Abs(st.spectrum[bin])
			compressed := st.bank.Process(i, ch, magnitude)

			multiplier := 1.0
			if magnitude != 0 {
				multiplier = compressed / magnitude
			}
			st.spectrum[bin] *= complex(multiplier, 0)
			if ch == 0 {
				st.meterGR[i] = multiplier
			}
		}

		st.fft.Sequence(st.scratch, st.spectrum)
		// Sequence(Coefficients(x)) scales by the window size, so the
		// synthesis windowing folds the 1/N normalization in.
		for i, w := range st.window {
			st.scratch[i] *= w * invSize
		}
		st.outRings[ch].Accumulate(st.scratch, e.makeupGain)
	}

	e.meters.publishReduction(st.meterGR)
}

// bypassWindow copies the previous interval of input straight into the
// output ring, windowed by the same interval scheduling, preserving the
// window-size latency of the processed path.
func (e *Engine) bypassWindow(st *procState, interval int) {
	for ch := 0; ch < st.channels; ch++ {
		st.inRings[ch].CopyLast(st.scratch[:interval])
		st.outRings[ch].OverwriteBehind(st.scratch[:interval])
	}
}

// updateCompressorSettings applies the cheap in-place parameter update:
// ballistics retuned to the effective cycle rate, thresholds recomputed
// when the fixed curve is active, and the makeup gain refreshed. Runs
// on the audio thread, gated to at most once per block by the caller's
// compare-and-swap on the dirty flag. Allocation-free.
func (e *Engine) updateCompressorSettings(st *procState) {
	overlap := float64(e.OverlapFactor())
	ratio := e.Ratio()

	// One Process call per bin happens every windowing interval, not
	// every sample, so the ballistics run at this effective rate.
	effectiveRate := e.sampleRate / (float64(st.windowSize) / overlap)
	st.bank.Configure(ratio, e.Attack(), e.ReleaseTime(), effectiveRate)

	sidechain := e.SidechainActive()
	if !sidechain {
		// Fixed thresholds tilted 3 dB per octave to match pink noise,
		// with a small compensation constant for bin 0.
		freqIncrement := e.sampleRate / float64(st.windowSize)
		for i := 0; i < st.bank.Bins(); i++ {
			frequency := freqIncrement * float64(i+1)
			octave := math.Log2(frequency + 2.0)
			st.bank.SetThresholdDB(i, (baseThresholdDB+3.0)-3.0*octave)
		}
	}

	// 1/overlap compensates the energy added by overlapping synthesis
	// windows. The automatic terms are empirically fitted to the ratio
	// range; they are kept verbatim for compatibility.
	makeup := 1.0 / overlap
	if e.AutoMakeupGain() {
		if sidechain {
			makeup *= (ratio + 24.0) / 25.0
		} else {
			makeup *= math.Log10(ratio*100.0)*200.0 - 399.0
		}
	}
	e.makeupGain = makeup
}

func zeroFill(s []float64) {
	for i := range s {
		s[i] = 0
	}
}
