// SPDX-License-Identifier: MIT
package spectral

import (
	"math"
	"sync/atomic"
)

// Parameter ranges. The setters clamp so out-of-range values can never
// reach the processing path.
const (
	MinRatio = 1.0
	MaxRatio = 300.0

	MinAttackMs = 0.0
	MaxAttackMs = 10000.0

	MinReleaseMs = 0.0
	MaxReleaseMs = 10000.0

	MinWindowOrder = 9
	MaxWindowOrder = 15

	MinOverlapFactor = 2
	MaxOverlapFactor = 64
)

// Parameter defaults, matching the plugin's shipped preset.
const (
	DefaultRatio         = 50.0
	DefaultAttackMs      = 50.0
	DefaultReleaseMs     = 5000.0
	DefaultWindowOrder   = 12
	DefaultOverlapFactor = 4
	DefaultAutoMakeup    = true
)

// params holds the live parameter values. Every field is written from
// whatever thread delivers parameter changes (UI, config reload, tests)
// and read from the audio thread, so everything is atomic.
type params struct {
	sidechainActive atomic.Bool
	autoMakeup      atomic.Bool
	ratio           atomic.Uint64 // float64 bits
	attackMs        atomic.Uint64
	releaseMs       atomic.Uint64
	windowOrder     atomic.Int32
	overlapFactor   atomic.Int32
}

func (p *params) init() {
	p.storeFloat(&p.ratio, DefaultRatio)
	p.storeFloat(&p.attackMs, DefaultAttackMs)
	p.storeFloat(&p.releaseMs, DefaultReleaseMs)
	p.windowOrder.Store(DefaultWindowOrder)
	p.overlapFactor.Store(DefaultOverlapFactor)
	p.autoMakeup.Store(DefaultAutoMakeup)
}

func (p *params) storeFloat(dst *atomic.Uint64, v float64) {
	dst.Store(math.Float64bits(v))
}

func (p *params) loadFloat(src *atomic.Uint64) float64 {
	return math.Float64frombits(src.Load())
}

// SetSidechainActive switches the threshold source between the
// sidechain aggregator and the fixed pink-noise curve.
func (e *Engine) SetSidechainActive(active bool) {
	e.sidechainActive.Store(active)
	e.CompressorSettingsChanged()
}

// SidechainActive reports whether sidechain steering is enabled.
func (e *Engine) SidechainActive() bool { return e.sidechainActive.Load() }

// SetRatio sets the compression ratio, clamped to [MinRatio, MaxRatio].
func (e *Engine) SetRatio(ratio float64) {
	e.storeFloat(&e.ratio, clamp(ratio, MinRatio, MaxRatio))
	e.CompressorSettingsChanged()
}

// Ratio returns the current compression ratio.
func (e *Engine) Ratio() float64 { return e.loadFloat(&e.ratio) }

// SetAttack sets the compressor attack time in milliseconds.
func (e *Engine) SetAttack(ms float64) {
	e.storeFloat(&e.attackMs, clamp(ms, MinAttackMs, MaxAttackMs))
	e.CompressorSettingsChanged()
}

// Attack returns the attack time in milliseconds.
func (e *Engine) Attack() float64 { return e.loadFloat(&e.attackMs) }

// SetRelease sets the compressor release time in milliseconds.
func (e *Engine) SetRelease(ms float64) {
	e.storeFloat(&e.releaseMs, clamp(ms, MinReleaseMs, MaxReleaseMs))
	e.CompressorSettingsChanged()
}

// ReleaseTime returns the release time in milliseconds. (Engine.Release
// is resource teardown, hence the longer name here.)
func (e *Engine) ReleaseTime() float64 { return e.loadFloat(&e.releaseMs) }

// SetAutoMakeupGain toggles automatic makeup gain compensation.
func (e *Engine) SetAutoMakeupGain(enabled bool) {
	e.autoMakeup.Store(enabled)
	e.CompressorSettingsChanged()
}

// AutoMakeupGain reports whether automatic makeup gain is enabled.
func (e *Engine) AutoMakeupGain() bool { return e.autoMakeup.Load() }

// SetWindowOrder sets the FFT window order (window size = 2^order) and
// schedules a configuration rebuild if the value changed. The rebuild
// happens off the audio thread; audio keeps flowing through the old
// configuration until the new one is adopted.
func (e *Engine) SetWindowOrder(order int) {
	order = int(clamp(float64(order), MinWindowOrder, MaxWindowOrder))
	if e.windowOrder.Swap(int32(order)) != int32(order) {
		e.WindowOrderChanged()
	}
}

// WindowOrder returns the current FFT window order.
func (e *Engine) WindowOrder() int { return int(e.windowOrder.Load()) }

// SetOverlapFactor sets how many analysis windows overlap. This is a
// cheap in-place change: it retunes ballistics and makeup gain but does
// not rebuild buffers.
func (e *Engine) SetOverlapFactor(factor int) {
	e.overlapFactor.Store(int32(clamp(float64(factor), MinOverlapFactor, MaxOverlapFactor)))
	e.CompressorSettingsChanged()
}

// OverlapFactor returns the current overlap factor.
func (e *Engine) OverlapFactor() int { return int(e.overlapFactor.Load()) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
