// SPDX-License-Identifier: MIT
/*
Package dsp provides the real-time safe primitives of the spectral
compressor: fixed-capacity ring buffers and the per-bin compressor bank.

Everything in this package is designed for the audio hot path:
- No allocations after construction
- No locks, channels, or syscalls
- O(n) deterministic work per call
*/
package dsp

// Float constrains the sample types the DSP primitives operate on.
type Float interface {
	~float32 | ~float64
}

// Ring is a fixed-capacity circular sample buffer with a single cursor.
//
// Two usage patterns share the same type. Input rings advance the cursor
// by writing: Write appends arriving samples and CopyLast extracts the
// most recent window for analysis. Output rings advance the cursor by
// draining: Accumulate sums a processed window into the region starting
// at the cursor (overlap-add) and Drain/Discard emit the oldest finished
// samples, zeroing the slots behind them so the next overlap pass starts
// from silence.
//
// The cursor always points one past the most recently written (input) or
// most recently emitted (output) sample.
type Ring[T Float] struct {
	data []T
	pos  int
}

// NewRing creates a ring buffer holding capacity samples, all zero.
func NewRing[T Float](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("dsp: ring capacity must be positive")
	}
	return &Ring[T]{data: make([]T, capacity)}
}

// Cap returns the fixed capacity of the ring.
func (r *Ring[T]) Cap() int { return len(r.data) }

// Pos returns the current cursor position, in [0, Cap).
func (r *Ring[T]) Pos() int { return r.pos }

// Write appends len(src) samples, overwriting the oldest data, and
// advances the cursor. Callers never write more than Cap samples at once.
func (r *Ring[T]) Write(src []T) {
	n := len(src)
	p := r.pos
	head := len(r.data) - p
	if n <= head {
		copy(r.data[p:], src)
	} else {
		copy(r.data[p:], src[:head])
		copy(r.data, src[head:n])
	}
	r.pos = (p + n) % len(r.data)
}

// CopyLast copies the len(dst) most recently written samples into dst,
// oldest first, without consuming them.
func (r *Ring[T]) CopyLast(dst []T) {
	n := len(dst)
	start := r.pos - n
	if start >= 0 {
		copy(dst, r.data[start:r.pos])
		return
	}
	start += len(r.data)
	tail := len(r.data) - start
	copy(dst, r.data[start:])
	copy(dst[tail:], r.data[:r.pos])
}

// Accumulate adds gain*src[i] into the region starting at the cursor
// without advancing it. This is the overlap-add step: successive windows
// are summed at cursor positions that advance by one windowing interval
// per Drain/Discard cycle.
func (r *Ring[T]) Accumulate(src []T, gain T) {
	p := r.pos
	head := len(r.data) - p
	if len(src) <= head {
		for i, s := range src {
			r.data[p+i] += s * gain
		}
		return
	}
	for i, s := range src[:head] {
		r.data[p+i] += s * gain
	}
	for i, s := range src[head:] {
		r.data[i] += s * gain
	}
}

// Drain copies the len(dst) oldest not-yet-emitted samples into dst,
// zeroes them so future overlap passes accumulate onto silence, and
// advances the cursor.
func (r *Ring[T]) Drain(dst []T) {
	n := len(dst)
	p := r.pos
	head := len(r.data) - p
	if n <= head {
		copy(dst, r.data[p:p+n])
		zero(r.data[p : p+n])
	} else {
		copy(dst, r.data[p:])
		copy(dst[head:], r.data[:n-head])
		zero(r.data[p:])
		zero(r.data[:n-head])
	}
	r.pos = (p + n) % len(r.data)
}

// Discard zeroes and skips n samples without emitting them. Used while
// the pipeline fills during startup, so the cursor stays in lockstep
// with the input ring even though no output is produced yet.
func (r *Ring[T]) Discard(n int) {
	p := r.pos
	head := len(r.data) - p
	if n <= head {
		zero(r.data[p : p+n])
	} else {
		zero(r.data[p:])
		zero(r.data[:n-head])
	}
	r.pos = (p + n) % len(r.data)
}

// OverwriteBehind overwrites the len(src) slots immediately behind the
// cursor. The bypass path uses this to place an unprocessed interval so
// that it drains exactly one window size later, matching the latency of
// the processed path.
func (r *Ring[T]) OverwriteBehind(src []T) {
	n := len(src)
	start := r.pos - n
	if start >= 0 {
		copy(r.data[start:r.pos], src)
		return
	}
	start += len(r.data)
	tail := len(r.data) - start
	copy(r.data[start:], src[:tail])
	copy(r.data, src[tail:])
}

// Reset zeroes the buffer and rewinds the cursor.
func (r *Ring[T]) Reset() {
	zero(r.data)
	r.pos = 0
}

func zero[T Float](s []T) {
	for i := range s {
		s[i] = 0
	}
}
