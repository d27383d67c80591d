// SPDX-License-Identifier: MIT
package dsp

import (
	"math"
	"testing"
)

func seq(start, n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = float64(start + i)
	}
	return s
}

func TestRingCopyLastReturnsRecentHistory(t *testing.T) {
	r := NewRing[float64](8)

	// Write 13 samples in uneven chunks so the cursor wraps mid-write.
	r.Write(seq(0, 5))
	r.Write(seq(5, 3))
	r.Write(seq(8, 5))

	got := make([]float64, 8)
	r.CopyLast(got)
	want := seq(5, 8) // samples 5..12, oldest first
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("CopyLast[%d]: got %v, want %v", i, got[i], want[i])
		}
	}

	// A shorter read returns only the newest samples.
	short := make([]float64, 3)
	r.CopyLast(short)
	for i, want := range seq(10, 3) {
		if short[i] != want {
			t.Errorf("CopyLast short[%d]: got %v, want %v", i, short[i], want)
		}
	}
}

func TestRingCopyLastDoesNotConsume(t *testing.T) {
	r := NewRing[float64](4)
	r.Write(seq(0, 4))

	a := make([]float64, 4)
	b := make([]float64, 4)
	r.CopyLast(a)
	r.CopyLast(b)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("repeated CopyLast changed contents at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestRingDrainZeroesBehind(t *testing.T) {
	r := NewRing[float64](8)
	r.Accumulate(seq(1, 8), 1.0)

	dst := make([]float64, 8)
	r.Drain(dst)
	for i, want := range seq(1, 8) {
		if dst[i] != want {
			t.Fatalf("Drain[%d]: got %v, want %v", i, dst[i], want)
		}
	}

	// The full cycle wrapped the cursor back to 0; everything behind it
	// must now be zero so the next overlap pass starts from silence.
	r.Drain(dst)
	for i, v := range dst {
		if v != 0 {
			t.Errorf("Drain after full cycle [%d]: got %v, want 0", i, v)
		}
	}
}

func TestRingDiscardZeroesAndAdvances(t *testing.T) {
	r := NewRing[float64](8)
	r.Accumulate(seq(1, 8), 1.0)

	r.Discard(5)
	if r.Pos() != 5 {
		t.Fatalf("Pos after Discard(5): got %d, want 5", r.Pos())
	}

	// Discarded slots must read back as zero once the cursor returns.
	dst := make([]float64, 8)
	r.Drain(dst)
	want := []float64{6, 7, 8, 0, 0, 0, 0, 0}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("post-Discard Drain[%d]: got %v, want %v", i, dst[i], want[i])
		}
	}
}

// TestRingOverlapAdd runs the overlap-add lifecycle the engine uses: a
// window of coefficients is accumulated every interval and drained one
// interval at a time. With a rectangular "window" every slot receives
// overlap contributions, so the drained output is overlap * gain.
func TestRingOverlapAdd(t *testing.T) {
	const (
		capacity = 8
		interval = 2
		overlap  = capacity / interval
	)
	r := NewRing[float64](capacity)
	window := make([]float64, capacity)
	for i := range window {
		window[i] = 1.0
	}

	out := make([]float64, interval)
	// Fill phase: accumulate a full window each interval, discarding
	// until every slot has seen overlap contributions.
	for cycle := 0; cycle < overlap; cycle++ {
		r.Accumulate(window, 0.5)
		r.Discard(interval)
	}
	for cycle := 0; cycle < 3*overlap; cycle++ {
		r.Accumulate(window, 0.5)
		r.Drain(out)
		for i, v := range out {
			if math.Abs(v-overlap*0.5) > 1e-15 {
				t.Fatalf("cycle %d sample %d: got %v, want %v", cycle, i, v, overlap*0.5)
			}
		}
	}
}

func TestRingOverwriteBehind(t *testing.T) {
	r := NewRing[float64](8)
	r.Write(seq(0, 6)) // cursor at 6

	r.OverwriteBehind([]float64{100, 101, 102})
	got := make([]float64, 6)
	r.CopyLast(got)
	want := []float64{0, 1, 2, 100, 101, 102}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("OverwriteBehind[%d]: got %v, want %v", i, got[i], want[i])
		}
	}

	// Wrapping case: cursor near the start, overwrite reaches back
	// across the buffer end.
	r = NewRing[float64](8)
	r.Write(seq(0, 10)) // cursor at 2
	r.OverwriteBehind([]float64{200, 201, 202, 203})
	got = make([]float64, 4)
	r.CopyLast(got)
	for i, want := range []float64{200, 201, 202, 203} {
		if got[i] != want {
			t.Errorf("wrapped OverwriteBehind[%d]: got %v, want %v", i, got[i], want)
		}
	}
}

func TestRingReset(t *testing.T) {
	r := NewRing[float64](4)
	r.Write(seq(1, 3))
	r.Reset()

	if r.Pos() != 0 {
		t.Errorf("Pos after Reset: got %d, want 0", r.Pos())
	}
	dst := make([]float64, 4)
	r.CopyLast(dst)
	for i, v := range dst {
		if v != 0 {
			t.Errorf("contents after Reset [%d]: got %v, want 0", i, v)
		}
	}
}

func TestRingFloat32(t *testing.T) {
	r := NewRing[float32](4)
	r.Write([]float32{1, 2, 3, 4})
	r.Write([]float32{5})

	got := make([]float32, 4)
	r.CopyLast(got)
	for i, want := range []float32{2, 3, 4, 5} {
		if got[i] != want {
			t.Errorf("float32 CopyLast[%d]: got %v, want %v", i, got[i], want)
		}
	}
}

func TestRingPanicsOnInvalidCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewRing(0) should panic")
		}
	}()
	NewRing[float64](0)
}

func TestRingHotPathDoesNotAllocate(t *testing.T) {
	r := NewRing[float64](64)
	chunk := seq(0, 16)
	window := seq(0, 64)
	out := make([]float64, 16)

	allocs := testing.AllocsPerRun(100, func() {
		r.Write(chunk)
		r.CopyLast(window)
		r.Accumulate(window, 0.25)
		r.Drain(out)
	})
	if allocs != 0 {
		t.Errorf("ring hot path allocated %.1f times per run, want 0", allocs)
	}
}
