// SPDX-License-Identifier: MIT
// Package transport publishes engine meter data (per-bin gain reduction
// and block peaks) to external consumers. Nothing in this package runs
// on the audio thread; publishers poll the engine's meter snapshot at
// their own pace.
package transport

// MeterProvider is the read side of the engine's observability tap.
// Implementations must be safe to call concurrently with processing.
type MeterProvider interface {
	// GainReduction copies the latest per-bin gain multipliers into dst
	// (1.0 means no reduction) and returns the number of valid bins.
	GainReduction(dst []float64) int
	// Peaks returns the absolute peak levels of the last block.
	Peaks() (input, output float64)
	// BinFrequency returns the center frequency in Hz for bin index i.
	BinFrequency(i int) float64
}

// Transport sends one meter frame to wherever it is consumed.
// Implementations must be thread-safe.
type Transport interface {
	Send(frame MeterFrame) error
	Close() error
}

// MeterFrame is one published snapshot of the engine's meters.
type MeterFrame struct {
	Sequence      uint32    `json:"seq"`
	InputPeak     float64   `json:"input_peak"`
	OutputPeak    float64   `json:"output_peak"`
	GainReduction []float64 `json:"gain_reduction"`
}
