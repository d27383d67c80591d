// SPDX-License-Identifier: MIT
// Package config loads and validates the application configuration from
// YAML, environment overrides, and built-in defaults.
package config

// Limits and defaults for the audio device layer. The compressor
// parameter ranges themselves live in internal/spectral, next to the
// code that enforces them.
const (
	DefaultSampleRate      = 44100
	DefaultFramesPerBuffer = 512
	DefaultChannels        = 2

	MinDeviceID   = -1 // -1 selects the system default device
	MinSampleRate = 8000
	MaxSampleRate = 192000
	MaxBlockSize  = 8192
)
