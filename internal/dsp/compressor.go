// SPDX-License-Identifier: MIT
package dsp

import "math"

// BinCompressor is a hard-knee dynamics compressor operating on the
// magnitude of a single frequency bin. It keeps one envelope follower
// per processing channel; the ballistics run at an effective sample rate
// of one step per windowing interval, not per audio sample.
type BinCompressor struct {
	thresholdLin float64
	thresholdInv float64
	ratioInv     float64
	attackCoeff  float64
	releaseCoeff float64

	env []float64 // envelope state, one per channel
}

// SetThresholdDB sets the compression threshold in decibels.
// Envelope state is preserved.
func (c *BinCompressor) SetThresholdDB(dB float64) {
	c.thresholdLin = DBToLinear(dB)
	c.thresholdInv = 1.0 / c.thresholdLin
}

// Process feeds one magnitude through the envelope follower for the
// given channel and returns the compressed magnitude.
func (c *BinCompressor) Process(channel int, magnitude float64) float64 {
	env := c.env[channel]
	if magnitude > env {
		env = magnitude + c.attackCoeff*(env-magnitude)
	} else {
		env = magnitude + c.releaseCoeff*(env-magnitude)
	}
	c.env[channel] = env

	if env <= c.thresholdLin {
		return magnitude
	}
	// Downward compression above the threshold: gain drops as the
	// envelope exceeds it, scaled by 1/ratio in the log domain.
	gain := math.Pow(env*c.thresholdInv, c.ratioInv-1.0)
	return magnitude * gain
}

// CompressorBank holds one BinCompressor per usable FFT bin. Bin 0 (DC)
// has no compressor; index i of the bank corresponds to FFT bin i+1.
type CompressorBank struct {
	comps    []BinCompressor
	channels int
}

// NewCompressorBank creates a bank of bins compressors, each with
// channel-count envelope followers. All state starts at zero; Configure
// must be called before processing.
func NewCompressorBank(bins, channels int) *CompressorBank {
	if bins <= 0 || channels <= 0 {
		panic("dsp: compressor bank needs positive bin and channel counts")
	}
	bank := &CompressorBank{
		comps:    make([]BinCompressor, bins),
		channels: channels,
	}
	for i := range bank.comps {
		bank.comps[i].env = make([]float64, channels)
		bank.comps[i].thresholdLin = 1.0
		bank.comps[i].thresholdInv = 1.0
	}
	return bank
}

// Bins returns the number of compressors in the bank.
func (b *CompressorBank) Bins() int { return len(b.comps) }

// Channels returns the per-compressor channel count.
func (b *CompressorBank) Channels() int { return b.channels }

// Configure updates ratio and ballistics on every compressor in the
// bank. effectiveRate is the rate at which Process is called per bin,
// i.e. sampleRate / windowingInterval, so attack and release times stay
// meaningful regardless of window size and overlap. Envelope state is
// preserved across reconfiguration.
func (b *CompressorBank) Configure(ratio, attackMs, releaseMs, effectiveRate float64) {
	if ratio < 1.0 {
		ratio = 1.0
	}
	ratioInv := 1.0 / ratio
	attackCoeff := ballisticsCoeff(attackMs, effectiveRate)
	releaseCoeff := ballisticsCoeff(releaseMs, effectiveRate)
	for i := range b.comps {
		b.comps[i].ratioInv = ratioInv
		b.comps[i].attackCoeff = attackCoeff
		b.comps[i].releaseCoeff = releaseCoeff
	}
}

// SetThresholdDB sets the threshold of the compressor for bank index i.
func (b *CompressorBank) SetThresholdDB(i int, dB float64) {
	b.comps[i].SetThresholdDB(dB)
}

// ThresholdDB returns the current threshold of bank index i in decibels.
func (b *CompressorBank) ThresholdDB(i int) float64 {
	return LinearToDB(b.comps[i].thresholdLin)
}

// Process compresses one magnitude through bank index i on the given
// channel.
func (b *CompressorBank) Process(i, channel int, magnitude float64) float64 {
	return b.comps[i].Process(channel, magnitude)
}

// Reset zeroes all envelope followers.
func (b *CompressorBank) Reset() {
	for i := range b.comps {
		env := b.comps[i].env
		for ch := range env {
			env[ch] = 0
		}
	}
}

// ballisticsCoeff returns the one-pole smoothing coefficient for a time
// constant in milliseconds at the given update rate. A zero time
// constant yields an instantaneous (coefficient 0) response.
func ballisticsCoeff(timeMs, rate float64) float64 {
	if timeMs <= 0 || rate <= 0 {
		return 0
	}
	return math.Exp(-1.0 / (timeMs * 0.001 * rate))
}
