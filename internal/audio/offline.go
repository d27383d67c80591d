// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "github.com/SoundWareInc/spectral-compressor/internal/log"
	"github.com/SoundWareInc/spectral-compressor/internal/spectral"
)

// OfflineOptions configures a file-to-file processing run.
type OfflineOptions struct {
	InputPath     string
	SidechainPath string // Empty for no sidechain.
	OutputPath    string
	BlockSize     int // Frames per engine block; <= 0 picks a default.
}

// ProcessFile runs a WAV file through the engine and writes the
// compressed result. The engine's latency is compensated: the output
// file lines up sample-for-sample with the input.
func ProcessFile(engine *spectral.Engine, opts OfflineOptions) error {
	if opts.BlockSize <= 0 {
		opts.BlockSize = 4096
	}

	main, err := loadWAV(opts.InputPath)
	if err != nil {
		return fmt.Errorf("input: %w", err)
	}

	var sidechain *pcmFile
	if opts.SidechainPath != "" {
		sidechain, err = loadWAV(opts.SidechainPath)
		if err != nil {
			return fmt.Errorf("sidechain: %w", err)
		}
		if sidechain.sampleRate != main.sampleRate {
			return fmt.Errorf("sidechain sample rate %d does not match input %d",
				sidechain.sampleRate, main.sampleRate)
		}
	}

	scChannels := 0
	if sidechain != nil {
		scChannels = sidechain.channels
	}
	if err := spectral.ValidateLayout(main.channels, scChannels); err != nil {
		return err
	}

	if err := engine.Prepare(float64(main.sampleRate), opts.BlockSize, main.channels); err != nil {
		return err
	}
	defer engine.Release()

	latency := engine.LatencySamples()
	frames := len(main.samples[0])
	applog.Infof("Offline: processing %d frames at %d Hz (%d ch, latency %d samples)",
		frames, main.sampleRate, main.channels, latency)

	out := makeBlock(main.channels, opts.BlockSize)
	inBlock := makeBlock(main.channels, opts.BlockSize)
	var scBlock [][]float64
	if sidechain != nil {
		scBlock = makeBlock(sidechain.channels, opts.BlockSize)
	}
	processed := makeBlock(main.channels, 0)
	for ch := range processed {
		processed[ch] = make([]float64, 0, frames+latency)
	}

	// Push frames+latency samples through so the delayed tail of the
	// real signal comes out the other end.
	for offset := 0; offset < frames+latency; offset += opts.BlockSize {
		n := opts.BlockSize
		if offset+n > frames+latency {
			n = frames + latency - offset
		}

		for ch := 0; ch < main.channels; ch++ {
			copyPadded(inBlock[ch][:n], main.samples[ch], offset)
		}
		if sidechain != nil {
			for ch := 0; ch < sidechain.channels; ch++ {
				copyPadded(scBlock[ch][:n], sidechain.samples[ch], offset)
			}
		}

		engine.ProcessBlock(trimBlock(inBlock, n), trimSidechain(scBlock, n), trimBlock(out, n))

		for ch := 0; ch < main.channels; ch++ {
			processed[ch] = append(processed[ch], out[ch][:n]...)
		}
	}

	// Drop the leading latency samples so the file lines up.
	for ch := range processed {
		processed[ch] = processed[ch][latency : latency+frames]
	}

	return writeWAV(opts.OutputPath, processed, main.sampleRate, main.bitDepth)
}

func trimSidechain(block [][]float64, frames int) [][]float64 {
	if block == nil {
		return nil
	}
	return trimBlock(block, frames)
}

// copyPadded copies src[offset:] into dst, zero-filling past the end
// of src.
func copyPadded(dst, src []float64, offset int) {
	for i := range dst {
		if offset+i < len(src) {
			dst[i] = src[offset+i]
		} else {
			dst[i] = 0
		}
	}
}

// pcmFile is a fully decoded WAV file as float64 channel planes.
type pcmFile struct {
	samples    [][]float64
	channels   int
	sampleRate int
	bitDepth   int
}

func loadWAV(path string) (*pcmFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %q: %w", path, err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("%q has no usable format", path)
	}

	channels := buf.Format.NumChannels
	bitDepth := int(dec.BitDepth)
	scale := 1.0 / (float64(int(1)<<(bitDepth-1)) - 1)
	frames := len(buf.Data) / channels

	samples := makeBlock(channels, frames)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			samples[ch][i] = float64(buf.Data[i*channels+ch]) * scale
		}
	}

	return &pcmFile{
		samples:    samples,
		channels:   channels,
		sampleRate: buf.Format.SampleRate,
		bitDepth:   bitDepth,
	}, nil
}

func writeWAV(path string, samples [][]float64, sampleRate, bitDepth int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	channels := len(samples)
	frames := len(samples[0])
	scale := float64(int(1)<<(bitDepth-1)) - 1

	enc := wav.NewEncoder(f, sampleRate, bitDepth, channels, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		SourceBitDepth: bitDepth,
		Data:           make([]int, frames*channels),
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			buf.Data[i*channels+ch] = int(clamp(samples[ch][i]) * scale)
		}
	}

	if err := enc.Write(buf); err != nil {
		enc.Close()
		f.Close()
		return fmt.Errorf("failed to write %q: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("failed to finalize %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %q: %w", path, err)
	}

	applog.Infof("Offline: wrote %d frames to %s", frames, path)
	return nil
}
