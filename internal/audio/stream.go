// SPDX-License-Identifier: MIT
/*
Package audio connects the spectral compressor engine to the outside
world: live duplex streaming through PortAudio, WAV recording of the
processed output, and offline file processing.

Thread Safety:
- The stream callback runs on the PortAudio thread with pre-allocated
  buffers only; no allocations in the hot path
- Recording state is an atomic flag so Start/StopRecording can be
  called from any goroutine
*/
package audio

import (
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"

	"github.com/SoundWareInc/spectral-compressor/internal/config"
	applog "github.com/SoundWareInc/spectral-compressor/internal/log"
	"github.com/SoundWareInc/spectral-compressor/internal/spectral"
)

// Stream runs a full-duplex PortAudio stream through a spectral
// compressor engine: input device in, compressed signal out.
type Stream struct {
	config *config.Config
	engine *spectral.Engine

	inputDevice   *portaudio.DeviceInfo
	outputDevice  *portaudio.DeviceInfo
	inputLatency  time.Duration
	outputLatency time.Duration
	stream        *portaudio.Stream

	bypassed atomic.Bool

	// Pre-allocated float64 channel blocks for the engine. PortAudio
	// hands us float32; the engine works in float64.
	inBlock  [][]float64
	outBlock [][]float64

	// Recording state and buffers.
	isRecording int32 // Atomic flag for thread-safe state
	outputFile  *os.File
	wavEncoder  *wav.Encoder
	sampleBuf   *audio.IntBuffer
	recScale    float64
}

// NewStream resolves devices and builds the stream around an engine
// that must already be prepared for cfg's sample rate and block size.
func NewStream(cfg *config.Config, engine *spectral.Engine) (*Stream, error) {
	inputDevice, err := InputDevice(cfg.Audio.InputDevice)
	if err != nil {
		return nil, err
	}
	outputDevice, err := OutputDevice(cfg.Audio.OutputDevice)
	if err != nil {
		return nil, err
	}

	if cfg.Audio.Channels > inputDevice.MaxInputChannels {
		return nil, fmt.Errorf("input device %q has %d channels, need %d",
			inputDevice.Name, inputDevice.MaxInputChannels, cfg.Audio.Channels)
	}
	if cfg.Audio.Channels > outputDevice.MaxOutputChannels {
		return nil, fmt.Errorf("output device %q has %d channels, need %d",
			outputDevice.Name, outputDevice.MaxOutputChannels, cfg.Audio.Channels)
	}

	s := &Stream{
		config:       cfg,
		engine:       engine,
		inputDevice:  inputDevice,
		outputDevice: outputDevice,
		inBlock:      makeBlock(cfg.Audio.Channels, cfg.Audio.FramesPerBuffer),
		outBlock:     makeBlock(cfg.Audio.Channels, cfg.Audio.FramesPerBuffer),
	}

	if cfg.Audio.LowLatency {
		s.inputLatency = inputDevice.DefaultLowInputLatency
		s.outputLatency = outputDevice.DefaultLowOutputLatency
	} else {
		s.inputLatency = inputDevice.DefaultHighInputLatency
		s.outputLatency = outputDevice.DefaultHighOutputLatency
	}

	return s, nil
}

func makeBlock(channels, frames int) [][]float64 {
	block := make([][]float64, channels)
	for ch := range block {
		block[ch] = make([]float64, frames)
	}
	return block
}

// Start opens and starts the duplex stream.
func (s *Stream) Start() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: s.config.Audio.Channels,
			Device:   s.inputDevice,
			Latency:  s.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: s.config.Audio.Channels,
			Device:   s.outputDevice,
			Latency:  s.outputLatency,
		},
		FramesPerBuffer: s.config.Audio.FramesPerBuffer,
		SampleRate:      s.config.Audio.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, s.processStream)
	if err != nil {
		return fmt.Errorf("failed to open duplex stream: %w", err)
	}
	s.stream = stream

	if err := s.stream.Start(); err != nil {
		s.stream.Close()
		s.stream = nil
		return fmt.Errorf("failed to start duplex stream: %w", err)
	}

	applog.Infof("Audio: duplex stream running (%s -> %s, %.0f Hz, %d frames, latency %d samples)",
		s.inputDevice.Name, s.outputDevice.Name,
		s.config.Audio.SampleRate, s.config.Audio.FramesPerBuffer,
		s.engine.LatencySamples())
	return nil
}

// Stop stops and closes the stream.
func (s *Stream) Stop() error {
	if s.stream == nil {
		return nil
	}
	if err := s.stream.Stop(); err != nil {
		return err
	}
	if err := s.stream.Close(); err != nil {
		return err
	}
	s.stream = nil
	return nil
}

// SetBypassed toggles the compressor in and out of the signal path.
// The bypass path keeps the same latency so switching is click-safe.
func (s *Stream) SetBypassed(bypassed bool) {
	s.bypassed.Store(bypassed)
}

// processStream is the PortAudio callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - Uses pre-allocated buffers only
// - No dynamic allocations in the hot path
func (s *Stream) processStream(in, out [][]float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	channels := s.config.Audio.Channels
	frames := len(in[0])

	for ch := 0; ch < channels; ch++ {
		src := in[ch]
		dst := s.inBlock[ch][:frames]
		for i := range src {
			dst[i] = float64(src[i])
		}
	}

	inBlock := trimBlock(s.inBlock, frames)
	outBlock := trimBlock(s.outBlock, frames)
	if s.bypassed.Load() {
		s.engine.ProcessBlockBypassed(inBlock, outBlock)
	} else {
		s.engine.ProcessBlock(inBlock, nil, outBlock)
	}

	for ch := 0; ch < channels; ch++ {
		src := s.outBlock[ch][:frames]
		dst := out[ch]
		for i := range dst {
			dst[i] = float32(src[i])
		}
	}

	s.writeRecording(frames)
}

// trimBlock re-slices each channel to the callback's frame count. The
// backing arrays are reused, so this does not allocate after the first
// callback warms the slice headers.
func trimBlock(block [][]float64, frames int) [][]float64 {
	for ch := range block {
		block[ch] = block[ch][:frames]
	}
	return block
}

// StartRecording begins writing the processed output to a WAV file.
func (s *Stream) StartRecording(filename string) error {
	if atomic.LoadInt32(&s.isRecording) == 1 {
		return fmt.Errorf("already recording")
	}

	bitDepth := s.config.Recording.BitDepth
	if bitDepth != 16 && bitDepth != 24 {
		return fmt.Errorf("unsupported recording bit depth %d", bitDepth)
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	s.outputFile = file

	channels := s.config.Audio.Channels
	s.wavEncoder = wav.NewEncoder(file, int(s.config.Audio.SampleRate),
		bitDepth, channels, 1)
	s.recScale = float64(int(1)<<(bitDepth-1)) - 1

	s.sampleBuf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  int(s.config.Audio.SampleRate),
		},
		SourceBitDepth: bitDepth,
		Data:           make([]int, s.config.Audio.FramesPerBuffer*channels),
	}

	atomic.StoreInt32(&s.isRecording, 1)
	applog.Infof("Audio: recording processed output to %s (%d-bit)", filename, bitDepth)
	return nil
}

// writeRecording interleaves the processed block into the reusable
// sample buffer and hands it to the WAV encoder. Called from the
// stream callback.
func (s *Stream) writeRecording(frames int) {
	if atomic.LoadInt32(&s.isRecording) == 0 || s.wavEncoder == nil {
		return
	}

	channels := s.config.Audio.Channels
	s.sampleBuf.Data = s.sampleBuf.Data[:frames*channels]
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			s.sampleBuf.Data[i*channels+ch] = int(clamp(s.outBlock[ch][i]) * s.recScale)
		}
	}

	if err := s.wavEncoder.Write(s.sampleBuf); err != nil {
		applog.Errorf("Audio: error writing to WAV file: %v", err)
	}
}

func clamp(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < -1.0 {
		return -1.0
	}
	return v
}

// StopRecording finalizes the WAV file. Safe to call when not
// recording.
func (s *Stream) StopRecording() error {
	if atomic.LoadInt32(&s.isRecording) == 0 {
		return nil
	}

	atomic.StoreInt32(&s.isRecording, 0)

	if s.wavEncoder != nil {
		if err := s.wavEncoder.Close(); err != nil {
			return err
		}
		s.wavEncoder = nil
	}

	if s.outputFile != nil {
		if err := s.outputFile.Close(); err != nil {
			return err
		}
		s.outputFile = nil
	}

	applog.Infof("Audio: recording stopped")
	return nil
}

// Close stops recording and the stream.
func (s *Stream) Close() error {
	if atomic.LoadInt32(&s.isRecording) == 1 {
		if err := s.StopRecording(); err != nil {
			return err
		}
	}
	return s.Stop()
}
