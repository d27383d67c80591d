// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/SoundWareInc/spectral-compressor/internal/spectral"
	"github.com/SoundWareInc/spectral-compressor/pkg/testsignal"
)

func writeTestWAV(t *testing.T, path string, samples [][]float64, sampleRate int) {
	t.Helper()
	if err := writeWAV(path, samples, sampleRate, 16); err != nil {
		t.Fatalf("writing test WAV: %v", err)
	}
}

func TestWAVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roundtrip.wav")

	signal := [][]float64{testsignal.Harmonics(2000, 44100)}
	writeTestWAV(t, path, signal, 44100)

	got, err := loadWAV(path)
	if err != nil {
		t.Fatalf("loadWAV: %v", err)
	}
	if got.channels != 1 || got.sampleRate != 44100 || got.bitDepth != 16 {
		t.Fatalf("format mismatch: %d ch, %d Hz, %d bit", got.channels, got.sampleRate, got.bitDepth)
	}
	if len(got.samples[0]) != 2000 {
		t.Fatalf("frame count: got %d, want 2000", len(got.samples[0]))
	}

	// 16-bit quantization bounds the round-trip error.
	if diff := testsignal.MaxAbsDiff(got.samples[0], signal[0]); diff > 1.0/32767*2 {
		t.Errorf("round-trip error %g exceeds quantization bound", diff)
	}
}

// ProcessFile at ratio 1 with makeup off must return the input intact:
// same length, same content up to quantization, latency compensated
// away.
func TestProcessFileTransparentAtUnityRatio(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "in.wav")
	outPath := filepath.Join(dir, "out.wav")

	signal := [][]float64{testsignal.Harmonics(8000, 44100)}
	writeTestWAV(t, inPath, signal, 44100)

	engine := spectral.NewEngine()
	engine.SetWindowOrder(9)
	engine.SetRatio(1)
	engine.SetAutoMakeupGain(false)

	err := ProcessFile(engine, OfflineOptions{
		InputPath:  inPath,
		OutputPath: outPath,
		BlockSize:  160, // Deliberately unaligned with the interval
	})
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}

	got, err := loadWAV(outPath)
	if err != nil {
		t.Fatalf("loadWAV output: %v", err)
	}
	if len(got.samples[0]) != 8000 {
		t.Fatalf("output frames: got %d, want 8000", len(got.samples[0]))
	}
	if diff := testsignal.MaxAbsDiff(got.samples[0], signal[0]); diff > 5e-4 {
		t.Errorf("transparent processing error %g", diff)
	}
}

func TestProcessFileCompresses(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "in.wav")
	outPath := filepath.Join(dir, "out.wav")

	signal := [][]float64{testsignal.Sine(12000, 44100, 440)}
	writeTestWAV(t, inPath, signal, 44100)

	engine := spectral.NewEngine()
	engine.SetWindowOrder(10)
	engine.SetRatio(50)
	engine.SetAutoMakeupGain(false)

	if err := ProcessFile(engine, OfflineOptions{
		InputPath:  inPath,
		OutputPath: outPath,
	}); err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}

	got, err := loadWAV(outPath)
	if err != nil {
		t.Fatal(err)
	}
	inRMS := blockRMS(signal[0][6000:10000])
	outRMS := blockRMS(got.samples[0][6000:10000])
	if outRMS >= inRMS*0.9 {
		t.Errorf("ratio 50 barely reduced the file: in RMS %g, out RMS %g", inRMS, outRMS)
	}
}

func TestProcessFileStereoWithSidechain(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "in.wav")
	scPath := filepath.Join(dir, "sc.wav")
	outPath := filepath.Join(dir, "out.wav")

	left := testsignal.Harmonics(4000, 44100)
	right := testsignal.Sine(4000, 44100, 220)
	writeTestWAV(t, inPath, [][]float64{left, right}, 44100)
	writeTestWAV(t, scPath, [][]float64{
		testsignal.Sine(4000, 44100, 1000),
		testsignal.Sine(4000, 44100, 1000),
	}, 44100)

	engine := spectral.NewEngine()
	engine.SetWindowOrder(9)
	engine.SetSidechainActive(true)

	if err := ProcessFile(engine, OfflineOptions{
		InputPath:     inPath,
		SidechainPath: scPath,
		OutputPath:    outPath,
	}); err != nil {
		t.Fatalf("ProcessFile with sidechain: %v", err)
	}

	got, err := loadWAV(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if got.channels != 2 || len(got.samples[0]) != 4000 {
		t.Errorf("output shape: %d ch, %d frames", got.channels, len(got.samples[0]))
	}
}

func TestProcessFileRejectsMismatchedSidechain(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "in.wav")
	outPath := filepath.Join(dir, "out.wav")

	writeTestWAV(t, inPath, [][]float64{testsignal.Sine(1000, 44100, 440), testsignal.Sine(1000, 44100, 440)}, 44100)

	t.Run("Channel count", func(t *testing.T) {
		scPath := filepath.Join(dir, "sc-mono.wav")
		writeTestWAV(t, scPath, [][]float64{testsignal.Sine(1000, 44100, 440)}, 44100)

		err := ProcessFile(spectral.NewEngine(), OfflineOptions{
			InputPath:     inPath,
			SidechainPath: scPath,
			OutputPath:    outPath,
		})
		if err == nil {
			t.Error("mono sidechain against stereo input should be rejected")
		}
	})

	t.Run("Sample rate", func(t *testing.T) {
		scPath := filepath.Join(dir, "sc-48k.wav")
		writeTestWAV(t, scPath, [][]float64{
			testsignal.Sine(1000, 48000, 440),
			testsignal.Sine(1000, 48000, 440),
		}, 48000)

		err := ProcessFile(spectral.NewEngine(), OfflineOptions{
			InputPath:     inPath,
			SidechainPath: scPath,
			OutputPath:    outPath,
		})
		if err == nil {
			t.Error("mismatched sidechain sample rate should be rejected")
		}
	})
}

func TestProcessFileMissingInput(t *testing.T) {
	err := ProcessFile(spectral.NewEngine(), OfflineOptions{
		InputPath:  filepath.Join(t.TempDir(), "does-not-exist.wav"),
		OutputPath: filepath.Join(t.TempDir(), "out.wav"),
	})
	if err == nil {
		t.Error("missing input file should be an error")
	}
}

func blockRMS(s []float64) float64 {
	var sum float64
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(s)))
}
