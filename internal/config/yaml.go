// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SoundWareInc/spectral-compressor/internal/spectral"
)

// Config is the main application configuration, loaded from YAML.
type Config struct {
	Debug      bool             `yaml:"debug"`     // Verbose logging and debug features.
	LogLevel   string           `yaml:"log_level"` // "debug", "info", "warn", "error".
	Audio      AudioConfig      `yaml:"audio"`
	Compressor CompressorConfig `yaml:"compressor"`
	Spectral   SpectralConfig   `yaml:"spectral"`
	Recording  RecordingConfig  `yaml:"recording"`
	Transport  TransportConfig  `yaml:"transport"`
}

// AudioConfig holds device and buffering settings for live processing.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index (-1 for default).
	OutputDevice    int     `yaml:"output_device"`     // PortAudio device index (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Host block size in frames.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency from the device.
	Channels        int     `yaml:"channels"`          // Processing channel count.
}

// CompressorConfig holds the per-bin compressor parameters.
type CompressorConfig struct {
	SidechainActive bool    `yaml:"sidechain_active"` // Steer thresholds from a sidechain input.
	Ratio           float64 `yaml:"ratio"`            // Compression ratio, 1-300.
	AttackMs        float64 `yaml:"attack_ms"`        // Attack time, 0-10000 ms.
	ReleaseMs       float64 `yaml:"release_ms"`       // Release time, 0-10000 ms.
	AutoMakeupGain  bool    `yaml:"auto_makeup_gain"` // Compensate level loss automatically.
}

// SpectralConfig holds the analysis window settings.
type SpectralConfig struct {
	WindowOrder   int `yaml:"window_order"`   // Window size = 2^order, order 9-15.
	OverlapFactor int `yaml:"overlap_factor"` // Overlapping windows per window size, 2-64.
}

// RecordingConfig controls recording of the processed output in live mode.
type RecordingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	OutputFile string `yaml:"output_file"` // Empty for a timestamped name.
	BitDepth   int    `yaml:"bit_depth"`   // 16 or 24.
}

// TransportConfig controls publishing of meter data.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`
	WebSocketPort    string        `yaml:"websocket_port"`
	UDPEnabled       bool          `yaml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address"`
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Debug:    false,
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     MinDeviceID,
			OutputDevice:    MinDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			LowLatency:      false,
			Channels:        DefaultChannels,
		},
		Compressor: CompressorConfig{
			SidechainActive: false,
			Ratio:           spectral.DefaultRatio,
			AttackMs:        spectral.DefaultAttackMs,
			ReleaseMs:       spectral.DefaultReleaseMs,
			AutoMakeupGain:  spectral.DefaultAutoMakeup,
		},
		Spectral: SpectralConfig{
			WindowOrder:   spectral.DefaultWindowOrder,
			OverlapFactor: spectral.DefaultOverlapFactor,
		},
		Recording: RecordingConfig{
			Enabled:    false,
			OutputFile: "",
			BitDepth:   16,
		},
		Transport: TransportConfig{
			WebSocketEnabled: false,
			WebSocketPort:    "8080",
			UDPEnabled:       false,
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  33 * time.Millisecond, // ~30 Hz
		},
	}
}

// LoadConfig loads configuration from the YAML file at path. An empty
// path searches the default location ("speccomp.yaml") and falls back
// to built-in defaults when no file exists. Environment overrides are
// applied and the result validated in every case.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat("speccomp.yaml"); err == nil {
			path = "speccomp.yaml"
		} else {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %q: %w", path, err)
	}
	return cfg, nil
}

// applyEnvOverrides lets a few settings be overridden without editing
// the config file, mainly for containerized and CI use.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SPECCOMP_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("SPECCOMP_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			c.Audio.SampleRate = rate
		}
	}
	if v := os.Getenv("SPECCOMP_WS_PORT"); v != "" {
		c.Transport.WebSocketPort = v
	}
}

// Validate checks ranges that would otherwise surface as confusing
// failures deep inside the engine or the device layer.
func (c *Config) Validate() error {
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		return fmt.Errorf("sample rate %.1f outside [%d, %d]",
			c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if c.Audio.FramesPerBuffer <= 0 || c.Audio.FramesPerBuffer > MaxBlockSize {
		return fmt.Errorf("frames per buffer %d outside (0, %d]",
			c.Audio.FramesPerBuffer, MaxBlockSize)
	}
	if c.Audio.Channels <= 0 {
		return fmt.Errorf("channel count %d must be positive", c.Audio.Channels)
	}
	if c.Compressor.Ratio < spectral.MinRatio || c.Compressor.Ratio > spectral.MaxRatio {
		return fmt.Errorf("ratio %.1f outside [%.0f, %.0f]",
			c.Compressor.Ratio, spectral.MinRatio, spectral.MaxRatio)
	}
	if c.Compressor.AttackMs < spectral.MinAttackMs || c.Compressor.AttackMs > spectral.MaxAttackMs {
		return fmt.Errorf("attack %.1f ms outside [%.0f, %.0f]",
			c.Compressor.AttackMs, spectral.MinAttackMs, spectral.MaxAttackMs)
	}
	if c.Compressor.ReleaseMs < spectral.MinReleaseMs || c.Compressor.ReleaseMs > spectral.MaxReleaseMs {
		return fmt.Errorf("release %.1f ms outside [%.0f, %.0f]",
			c.Compressor.ReleaseMs, spectral.MinReleaseMs, spectral.MaxReleaseMs)
	}
	if c.Spectral.WindowOrder < spectral.MinWindowOrder || c.Spectral.WindowOrder > spectral.MaxWindowOrder {
		return fmt.Errorf("window order %d outside [%d, %d]",
			c.Spectral.WindowOrder, spectral.MinWindowOrder, spectral.MaxWindowOrder)
	}
	if c.Spectral.OverlapFactor < spectral.MinOverlapFactor || c.Spectral.OverlapFactor > spectral.MaxOverlapFactor {
		return fmt.Errorf("overlap factor %d outside [%d, %d]",
			c.Spectral.OverlapFactor, spectral.MinOverlapFactor, spectral.MaxOverlapFactor)
	}
	if c.Recording.BitDepth != 16 && c.Recording.BitDepth != 24 {
		return fmt.Errorf("recording bit depth %d must be 16 or 24", c.Recording.BitDepth)
	}
	return nil
}

// ApplyTo pushes the compressor and spectral settings into an engine.
func (c *Config) ApplyTo(engine *spectral.Engine) {
	engine.SetRatio(c.Compressor.Ratio)
	engine.SetAttack(c.Compressor.AttackMs)
	engine.SetRelease(c.Compressor.ReleaseMs)
	engine.SetAutoMakeupGain(c.Compressor.AutoMakeupGain)
	engine.SetSidechainActive(c.Compressor.SidechainActive)
	engine.SetOverlapFactor(c.Spectral.OverlapFactor)
	engine.SetWindowOrder(c.Spectral.WindowOrder)
}
