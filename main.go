// SPDX-License-Identifier: MIT
package main

import (
	"fmt"
	"log"
	"time"

	"github.com/SoundWareInc/spectral-compressor/cmd"
	"github.com/SoundWareInc/spectral-compressor/internal/audio"
	"github.com/SoundWareInc/spectral-compressor/internal/config"
	applog "github.com/SoundWareInc/spectral-compressor/internal/log"
	"github.com/SoundWareInc/spectral-compressor/internal/spectral"
	"github.com/SoundWareInc/spectral-compressor/internal/transport"
	"github.com/SoundWareInc/spectral-compressor/internal/transport/udp"
	"github.com/SoundWareInc/spectral-compressor/internal/tui"
)

// main is the entry point for the spectral compressor.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Parse command line arguments and load configuration
//   - Execute one-off commands if requested
//   - Initialize PortAudio and prepare the engine
//
// 2. Concurrent Phase (Hot Path):
//   - Run the duplex audio stream through the engine
//   - Publish meter data over the configured transports
//   - Drive the live meter view
//
// 3. Shutdown Phase (Cold Path):
//   - Stop recording if active
//   - Tear down transports, stream, and engine
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	options, err := cmd.ParseArgs()
	if err != nil {
		log.Fatal(err)
	}
	if options.Config == nil {
		// --help or --version already printed their output.
		return
	}
	cfg := options.Config

	if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(level)
	}

	switch options.Command {
	case "list":
		if err := runList(options); err != nil {
			log.Fatal(err)
		}
		return
	case "process":
		if err := runProcess(options); err != nil {
			log.Fatal(err)
		}
		return
	}

	if err := runLive(cfg); err != nil {
		log.Fatal(err)
	}
}

func runList(options *cmd.Options) error {
	if options.Interactive {
		return tui.StartDeviceListUI()
	}
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()
	return audio.ListDevices()
}

func runProcess(options *cmd.Options) error {
	engine := spectral.NewEngine()
	options.Config.ApplyTo(engine)

	return audio.ProcessFile(engine, audio.OfflineOptions{
		InputPath:     options.InputFile,
		SidechainPath: options.SidechainFile,
		OutputPath:    options.OutputFile,
		BlockSize:     options.BlockSize,
	})
}

func runLive(cfg *config.Config) error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	engine := spectral.NewEngine()
	cfg.ApplyTo(engine)
	if err := engine.Prepare(cfg.Audio.SampleRate, cfg.Audio.FramesPerBuffer, cfg.Audio.Channels); err != nil {
		return err
	}
	defer engine.Release()

	stream, err := audio.NewStream(cfg, engine)
	if err != nil {
		return err
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	if err := stream.Start(); err != nil {
		return err
	}
	defer stream.Close()

	if cfg.Recording.Enabled {
		if err := stream.StartRecording(cfg.Recording.OutputFile); err != nil {
			return err
		}
	}

	stopPublishers, err := startPublishers(cfg, engine)
	if err != nil {
		return err
	}
	defer stopPublishers()

	// The meter view owns the terminal until the user quits; ctrl+c
	// lands here as a quit, so shutdown always runs the deferred path.
	if err := tui.StartMeterUI(engine, stream); err != nil {
		return err
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	if cfg.Recording.Enabled {
		if err := stream.StopRecording(); err != nil {
			applog.Errorf("Error stopping recording: %v", err)
		} else {
			fmt.Printf("Recording saved to: %s\n", cfg.Recording.OutputFile)
		}
	}

	return nil
}

// startPublishers wires up the configured meter transports and returns
// a function that tears them all down.
func startPublishers(cfg *config.Config, engine *spectral.Engine) (func(), error) {
	var closers []func()

	if cfg.Transport.WebSocketEnabled {
		ws := transport.NewWebSocketTransport(cfg.Transport.WebSocketPort)
		stop := pumpMeters(engine, ws, cfg.Transport.UDPSendInterval)
		closers = append(closers, stop, func() { ws.Close() })
	}

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return nil, err
		}
		maxBins := 1 << (spectral.MaxWindowOrder - 1)
		publisher, err := udp.NewPublisher(cfg.Transport.UDPSendInterval, sender, engine, maxBins)
		if err != nil {
			sender.Close()
			return nil, err
		}
		publisher.Start()
		closers = append(closers, func() { publisher.Close() }, func() { sender.Close() })
	}

	return func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}, nil
}

// pumpMeters periodically snapshots the engine meters into a frame and
// hands it to the transport. Returns a stop function.
func pumpMeters(meters transport.MeterProvider, t transport.Transport, interval time.Duration) func() {
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var sequence uint32
		reduction := make([]float64, 1<<(spectral.MaxWindowOrder-1))
		for {
			select {
			case <-ticker.C:
				n := meters.GainReduction(reduction)
				if n == 0 {
					continue
				}
				inPeak, outPeak := meters.Peaks()
				sequence++
				frame := transport.MeterFrame{
					Sequence:      sequence,
					InputPeak:     inPeak,
					OutputPeak:    outPeak,
					GainReduction: append([]float64(nil), reduction[:n]...),
				}
				if err := t.Send(frame); err != nil {
					applog.Debugf("Meter publish error: %v", err)
				}
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}
