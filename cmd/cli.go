// SPDX-License-Identifier: MIT
package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/SoundWareInc/spectral-compressor/internal/config"
	"github.com/SoundWareInc/spectral-compressor/pkg/build"
)

// Options is the fully resolved invocation: configuration plus which
// mode the binary should run in.
type Options struct {
	Config  *config.Config
	Command string // "" for live mode, "list", or "process"

	// Arguments for the process command.
	InputFile     string
	SidechainFile string
	OutputFile    string
	BlockSize     int

	// Use the interactive device browser for the list command.
	Interactive bool
}

// ParseArgs parses the command line, loads the YAML configuration, and
// applies flag overrides on top of it.
func ParseArgs() (*Options, error) {
	buildInfo := build.Get()
	options := &Options{}

	var (
		configPath string

		deviceID     int
		outputDevice int
		channels     int
		sampleRate   float64
		framesPerBuf int
		lowLatency   bool

		ratio       float64
		attackMs    float64
		releaseMs   float64
		windowOrder int
		overlap     int
		sidechain   bool
		noMakeup    bool

		record     bool
		recordFile string

		wsEnabled bool
		wsPort    string
		udpTarget string

		verbose bool
	)

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         "Real-time spectral dynamic range compressor",
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			// Flag overrides only apply when the flag was actually set,
			// so the YAML file remains authoritative otherwise.
			flags := cmd.Flags()
			if flags.Changed("device") {
				cfg.Audio.InputDevice = deviceID
			}
			if flags.Changed("output-device") {
				cfg.Audio.OutputDevice = outputDevice
			}
			if flags.Changed("channels") {
				cfg.Audio.Channels = channels
			}
			if flags.Changed("sample-rate") {
				cfg.Audio.SampleRate = sampleRate
			}
			if flags.Changed("frames-per-buffer") {
				cfg.Audio.FramesPerBuffer = framesPerBuf
			}
			if flags.Changed("low-latency") {
				cfg.Audio.LowLatency = lowLatency
			}
			if flags.Changed("ratio") {
				cfg.Compressor.Ratio = ratio
			}
			if flags.Changed("attack") {
				cfg.Compressor.AttackMs = attackMs
			}
			if flags.Changed("release") {
				cfg.Compressor.ReleaseMs = releaseMs
			}
			if flags.Changed("window-order") {
				cfg.Spectral.WindowOrder = windowOrder
			}
			if flags.Changed("overlap") {
				cfg.Spectral.OverlapFactor = overlap
			}
			if flags.Changed("sidechain") {
				cfg.Compressor.SidechainActive = sidechain
			}
			if flags.Changed("no-auto-makeup") {
				cfg.Compressor.AutoMakeupGain = !noMakeup
			}
			if flags.Changed("record") {
				cfg.Recording.Enabled = record
			}
			if flags.Changed("output") {
				cfg.Recording.OutputFile = recordFile
			}
			if flags.Changed("websocket") {
				cfg.Transport.WebSocketEnabled = wsEnabled
			}
			if flags.Changed("ws-port") {
				cfg.Transport.WebSocketPort = wsPort
			}
			if flags.Changed("udp-target") {
				cfg.Transport.UDPEnabled = true
				cfg.Transport.UDPTargetAddress = udpTarget
			}
			if verbose {
				cfg.LogLevel = "debug"
				cfg.Debug = true
			}

			if cfg.Recording.Enabled && cfg.Recording.OutputFile == "" {
				cfg.Recording.OutputFile = "speccomp-" +
					time.Now().UTC().Format("02-01-2006-150405") + ".wav"
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			options.Config = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = ""
			return nil
		},
	}

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = "list"
			return nil
		},
	}
	listCmd.Flags().BoolVarP(&options.Interactive, "interactive", "i", false,
		"Browse devices in an interactive view")
	rootCmd.AddCommand(listCmd)

	processCmd := &cobra.Command{
		Use:   "process <input.wav>",
		Short: "Compress a WAV file offline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = "process"
			options.InputFile = args[0]
			if options.OutputFile == "" {
				options.OutputFile = "processed-" +
					time.Now().UTC().Format("02-01-2006-150405") + ".wav"
			}
			return nil
		},
	}
	processCmd.Flags().StringVarP(&options.SidechainFile, "sidechain-file", "S", "",
		"WAV file driving the sidechain thresholds")
	processCmd.Flags().StringVarP(&options.OutputFile, "out", "O", "",
		"Output file name. Default is processed-DD-MM-YYYY-HHMMSS.wav")
	processCmd.Flags().IntVar(&options.BlockSize, "block-size", 4096,
		"Frames per processing block")
	rootCmd.AddCommand(processCmd)

	// Audio device configuration
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to YAML configuration file")
	rootCmd.PersistentFlags().IntVarP(&deviceID, "device", "d", config.MinDeviceID,
		"Input device ID. Use 'list' to see available devices.")
	rootCmd.PersistentFlags().IntVar(&outputDevice, "output-device", config.MinDeviceID,
		"Output device ID. Use 'list' to see available devices.")
	rootCmd.PersistentFlags().IntVarP(&channels, "channels", "c", config.DefaultChannels,
		"Number of channels to process (1=mono, 2=stereo)")
	rootCmd.PersistentFlags().Float64VarP(&sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	rootCmd.PersistentFlags().IntVarP(&framesPerBuf, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects host latency)")
	rootCmd.PersistentFlags().BoolVarP(&lowLatency, "low-latency", "l", false,
		"Request low latency from the audio devices")

	// Compressor configuration
	rootCmd.PersistentFlags().Float64Var(&ratio, "ratio", 0,
		"Compression ratio (1-300)")
	rootCmd.PersistentFlags().Float64Var(&attackMs, "attack", 0,
		"Attack time in milliseconds (0-10000)")
	rootCmd.PersistentFlags().Float64Var(&releaseMs, "release", 0,
		"Release time in milliseconds (0-10000)")
	rootCmd.PersistentFlags().IntVar(&windowOrder, "window-order", 0,
		"Analysis window size as a power of two (9-15)")
	rootCmd.PersistentFlags().IntVar(&overlap, "overlap", 0,
		"Overlapping windows per window length (2-64)")
	rootCmd.PersistentFlags().BoolVar(&sidechain, "sidechain", false,
		"Steer thresholds from the sidechain input")
	rootCmd.PersistentFlags().BoolVar(&noMakeup, "no-auto-makeup", false,
		"Disable automatic makeup gain")

	// Recording configuration
	rootCmd.PersistentFlags().BoolVarP(&record, "record", "r", false,
		"Record the processed output to a WAV file")
	rootCmd.PersistentFlags().StringVarP(&recordFile, "output", "o", "",
		"Recording file name. Default is speccomp-DD-MM-YYYY-HHMMSS.wav")

	// Transport configuration
	rootCmd.PersistentFlags().BoolVar(&wsEnabled, "websocket", false,
		"Publish meter data over WebSocket")
	rootCmd.PersistentFlags().StringVar(&wsPort, "ws-port", "8080",
		"WebSocket server port")
	rootCmd.PersistentFlags().StringVar(&udpTarget, "udp-target", "",
		"Publish binary meter packets to this UDP address")

	// Debug configuration
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	return options, nil
}
