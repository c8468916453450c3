package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/readalong/internal/config"
	"github.com/MrWong99/readalong/pkg/audio"
	"github.com/MrWong99/readalong/pkg/provider/stt/replay"
)

// options holds the flags shared by every subcommand.
type options struct {
	configPath string
	passage    string
	language   string
	fallback   []string
	output     string
	listen     string

	audioPath string
	rawRate   int
	rawChans  int
	realTime  bool

	scriptPath string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "readalong",
		Short:         "Follow a reader through a passage with live speech recognition",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "path to the YAML configuration file")
	pf.StringVar(&opts.passage, "passage", "", "reference passage text (overrides the config)")
	pf.StringVar(&opts.language, "language", "", "primary recognition language, e.g. hi-IN")
	pf.StringSliceVar(&opts.fallback, "fallback", nil, "fallback recognition languages, in order")
	pf.StringVar(&opts.output, "output", "text", "summary format: text or json")
	pf.StringVar(&opts.listen, "listen", "", "address for /healthz, /readyz and /metrics (overrides the config)")

	root.AddCommand(newPracticeCmd(opts), newReplayCmd(opts))
	return root
}

func newPracticeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "practice",
		Short: "Practice a passage against a live recognition provider",
		Long: "Streams audio from a WAV file, or raw 16-bit PCM from stdin with --audio -, " +
			"to the configured recognition provider and tracks the reader through the passage.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			resolvePacing(cfg, opts, cmd.Flags().Changed("real-time"))
			passage, err := resolvePassage(cfg, "")
			if err != nil {
				return err
			}
			src, closeSrc, err := openAudio(opts)
			if err != nil {
				return err
			}
			defer closeSrc()

			logger := newLogger(cfg.Server.LogLevel)
			slog.SetDefault(logger)

			reg := config.NewRegistry()
			registerBuiltinProviders(reg)
			return runSession(cmd.Context(), sessionParams{
				cfg:     cfg,
				opts:    opts,
				passage: passage,
				source:  src,
				logger:  logger,
				out:     cmd.OutOrStdout(),
				buildProvider: func(rt *runtime) (providerHandle, error) {
					p, err := reg.BuildRecognizer(cmd.Context(), cfg, rt.sttOptions()...)
					if err != nil {
						return providerHandle{}, err
					}
					return providerHandle{provider: p}, nil
				},
			})
		},
	}
	cmd.Flags().StringVar(&opts.audioPath, "audio", "", "WAV file to read aloud, or - for raw PCM on stdin")
	cmd.Flags().IntVar(&opts.rawRate, "raw-rate", 16000, "sample rate of raw PCM on stdin")
	cmd.Flags().IntVar(&opts.rawChans, "raw-channels", 1, "channel count of raw PCM on stdin")
	cmd.Flags().BoolVar(&opts.realTime, "real-time", true, "pace audio at playback speed (default on for WAV files, off for stdin)")
	_ = cmd.MarkFlagRequired("audio")
	return cmd
}

func newReplayCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a scripted recognition session without audio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			script, err := replay.Load(opts.scriptPath)
			if err != nil {
				return err
			}
			if opts.language == "" {
				opts.language = script.Language
			}
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			passage, err := resolvePassage(cfg, script.Passage)
			if err != nil {
				return err
			}

			logger := newLogger(cfg.Server.LogLevel)
			slog.SetDefault(logger)

			prov := replay.New(script)
			return runSession(cmd.Context(), sessionParams{
				cfg:     cfg,
				opts:    opts,
				passage: passage,
				logger:  logger,
				out:     cmd.OutOrStdout(),
				buildProvider: func(*runtime) (providerHandle, error) {
					return providerHandle{provider: prov, exhausted: prov.Exhausted()}, nil
				},
			})
		},
	}
	cmd.Flags().StringVar(&opts.scriptPath, "script", "", "replay script (YAML)")
	_ = cmd.MarkFlagRequired("script")
	return cmd
}

// loadConfig reads the config file when given, otherwise starts from the
// defaults, then applies environment and flag overrides.
func loadConfig(opts *options) (*config.Config, error) {
	var cfg *config.Config
	if opts.configPath != "" {
		c, err := config.Load(opts.configPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config file %q not found", opts.configPath)
			}
			return nil, err
		}
		cfg = c
	} else {
		cfg = config.Default()
		if err := config.ApplyEnv(cfg); err != nil {
			return nil, err
		}
	}

	if opts.language != "" {
		cfg.Recognition.Language = opts.language
	}
	if len(opts.fallback) > 0 {
		cfg.Recognition.FallbackLanguages = opts.fallback
	}
	if opts.listen != "" {
		cfg.Server.ListenAddr = opts.listen
	}
	if opts.passage != "" {
		cfg.Session.Passage = opts.passage
		cfg.Session.PassageFile = ""
	}
	if opts.output != "text" && opts.output != "json" {
		return nil, fmt.Errorf("--output %q is invalid; valid values: text, json", opts.output)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolvePassage picks the passage from the flags or config, falling back to
// the one carried by a replay script.
func resolvePassage(cfg *config.Config, scripted string) (string, error) {
	text, err := cfg.ResolvePassage()
	if errors.Is(err, config.ErrNoPassage) && scripted != "" {
		return scripted, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w; pass --passage or set session.passage", err)
	}
	return text, nil
}

// resolvePacing decides whether audio is sent at playback speed. The
// --real-time flag wins over session.real_time; when neither is set, WAV
// files are paced and stdin, already fed by a live source, is not.
func resolvePacing(cfg *config.Config, opts *options, flagSet bool) {
	pace := opts.audioPath != "-"
	if cfg.Session.RealTime != nil {
		pace = *cfg.Session.RealTime
	}
	if flagSet {
		pace = opts.realTime
	}
	cfg.Session.RealTime = &pace
}

// openAudio opens the --audio input. The returned function releases it.
func openAudio(opts *options) (audio.Source, func(), error) {
	if opts.audioPath == "-" {
		f := audio.Format{SampleRate: opts.rawRate, Channels: opts.rawChans}
		src, err := audio.NewReaderSource(os.Stdin, f, audio.DefaultChunkDuration)
		if err != nil {
			return nil, nil, err
		}
		return src, func() {}, nil
	}
	wav, err := audio.OpenWAV(opts.audioPath, audio.DefaultChunkDuration)
	if err != nil {
		return nil, nil, err
	}
	return wav, func() { _ = wav.Close() }, nil
}

// newLogger builds the process logger writing text to stderr.
func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// shutdownTimeout bounds the graceful shutdown of the HTTP server.
const shutdownTimeout = 5 * time.Second
