// Package main provides the entry point for the talkback CLI.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/talkback/speech"
	"github.com/dgnsrekt/talkback/speech/synth"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	voiceName  string
	modelName  string
	rate       float64
	words      int
	segment    int
	outPath    string

	rootCmd = &cobra.Command{
		Use:          "talkback [TEXT|FILE]",
		Short:        "Read text aloud from the command line",
		Long:         "\nSplit text into segments, synthesize them through a speech service, and play them back with seek, pause, and rate control. Generated audio is cached on disk so replays cost nothing.",
		SilenceUsage: true,
		Args:         cobra.ArbitraryArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadOptions()
		},
		RunE: executeSpeak,
	}

	exportCmd = &cobra.Command{
		Use:   "export [TEXT|FILE]",
		Short: "Synthesize text and write it as a WAV file",
		Args:  cobra.ArbitraryArgs,
		RunE:  executeExport,
	}
)

// envConfig holds settings read from the environment rather than flags or
// the config file. The credential deliberately never has a flag.
type envConfig struct {
	OpenAIKey string `env:"OPENAI_API_KEY"`
	TalkbackKey string `env:"TALKBACK_API_KEY"`
	LogFile   string `env:"TALKBACK_LOG"`
	Debug     bool   `env:"TALKBACK_DEBUG"`
}

// key returns the active credential, preferring the talkback-specific
// variable over the shared OpenAI one.
func (c envConfig) key() (string, bool) {
	if c.TalkbackKey != "" {
		return c.TalkbackKey, true
	}
	return c.OpenAIKey, c.OpenAIKey != ""
}

// APIKey implements speech.CredentialProvider.
func (c envConfig) APIKey() (string, bool) { return c.key() }

func loadOptions() error {
	voiceName = viper.GetString("voice")
	modelName = viper.GetString("model")
	rate = viper.GetFloat64("rate")
	words = viper.GetInt("words_per_segment")
	return nil
}

// textFromArgs resolves the spoken text: a file path argument is read, any
// other argument is taken literally, and with no arguments stdin is used.
func textFromArgs(args []string) (string, error) {
	if len(args) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("unable to read stdin: %w", err)
		}
		return string(b), nil
	}

	joined := strings.Join(args, " ")
	if len(args) == 1 {
		if st, err := os.Stat(args[0]); err == nil && !st.IsDir() {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return "", fmt.Errorf("unable to read file: %w", err)
			}
			return string(b), nil
		}
	}
	return joined, nil
}

func executeSpeak(cmd *cobra.Command, args []string) error {
	text, err := textFromArgs(args)
	if err != nil {
		return err
	}

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageID := app.Sessions.Append(text)

	done := make(chan error, 1)
	app.Service.Subscribe(func(st speech.Status) {
		switch st.State {
		case speech.StateIdle:
			select {
			case done <- nil:
			default:
			}
		case speech.StateError:
			select {
			case done <- st.Err:
			default:
			}
		}
	})

	if segment >= 0 {
		err = app.Service.PlaySegment(ctx, messageID, segment)
	} else if ap := app.Service.Autoplay(); ap != nil && ap.Enabled() {
		// An enabled trigger owns the start, after its debounce.
		ap.Notify(messageID)
	} else {
		err = app.Service.PlayMessage(ctx, messageID)
	}
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		app.Service.Stop()
		return nil
	}
}

func executeExport(cmd *cobra.Command, args []string) error {
	text, err := textFromArgs(args)
	if err != nil {
		return err
	}
	if outPath == "" {
		return errors.New("export requires --output")
	}

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	messageID := app.Sessions.Append(text)

	if _, _, err := app.Orchestrator.ResolveAll(ctx, messageID); err != nil {
		return err
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("unable to create output file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	if err := app.Service.ExportMessage(ctx, messageID, f); err != nil {
		return err
	}
	fmt.Println("Wrote audio to:", outPath)
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().StringVar(&voiceName, "voice", "", "synthesis voice")
	rootCmd.PersistentFlags().StringVar(&modelName, "model", "", "synthesis model")
	rootCmd.PersistentFlags().IntVarP(&words, "words", "w", speech.DefaultWordsPerSegment, "maximum words per audio segment")
	rootCmd.Flags().Float64VarP(&rate, "rate", "r", 1.0, "initial playback rate")
	rootCmd.Flags().IntVarP(&segment, "segment", "s", -1, "play a single segment index instead of the whole text")
	exportCmd.Flags().StringVarP(&outPath, "output", "o", "", "WAV file to write")

	_ = viper.BindPFlag("voice", rootCmd.PersistentFlags().Lookup("voice"))
	_ = viper.BindPFlag("model", rootCmd.PersistentFlags().Lookup("model"))
	_ = viper.BindPFlag("words_per_segment", rootCmd.PersistentFlags().Lookup("words"))
	_ = viper.BindPFlag("rate", rootCmd.Flags().Lookup("rate"))

	viper.SetDefault("voice", "")
	viper.SetDefault("model", "")
	viper.SetDefault("rate", 1.0)
	viper.SetDefault("words_per_segment", speech.DefaultWordsPerSegment)
	viper.SetDefault("autoplay", false)
	viper.SetDefault("requests_per_minute", synth.DefaultRequestsPerMinute)
	viper.SetDefault("cache.dir", "")
	viper.SetDefault("cache.max_mb", 100)
	viper.SetDefault("cache.compression", 3)

	rootCmd.AddCommand(configCmd, exportCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "talkback")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "talkback")}, dirs...)
	}

	if c := os.Getenv("TALKBACK_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("talkback")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("talkback")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		return
	}

	configFile = filepath.Join(dirs[0], "talkback.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}

// setupLog routes logging to the file named by TALKBACK_LOG, or discards it
// so log lines never interleave with playback output.
func setupLog() (func() error, error) {
	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing environment: %w", err)
	}

	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	if cfg.LogFile == "" {
		log.SetOutput(io.Discard)
		return func() error { return nil }, nil
	}

	f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}
	log.SetOutput(f)
	log.SetReportTimestamp(true)
	return f.Close, nil
}
