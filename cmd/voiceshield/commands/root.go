package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haivivi/voiceshield/cmd/voiceshield/internal/config"
	"github.com/haivivi/voiceshield/pkg/cli"
)

var (
	// Global flags
	verbose      bool
	contextName  string
	formatOutput string
	outputFile   string
	oracleFlag   string

	// Global configuration (loaded at init time)
	globalConfig *config.Config

	logger = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "voiceshield",
	Short: "Protect voice recordings against speaker identification",
	Long: `voiceshield - adds a small, bounded perturbation to a voice recording so
that speaker-embedding models no longer match it to the speaker.

Each run is recorded in a ledger and the protected WAV is kept in an
artifact store (local directory or S3).

Configuration is stored in the OS config directory:
  macOS:   ~/Library/Application Support/voiceshield/
  Linux:   ~/.config/voiceshield/
  Windows: %AppData%/voiceshield/
Set VOICESHIELD_CONFIG_DIR to use another directory.

Examples:
  # Protect a recording with the default parameters
  voiceshield protect speech.wav -o protected.wav

  # Check whether the result still verifies as the same speaker
  voiceshield verify speech.wav protected.wav

  # Use a remote embedding model
  voiceshield config add-context prod
  voiceshield config set prod oracle kind remote
  voiceshield config set prod oracle url ws://models:8765/embed
  voiceshield -c prod protect speech.wav -o protected.wav`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := cli.ParseFormat(formatOutput); err != nil {
			return err
		}
		logger = newLogger(cmd.ErrOrStderr(), verbose)
		return nil
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the running
// command; an interrupted protection run is still recorded.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context to use (default: current context)")
	rootCmd.PersistentFlags().StringVar(&formatOutput, "format", "table", "output format: table, yaml, json")
	rootCmd.PersistentFlags().StringVar(&outputFile, "output-file", "", "write command output to a file instead of stdout")
	rootCmd.PersistentFlags().StringVar(&oracleFlag, "oracle", "", `embedding oracle: "projector" or a ws:// URL (overrides the context)`)
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// configLoadErr stores the error from config.Load() for deferred reporting.
var configLoadErr error

func initConfig() {
	globalConfig, configLoadErr = nil, nil
	cfg, err := config.Load()
	if err != nil {
		// Store error for deferred reporting; commands that need config
		// will get a clear error via GetConfig(). This avoids failing
		// non-config commands like 'voiceshield version'.
		configLoadErr = err
		return
	}
	globalConfig = cfg
}

// GetConfig returns the global configuration.
// Returns an error if the config could not be loaded (e.g., HOME not set).
func GetConfig() (*config.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("config not available: %w", err)
		}
		globalConfig = cfg
	}
	return globalConfig, nil
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

// output writes result in the --format selected on the command line.
func output(cmd *cobra.Command, result any) error {
	format, err := cli.ParseFormat(formatOutput)
	if err != nil {
		return err
	}
	opts := cli.OutputOptions{Format: format, File: outputFile}
	if outputFile == "" {
		opts.Writer = cmd.OutOrStdout()
	}
	return cli.Output(result, opts)
}

// tableMode reports whether human-oriented output was requested.
func tableMode() bool {
	return formatOutput == string(cli.FormatTable) && outputFile == ""
}
