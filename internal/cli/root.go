package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/deckd/internal/config"
	"github.com/roach88/deckd/internal/store"
)

// Error codes reported in CLI error responses.
const (
	ErrCodeGeneric     = "E001"
	ErrCodeConfig      = "E002" // Configuration invalid or unreadable
	ErrCodeStore       = "E003" // Database open/read/write failed
	ErrCodeNotFound    = "E005" // Device, profile or file not found
	ErrCodeParseFailed = "E006" // Document could not be decoded
	ErrCodeWriteFailed = "E007" // export target not writable

	ErrCodeSchema     = "E101" // Document does not match the profile schema
	ErrCodeInvalid    = "E102" // Profile fails structural validation
	ErrCodeInUse      = "E103" // Profile is selected and cannot be deleted
	ErrCodeBadContext = "E104" // Slot outside the device layout
)

// RootOptions are the persistent flags.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
}

// ValidFormats are the values accepted by --format.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the deckd CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "deckd",
		Short: "deckd - macro pad daemon",
		Long: `deckd binds the keys and dials of macro pads to plugin actions.

Profiles map each physical control to an action instance. The serve command
reads device input, dispatches it to plugins over WebSocket and persists
profile state in SQLite.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if slices.Contains(ValidFormats, opts.Format) {
				return nil
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default $HOME/.deckd.yaml)")

	cmd.AddCommand(
		NewServeCommand(opts),
		NewProfileCommand(opts),
		NewDevicesCommand(opts),
		NewPluginsCommand(opts),
		NewValidateCommand(opts),
	)

	return cmd
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// loadConfig reads and validates configuration. Failures are reported
// through f.
func loadConfig(opts *RootOptions, f *OutputFormatter) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		_ = f.Error(ErrCodeConfig, fmt.Sprintf("failed to load config: %v", err), nil)
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if err := cfg.Validate(); err != nil {
		_ = f.Error(ErrCodeConfig, fmt.Sprintf("invalid config: %v", err), nil)
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return cfg, nil
}

// setupLogging installs a text handler on stderr. --verbose forces debug.
func setupLogging(opts *RootOptions, cfg *config.Config) {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// openStore opens the configured database, creating its directory.
func openStore(cfg *config.Config, f *OutputFormatter) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o755); err != nil {
		_ = f.Error(ErrCodeStore, fmt.Sprintf("failed to create data directory: %v", err), nil)
		return nil, WrapExitError(ExitCommandError, "failed to create data directory", err)
	}
	st, err := store.Open(cfg.Database, store.WithDefaultProfile(cfg.DefaultProfile))
	if err != nil {
		_ = f.Error(ErrCodeStore, fmt.Sprintf("failed to open database: %v", err), nil)
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}
