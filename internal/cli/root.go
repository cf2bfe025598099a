package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
)

// DefaultSettingsFile is read when --config is not given, if it exists.
const DefaultSettingsFile = "shopkeep.yaml"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	Database   string
	ConfigFile string
	BaseURL    string

	// Settings is resolved before any subcommand runs.
	Settings Settings
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the shopkeep CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "shopkeep",
		Short: "shopkeep - shop admin client",
		Long:  "A local-first client for the shop admin API: cached settings, feature flags and orders.",
		// main prints the error once and maps it to an exit code.
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if err := opts.resolve(cmd); err != nil {
				return WrapExitError(ExitCommandError, "failed to load settings", err)
			}
			configureLogging(cmd, opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from settings)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "settings file (default "+DefaultSettingsFile+" if present)")
	cmd.PersistentFlags().StringVar(&opts.BaseURL, "base-url", "", "shop API root (default from settings)")

	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewFeatureCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewOrdersCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))
	cmd.AddCommand(NewSettingsCommand(opts))

	return cmd
}

// resolve layers flags over the settings file.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	path, optional := o.ConfigFile, false
	if path == "" {
		path, optional = DefaultSettingsFile, true
	}
	s, err := LoadSettings(path, optional)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("db") {
		s.Database = o.Database
	}
	if cmd.Flags().Changed("base-url") {
		s.BaseURL = o.BaseURL
	}
	o.Settings = s
	return nil
}

func configureLogging(cmd *cobra.Command, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
