package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/shopkeep/internal/transport"
)

// Settings is the optional YAML settings file. Command line flags win over
// values read from it.
type Settings struct {
	// Database is the path of the SQLite file.
	Database string `yaml:"database" json:"database"`

	// BaseURL is the shop API root.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Timeout is the per-call API timeout, as a Go duration ("30s").
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// PageSize is sent with every GET call.
	PageSize int `yaml:"page_size,omitempty" json:"page_size,omitempty"`
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() Settings {
	return Settings{
		Database: "shopkeep.db",
		BaseURL:  transport.DefaultBaseURL,
		Timeout:  transport.DefaultTimeout.String(),
		PageSize: transport.DefaultPageSize,
	}
}

// LoadSettings reads path over the defaults. A missing file is not an
// error when optional is true.
func LoadSettings(path string, optional bool) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("read settings: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if _, err := s.TimeoutDuration(); err != nil {
		return s, err
	}
	if s.PageSize < 0 {
		return s, fmt.Errorf("settings: page_size must be positive, got %d", s.PageSize)
	}
	return s, nil
}

// TimeoutDuration parses Timeout. An empty value is the transport default.
func (s Settings) TimeoutDuration() (time.Duration, error) {
	if s.Timeout == "" {
		return transport.DefaultTimeout, nil
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("settings: invalid timeout %q", s.Timeout)
	}
	return d, nil
}

// Marshal renders the settings as YAML.
func (s Settings) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

// NewSettingsCommand creates the settings command, which prints the
// settings in effect after flags and the settings file are applied.
func NewSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "settings",
		Short:         "Print the effective settings",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rootOpts.Format == "json" {
				return newFormatter(rootOpts, cmd.OutOrStdout()).Success(rootOpts.Settings)
			}
			b, err := rootOpts.Settings.Marshal()
			if err != nil {
				return fmt.Errorf("render settings: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}
