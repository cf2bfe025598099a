package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/shopkeep/internal/configstore"
	"github.com/roach88/shopkeep/internal/ir"
)

// configRow is one entry in config output.
type configRow struct {
	Name  string   `json:"name"`
	Value ir.Value `json:"value"`
}

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and write cached config entries",
		Long: `Read and write the named JSON entries of the config table.

Example:
  shopkeep config set qr '{"code":"abc"}'
  shopkeep config get qr
  shopkeep config ls --format json`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "get <name>",
		Short:         "Print the value stored under name",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfigs(rootOpts, func(cs *configstore.Store) error {
				v, err := cs.Get(commandContext(cmd), args[0])
				if err != nil {
					return WrapExitError(ExitFailure, "failed to read config", err)
				}
				if v == nil {
					out := newFormatter(rootOpts, cmd.OutOrStdout())
					_ = out.Error(CodeNotFound, fmt.Sprintf("config %q not found", args[0]), nil)
					return NewExitError(ExitFailure, fmt.Sprintf("config %q not found", args[0]))
				}
				out := newFormatter(rootOpts, cmd.OutOrStdout())
				if rootOpts.Format == "json" {
					return out.Success(configRow{Name: v.Name, Value: v.Value})
				}
				return out.Success(v.Value)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "set <name> <json>",
		Short:         "Store a JSON value under name",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := ir.ParseJSON([]byte(args[1]))
			if err != nil {
				return WrapExitError(ExitCommandError, "value is not valid JSON", err)
			}
			return withConfigs(rootOpts, func(cs *configstore.Store) error {
				if err := cs.Upsert(commandContext(cmd), args[0], v); err != nil {
					return WrapExitError(ExitFailure, "failed to write config", err)
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).Success(fmt.Sprintf("config %q saved", args[0]))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "rm <name>",
		Short:         "Remove the entry for name",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfigs(rootOpts, func(cs *configstore.Store) error {
				if err := cs.Remove(commandContext(cmd), args[0]); err != nil {
					return WrapExitError(ExitFailure, "failed to remove config", err)
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).Success(fmt.Sprintf("config %q removed", args[0]))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "ls",
		Short:         "List every entry",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfigs(rootOpts, func(cs *configstore.Store) error {
				values, err := cs.List(commandContext(cmd))
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list config", err)
				}
				data := make([]configRow, len(values))
				rows := make([][]string, len(values))
				for i, v := range values {
					data[i] = configRow{Name: v.Name, Value: v.Value}
					rows[i] = []string{v.Name, text(v.Value)}
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).Table(data, []string{"NAME", "VALUE"}, rows)
			})
		},
	})

	return cmd
}

// withConfigs runs fn against a config store over the configured
// database.
func withConfigs(opts *RootOptions, fn func(*configstore.Store) error) error {
	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer closeStore(st)
	return fn(configstore.New(st))
}
