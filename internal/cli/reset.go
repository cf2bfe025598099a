package cli

import (
	"github.com/spf13/cobra"
)

// ResetOptions holds flags for the reset command.
type ResetOptions struct {
	*RootOptions
	Yes bool
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop every table in the local database",
		Long: `Drop every table and recreate an empty schema. The stored session,
cached config and feature flags are all lost.

Example:
  shopkeep reset --yes`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.Yes {
				return NewExitError(ExitCommandError, "reset drops all local data; pass --yes to confirm")
			}
			st, err := openStore(opts.RootOptions)
			if err != nil {
				return err
			}
			defer closeStore(st)

			if err := st.Reset(commandContext(cmd)); err != nil {
				return WrapExitError(ExitFailure, "failed to reset database", err)
			}
			return newFormatter(opts.RootOptions, cmd.OutOrStdout()).Success("database reset")
		},
	}

	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm dropping all local data")

	return cmd
}
