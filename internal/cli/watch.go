package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/shopkeep/internal/configstore"
	"github.com/roach88/shopkeep/internal/ir"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Count int
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <name>",
		Short: "Print a config entry every time it changes",
		Long: `Print the value of a config entry now and after every write to the
config table, until interrupted or --count values were printed.
An absent entry prints null.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts, args[0])
		},
	}

	cmd.Flags().IntVar(&opts.Count, "count", 0, "stop after this many values (0 = until interrupted)")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions, name string) error {
	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sub, err := configstore.New(st).Watch(ctx, name)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to watch config", err)
	}
	defer sub.Cancel()

	out := newFormatter(opts.RootOptions, cmd.OutOrStdout())
	printed := 0
	for {
		select {
		case recs, ok := <-sub.Updates():
			if !ok {
				return nil
			}
			var value ir.Value = ir.Null{}
			if v := configstore.Decode(recs); v != nil {
				value = v.Value
			}
			var row any = configRow{Name: name, Value: value}
			if opts.Format != "json" {
				row = name + " " + text(value)
			}
			if err := out.Success(row); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			printed++
			if opts.Count > 0 && printed >= opts.Count {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}
