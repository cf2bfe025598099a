package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/shopkeep/internal/ir"
	"github.com/roach88/shopkeep/internal/projection"
	"github.com/roach88/shopkeep/internal/shop"
)

// OrdersOptions holds flags for the orders command.
type OrdersOptions struct {
	*RootOptions
	Page   int
	Status string
}

// NewOrdersCommand creates the orders command.
func NewOrdersCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OrdersOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List the shop's orders",
		Long: `Fetch pages 1 through --page of the shop's orders and print the
merged list.

Example:
  shopkeep orders --page 2 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrders(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Page, "page", 1, "number of pages to fetch")
	cmd.Flags().StringVar(&opts.Status, "status", "", "only orders with this status")

	return cmd
}

func runOrders(cmd *cobra.Command, opts *OrdersOptions) error {
	if opts.Page < 1 {
		return NewExitError(ExitCommandError, "--page must be at least 1")
	}
	e, err := startApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := commandContext(cmd)
	base := e.app.Orders.Current().Version
	for page := 1; page <= opts.Page; page++ {
		payload := ir.Object{"page": ir.Int(int64(page))}
		if opts.Status != "" {
			payload["status"] = ir.String(opts.Status)
		}
		if _, err := e.app.Call(ctx, shop.KindOrders, payload); err != nil {
			return apiFailure(cmd, opts.RootOptions, "failed to fetch orders", err)
		}
	}

	// The reply can arrive before the projection has folded the last page.
	want := base + uint64(opts.Page)
	snap, err := e.app.Orders.Await(ctx, func(s *projection.Snapshot) bool {
		return s.Version >= want
	})
	if err != nil {
		return WrapExitError(ExitFailure, "orders not loaded", err)
	}

	rows := make([][]string, len(snap.Data))
	for i, o := range snap.Data {
		rows[i] = []string{text(o["order_id"]), o.GetString("status"), text(o["total"])}
	}
	return newFormatter(opts.RootOptions, cmd.OutOrStdout()).Table(snap.Data, []string{"ORDER", "STATUS", "TOTAL"}, rows)
}
