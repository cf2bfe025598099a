package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/shopkeep/internal/epic"
	"github.com/roach88/shopkeep/internal/ir"
	"github.com/roach88/shopkeep/internal/shop"
	"github.com/roach88/shopkeep/internal/transport"
)

// LoginOptions holds flags for the login command.
type LoginOptions struct {
	*RootOptions
	Username string
	Password string
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoginOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and cache the shop's lookup lists",
		Long: `Sign in against the shop API. The session is kept in the local
database and reused by later commands until it expires.

Example:
  shopkeep login --username shop01 --password secret`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := startApp(cmd, opts.RootOptions)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := commandContext(cmd)
			data, err := e.app.Call(ctx, shop.KindLogin, ir.Object{
				"username": ir.String(opts.Username),
				"password": ir.String(opts.Password),
			})
			if err != nil {
				return apiFailure(cmd, opts.RootOptions, "login failed", err)
			}
			// Supersedes the fetch login fanned out, so the lists are
			// saved before the process exits.
			if _, err := e.app.Call(ctx, shop.KindSilentFetch, nil); err != nil {
				return apiFailure(cmd, opts.RootOptions, "failed to cache lookup lists", err)
			}

			user := data.GetObject("user")
			return newFormatter(opts.RootOptions, cmd.OutOrStdout()).Success(fmt.Sprintf("signed in as %s", user.GetString("username")))
		},
	}

	cmd.Flags().StringVar(&opts.Username, "username", "", "account name (required)")
	cmd.Flags().StringVar(&opts.Password, "password", "", "account password (required)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "logout",
		Short:         "Forget the stored session",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := startApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			if _, err := e.app.Call(commandContext(cmd), shop.KindLogout, nil); err != nil {
				return WrapExitError(ExitFailure, "logout failed", err)
			}
			return newFormatter(rootOpts, cmd.OutOrStdout()).Success("signed out")
		},
	}
}

// apiFailure prints an API error payload and returns the matching exit
// error.
func apiFailure(cmd *cobra.Command, opts *RootOptions, message string, err error) error {
	var ee *epic.Error
	if errors.As(err, &ee) {
		msg := describe(ee.Payload, transport.MessageFor(ee.Payload, transport.DefaultMessages()))
		_ = newFormatter(opts, cmd.OutOrStdout()).Error(CodeAPI, fmt.Sprintf("%s: %s", message, msg), ee.Payload)
	}
	return WrapExitError(ExitFailure, message, err)
}

// describe prefers the server's own message over the localized one.
func describe(payload ir.Object, localized string) string {
	if msg := payload.GetString("message"); msg != "" {
		return msg
	}
	return localized
}
