package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/shopkeep/internal/shop"
	"github.com/roach88/shopkeep/internal/store"
	"github.com/roach88/shopkeep/internal/transport"
)

// openStore opens the database named by the settings.
func openStore(opts *RootOptions) (*store.Store, error) {
	slog.Debug("opening database", "path", opts.Settings.Database)
	st, err := store.Open(opts.Settings.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// env is a running App for one command.
type env struct {
	app    *shop.App
	client *transport.Client
	store  *store.Store
	stop   context.CancelFunc
	done   chan struct{}
}

// startApp opens the store, wires the App against the configured API,
// restores the persisted session and starts the bus.
func startApp(cmd *cobra.Command, opts *RootOptions) (*env, error) {
	timeout, err := opts.Settings.TimeoutDuration()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid settings", err)
	}
	st, err := openStore(opts)
	if err != nil {
		return nil, err
	}

	clientOpts := []transport.Option{
		transport.WithBaseURL(opts.Settings.BaseURL),
		transport.WithTimeout(timeout),
	}
	if opts.Settings.PageSize > 0 {
		clientOpts = append(clientOpts, transport.WithPageSize(opts.Settings.PageSize))
	}
	client := transport.NewClient(clientOpts...)
	app := shop.New(st, client, shop.WithNavigator(shop.NavigatorFunc(func(route string) {
		slog.Debug("navigate", "route", route)
	})))

	if _, err := app.RestoreSession(commandContext(cmd)); err != nil {
		closeStore(st)
		return nil, WrapExitError(ExitFailure, "failed to restore session", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	e := &env{app: app, client: client, store: st, stop: stop, done: make(chan struct{})}
	go func() {
		defer close(e.done)
		_ = app.Run(runCtx)
	}()
	return e, nil
}

// Close stops the bus and closes the store.
func (e *env) Close() {
	e.stop()
	<-e.done
	closeStore(e.store)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
