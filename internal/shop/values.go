package shop

import (
	"context"
	"log/slog"

	"github.com/roach88/shopkeep/internal/configstore"
	"github.com/roach88/shopkeep/internal/epic"
	"github.com/roach88/shopkeep/internal/ir"
	"github.com/roach88/shopkeep/internal/task"
	"github.com/roach88/shopkeep/internal/transport"
)

// cachedValue is one lookup list refreshed by silentFetch: the API path,
// the field of the response holding the list and the config name it is
// stored under.
type cachedValue struct {
	path  string
	field string
	name  string
}

var cachedValues = []cachedValue{
	{path: PathUnit, field: "units", name: configstore.NameUnit},
	{path: PathBranch, field: "branch", name: configstore.NameBranch},
	{path: PathQRCode, field: "qrcode", name: configstore.NameQR},
}

// silentFetch refreshes the cached lookup lists. The three calls run
// concurrently; whatever succeeded is saved in one batch and failures are
// only logged.
func (a *App) silentFetch(ctx context.Context, _ epic.Call) (epic.Result, error) {
	tasks := make([]*task.Task[ir.Object], len(cachedValues))
	for i, v := range cachedValues {
		tasks[i] = task.Run(ctx, func(ctx context.Context) (ir.Object, error) {
			return a.fetch(ctx, v.path, transport.GET, ir.Object{transport.IgnoreDismissKeyboard: ir.Bool(true)})
		})
	}

	var entries []configstore.Entry
	saved := ir.Array{}
	for i, t := range tasks {
		v := cachedValues[i]
		data, err := t.Await(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return epic.Result{}, ctx.Err()
			}
			slog.Warn("cached value not refreshed", "name", v.name, "path", v.path, "error", err)
			continue
		}
		value, ok := data[v.field]
		if !ok {
			value = ir.Null{}
		}
		entries = append(entries, configstore.Entry{Name: v.name, Value: value})
		saved = append(saved, ir.String(v.name))
	}

	if err := a.Configs.UpsertMany(ctx, entries); err != nil {
		return epic.Result{}, err
	}
	return epic.Result{Payload: ir.Object{"saved": saved}}, nil
}
