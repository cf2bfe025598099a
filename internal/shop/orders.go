package shop

import (
	"context"

	"github.com/roach88/shopkeep/internal/epic"
	"github.com/roach88/shopkeep/internal/transport"
)

// getList fetches one page of orders. The success payload carries the
// request params (page) next to the data so the projection can merge.
func (a *App) getList(ctx context.Context, call epic.Call) (epic.Result, error) {
	data, err := a.fetch(ctx, PathOrders, transport.GET, call.Payload)
	if err != nil {
		return epic.Result{}, err
	}
	return epic.Result{Payload: call.Payload.Merge(data)}, nil
}

func (a *App) updateStatus(ctx context.Context, call epic.Call) (epic.Result, error) {
	data, err := a.fetch(ctx, PathUpdateStatus, transport.POST, call.Payload)
	if err != nil {
		return epic.Result{}, err
	}
	return epic.Result{Payload: data}, nil
}
