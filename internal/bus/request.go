package bus

import (
	"context"
	"errors"

	"github.com/roach88/shopkeep/internal/ir"
)

// ErrCanceled is returned by Request.Wait when the request was canceled
// (or the bus stopped) before an outcome arrived.
var ErrCanceled = errors.New("bus: request canceled")

// Request is the submitter's handle on one workflow instance.
type Request struct {
	bus  *Bus
	kind ir.Kind
	key  string
	out  chan ir.Outcome
}

// Submit dispatches a start action and returns a handle on its outcome.
// An empty key uses the kind as the correlation key. If ctx ends before an
// outcome, the request is canceled. A start no registered handler accepts
// settles at once as canceled.
func (b *Bus) Submit(ctx context.Context, kind ir.Kind, key string, payload ir.Object) *Request {
	if key == "" {
		key = string(kind)
	}
	reply := ir.NewReply()
	r := &Request{bus: b, kind: kind, key: key, out: make(chan ir.Outcome, 1)}

	start := ir.StartKeyed(kind, key, payload)
	start.Reply = reply
	if !b.Dispatch(start) {
		close(r.out)
		return r
	}

	go func() {
		defer close(r.out)
		select {
		case o, ok := <-reply.C():
			if ok {
				r.out <- o
			}
		case <-ctx.Done():
			r.Cancel()
		}
	}()
	return r
}

// Key returns the request's correlation key.
func (r *Request) Key() string {
	return r.key
}

// Done yields exactly one outcome for success or error. It is closed
// without a value when the request is canceled.
func (r *Request) Done() <-chan ir.Outcome {
	return r.out
}

// Cancel dispatches the cancel action for this request. It has no effect
// once the request has completed.
func (r *Request) Cancel() {
	r.bus.Dispatch(ir.Cancel(r.kind, r.key))
}

// Wait blocks for the outcome. Returns ErrCanceled if the request was
// canceled, or ctx.Err() if ctx ends first.
func (r *Request) Wait(ctx context.Context) (ir.Outcome, error) {
	select {
	case o, ok := <-r.out:
		if !ok {
			return ir.Outcome{}, ErrCanceled
		}
		return o, nil
	case <-ctx.Done():
		return ir.Outcome{}, ctx.Err()
	}
}
