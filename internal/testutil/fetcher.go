package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/shopkeep/internal/ir"
	"github.com/roach88/shopkeep/internal/transport"
)

// FetchCall records one call made through a Fetcher.
type FetchCall struct {
	Method transport.Method
	Path   string
	Params ir.Object
}

// Reply computes the response to a scripted call.
type Reply func(ctx context.Context, params ir.Object) transport.Response

// Fetcher is a scripted transport.Fetcher for tests. Unscripted calls fail
// with status 404.
//
// Thread-safety: all methods are safe for concurrent use.
type Fetcher struct {
	mu      sync.Mutex
	replies map[string]Reply
	gates   map[string]chan struct{}
	calls   []FetchCall
}

// NewFetcher creates an empty scripted fetcher.
func NewFetcher() *Fetcher {
	return &Fetcher{
		replies: make(map[string]Reply),
		gates:   make(map[string]chan struct{}),
	}
}

func route(method transport.Method, path string) string {
	return fmt.Sprintf("%s %s", method, path)
}

// On scripts the reply for method and path.
func (f *Fetcher) On(method transport.Method, path string, reply Reply) *Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[route(method, path)] = reply
	return f
}

// OK scripts a successful response with data.
func (f *Fetcher) OK(method transport.Method, path string, data ir.Object) *Fetcher {
	return f.On(method, path, func(context.Context, ir.Object) transport.Response {
		return transport.Ok(data)
	})
}

// Fail scripts a failed response with errObj.
func (f *Fetcher) Fail(method transport.Method, path string, errObj ir.Object) *Fetcher {
	return f.On(method, path, func(context.Context, ir.Object) transport.Response {
		return transport.Fail(errObj)
	})
}

// Hold makes calls to method and path block until Release or until their
// context ends (then they fail with TIMEOUT_ERROR).
func (f *Fetcher) Hold(method transport.Method, path string) *Fetcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gates[route(method, path)] = make(chan struct{})
	return f
}

// Release unblocks held calls to method and path.
func (f *Fetcher) Release(method transport.Method, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := route(method, path)
	if gate, ok := f.gates[r]; ok {
		close(gate)
		delete(f.gates, r)
	}
}

// Fetch implements transport.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, path string, method transport.Method, params ir.Object) transport.Response {
	r := route(method, path)

	f.mu.Lock()
	f.calls = append(f.calls, FetchCall{Method: method, Path: path, Params: params.Clone()})
	reply, scripted := f.replies[r]
	gate := f.gates[r]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return transport.Fail(ir.Object{"problem": ir.String(string(transport.TimeoutError))})
		}
	}

	if !scripted {
		return transport.Fail(ir.Object{
			"status":  ir.Int(404),
			"problem": ir.String(string(transport.ClientError)),
		})
	}
	return reply(ctx, params)
}

// Calls returns the calls made so far.
func (f *Fetcher) Calls() []FetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FetchCall(nil), f.calls...)
}

// CallCount returns how many calls were made to method and path.
func (f *Fetcher) CallCount(method transport.Method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}
