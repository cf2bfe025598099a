package projection

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/shopkeep/internal/ir"
)

// Listener is the part of bus.Bus a projection attaches to.
type Listener interface {
	Listen(fn func(ir.Action)) (remove func())
}

// Projection holds the current snapshot of one reducer.
//
// Apply is expected from a single goroutine (the bus); Current and
// Subscribe are safe from any goroutine.
type Projection struct {
	name    string
	reducer Reducer
	current atomic.Pointer[Snapshot]

	mu     sync.Mutex
	subs   map[uint64]func(*Snapshot)
	nextID uint64
}

// New creates a projection starting from Empty.
func New(name string, r Reducer) *Projection {
	p := &Projection{
		name:    name,
		reducer: r,
		subs:    make(map[uint64]func(*Snapshot)),
	}
	p.current.Store(Empty())
	return p
}

// Name returns the projection's name.
func (p *Projection) Name() string {
	return p.name
}

// Current returns the latest snapshot. Never nil.
func (p *Projection) Current() *Snapshot {
	return p.current.Load()
}

// Apply folds a into the projection and notifies subscribers when the
// snapshot changed.
func (p *Projection) Apply(a ir.Action) bool {
	p.mu.Lock()
	prev := p.current.Load()
	next := Fold(p.reducer, prev, a)
	if next == prev {
		p.mu.Unlock()
		return false
	}
	p.current.Store(next)
	subs := make([]func(*Snapshot), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	slog.Debug("projection changed", "projection", p.name, "type", a.Type(), "version", next.Version, "items", len(next.Data))
	for _, fn := range subs {
		fn(next)
	}
	return true
}

// Attach folds every action delivered by l. The returned function detaches.
func (p *Projection) Attach(l Listener) (detach func()) {
	return l.Listen(func(a ir.Action) {
		p.Apply(a)
	})
}

// Subscribe calls fn with every new snapshot. fn runs on the goroutine
// that applied the action and must not block.
func (p *Projection) Subscribe(fn func(*Snapshot)) (cancel func()) {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.subs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

// Await blocks until the current snapshot satisfies ok or ctx ends.
func (p *Projection) Await(ctx context.Context, ok func(*Snapshot) bool) (*Snapshot, error) {
	ch := make(chan *Snapshot, 1)
	cancel := p.Subscribe(func(s *Snapshot) {
		if ok(s) {
			select {
			case ch <- s:
			default:
			}
		}
	})
	defer cancel()

	if s := p.Current(); ok(s) {
		return s, nil
	}
	select {
	case s := <-ch:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
