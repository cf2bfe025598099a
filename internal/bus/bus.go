// Package bus is the process-wide action stream.
//
// Every async workflow is a request: a start action, then exactly one
// success or error, unless a cancel with the same correlation key arrives
// first. The bus delivers each action, in dispatch order, to every listener
// and every handler that accepts it. Delivery happens on the single Run
// goroutine; handlers must not block (epics start their work in tasks and
// dispatch outcomes later).
package bus

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/roach88/shopkeep/internal/ids"
	"github.com/roach88/shopkeep/internal/ir"
	"github.com/roach88/shopkeep/internal/queue"
)

// Dispatcher accepts actions for delivery.
type Dispatcher interface {
	Dispatch(a ir.Action) bool
}

// Handler consumes actions. Accepts is consulted for every action;
// Handle runs on the bus goroutine and may dispatch further actions.
type Handler interface {
	Accepts(a ir.Action) bool
	Handle(ctx context.Context, a ir.Action, d Dispatcher)
}

// ErrRunning is returned by a second concurrent Run.
var ErrRunning = errors.New("bus: already running")

type listener struct {
	id uint64
	fn func(ir.Action)
}

// Bus delivers actions to handlers and listeners.
//
// Thread-safety model:
//   - Dispatch, Submit, Register, Listen, Stop: safe from any goroutine
//   - handlers and listeners: called only from the Run goroutine
type Bus struct {
	queue *queue.FIFO[ir.Action]
	keys  ids.Generator

	mu        sync.RWMutex
	handlers  []Handler
	listeners []listener
	nextID    uint64

	running atomic.Bool
	pending atomic.Int64
}

// Option configures a Bus.
type Option func(*Bus)

// WithKeyGenerator sets the generator behind NewKey (default: UUIDv7).
func WithKeyGenerator(gen ids.Generator) Option {
	return func(b *Bus) {
		b.keys = gen
	}
}

// New creates a bus. Call Run to start delivery.
func New(opts ...Option) *Bus {
	b := &Bus{
		queue: queue.New[ir.Action](),
		keys:  ids.UUIDv7{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewKey returns a fresh correlation key.
func (b *Bus) NewKey() string {
	return b.keys.Generate()
}

// Register adds a handler. Several handlers may accept the same kind; the
// bus does not enforce exclusivity.
func (b *Bus) Register(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Listen calls fn with every delivered action, before handlers see it.
// The returned function removes the listener.
func (b *Bus) Listen(fn func(ir.Action)) (remove func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, listener{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, l := range b.listeners {
			if l.id == id {
				b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
				return
			}
		}
	}
}

// Dispatch queues an action. Returns false if the action is malformed or
// the bus has stopped.
func (b *Bus) Dispatch(a ir.Action) bool {
	if a.Kind == "" || !a.Phase.Valid() {
		slog.Warn("dropping malformed action", "kind", a.Kind, "phase", a.Phase)
		return false
	}
	b.pending.Add(1)
	if !b.queue.Enqueue(a) {
		b.pending.Add(-1)
		return false
	}
	return true
}

// Run delivers actions until ctx ends or Stop is called. After Stop, Run
// delivers what was already queued and returns nil.
func (b *Bus) Run(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer b.running.Store(false)
	slog.Debug("bus starting")

	for {
		if a, ok := b.queue.TryDequeue(); ok {
			b.deliver(ctx, a)
			b.pending.Add(-1)
			continue
		}

		if b.queue.Closed() {
			slog.Debug("bus stopping: queue closed")
			return nil
		}

		select {
		case <-ctx.Done():
			slog.Debug("bus stopping: context cancelled")
			b.queue.Close()
			return ctx.Err()
		case <-b.queue.Wait():
		}
	}
}

// Stop closes the bus. Further dispatches are rejected.
func (b *Bus) Stop() {
	b.queue.Close()
}

// Pending returns the number of actions queued or being delivered.
func (b *Bus) Pending() int {
	return int(b.pending.Load())
}

func (b *Bus) deliver(ctx context.Context, a ir.Action) {
	b.mu.RLock()
	listeners := append([]listener(nil), b.listeners...)
	handlers := append([]Handler(nil), b.handlers...)
	b.mu.RUnlock()

	slog.Debug("action", "type", a.Type(), "key", a.Key())

	for _, l := range listeners {
		b.guard(a, func() { l.fn(a) })
	}
	accepted := false
	for _, h := range handlers {
		b.guard(a, func() {
			if h.Accepts(a) {
				accepted = true
				h.Handle(ctx, a, b)
			}
		})
	}
	if !accepted && a.Phase == ir.PhaseStart && a.Reply.Close() {
		slog.Warn("no handler for submitted action", "type", a.Type(), "key", a.Key())
	}
}

// guard keeps one failing consumer from stopping delivery to the rest.
func (b *Bus) guard(a ir.Action, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("action consumer panicked",
				"type", a.Type(),
				"key", a.Key(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}
