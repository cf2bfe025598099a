// Package epic turns start actions into success or error actions by
// running an effect.
//
// An Epic handles one kind. Each start runs the effect in a task keyed by
// the action's correlation key:
//   - a new start with a key already in flight supersedes it: the old task
//     is canceled and never reports (switch semantics)
//   - a cancel with the key cancels the task; no success or error is
//     emitted and the submitter's reply channel is closed empty
//   - otherwise exactly one success or error is emitted
//
// Cancellation is weak: writes the effect already committed stay.
package epic

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/shopkeep/internal/bus"
	"github.com/roach88/shopkeep/internal/ir"
	"github.com/roach88/shopkeep/internal/task"
)

// Call is the input of an effect.
type Call struct {
	Action  ir.Action
	Payload ir.Object
}

// Key returns the request's correlation key.
func (c Call) Key() string {
	return c.Action.Key()
}

// Result is the output of a successful effect. Then lists follow-up
// actions (usually starts of other kinds) dispatched after the success.
type Result struct {
	Payload ir.Object
	Then    []ir.Action
}

// Effect performs the work of one request. It should honor ctx: the
// context is canceled when the request is canceled or superseded.
type Effect func(ctx context.Context, call Call) (Result, error)

// Overlay is shown while an effect runs (a loading indicator).
type Overlay interface {
	Show(kind ir.Kind)
	Hide(kind ir.Kind)
}

// Option configures an Epic.
type Option func(*Epic)

// WithOverlay shows o around every effect run.
func WithOverlay(o Overlay) Option {
	return func(e *Epic) {
		e.overlay = o
	}
}

// WithLogger replaces slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(e *Epic) {
		e.log = l
	}
}

type flight struct {
	start ir.Action
	task  *task.Task[Result]
}

// Epic handles the starts and cancels of one kind. It implements
// bus.Handler.
type Epic struct {
	kind    ir.Kind
	effect  Effect
	overlay Overlay
	log     *slog.Logger

	mu       sync.Mutex
	inflight map[string]*flight
	wg       sync.WaitGroup
}

var _ bus.Handler = (*Epic)(nil)

// New creates an epic for kind.
func New(kind ir.Kind, effect Effect, opts ...Option) *Epic {
	e := &Epic{
		kind:     kind,
		effect:   effect,
		log:      slog.Default(),
		inflight: make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Kind returns the handled kind.
func (e *Epic) Kind() ir.Kind {
	return e.kind
}

// Accepts reports whether a is a start or cancel of the epic's kind.
func (e *Epic) Accepts(a ir.Action) bool {
	return a.Kind == e.kind && (a.Phase == ir.PhaseStart || a.Phase == ir.PhaseCancel)
}

// Handle starts or cancels a request. It never blocks on the effect.
func (e *Epic) Handle(ctx context.Context, a ir.Action, d bus.Dispatcher) {
	switch a.Phase {
	case ir.PhaseStart:
		e.start(ctx, a, d)
	case ir.PhaseCancel:
		e.cancel(a.Key(), "canceled")
	}
}

func (e *Epic) start(ctx context.Context, a ir.Action, d bus.Dispatcher) {
	key := a.Key()
	f := &flight{start: a}

	e.mu.Lock()
	prev := e.inflight[key]
	e.inflight[key] = f
	f.task = task.Run(ctx, func(ctx context.Context) (Result, error) {
		return e.run(ctx, a)
	})
	e.mu.Unlock()

	if prev != nil {
		e.abandon(prev, "superseded")
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.await(f, d)
	}()
}

func (e *Epic) run(ctx context.Context, a ir.Action) (Result, error) {
	if e.overlay != nil {
		e.overlay.Show(e.kind)
		defer e.overlay.Hide(e.kind)
	}
	payload := a.Payload
	if payload == nil {
		payload = ir.Object{}
	}
	return e.effect(ctx, Call{Action: a, Payload: payload})
}

// cancel removes the request for key, if any, and suppresses its outcome.
func (e *Epic) cancel(key, reason string) {
	e.mu.Lock()
	f, ok := e.inflight[key]
	if ok {
		delete(e.inflight, key)
	}
	e.mu.Unlock()

	if ok {
		e.abandon(f, reason)
	}
}

// abandon cancels a flight that has already been removed from inflight.
func (e *Epic) abandon(f *flight, reason string) {
	f.task.Cancel()
	f.start.Reply.Close()
	e.log.Debug("request dropped", "kind", e.kind, "key", f.start.Key(), "reason", reason)
}

// await reports the flight's outcome unless it was canceled or superseded
// first. Whoever removes the flight from inflight owns its reply channel.
func (e *Epic) await(f *flight, d bus.Dispatcher) {
	<-f.task.Finished()

	var r task.Result[Result]
	select {
	case r = <-f.task.Done():
	default:
		return // canceled
	}

	key := f.start.Key()
	var (
		actions []ir.Action
		outcome ir.Outcome
	)
	if r.Err != nil {
		payload := ErrorPayload(r.Err)
		actions = []ir.Action{ir.Failure(f.start, payload)}
		outcome = ir.Outcome{Phase: ir.PhaseError, Payload: payload}
	} else {
		payload := r.Value.Payload
		if payload == nil {
			payload = ir.Object{}
		}
		actions = append([]ir.Action{ir.Success(f.start, payload)}, r.Value.Then...)
		outcome = ir.Outcome{Phase: ir.PhaseSuccess, Payload: payload}
	}

	// Outcomes are queued before the flight is released so the epic never
	// looks idle while its outcome is undelivered.
	e.mu.Lock()
	if e.inflight[key] != f {
		e.mu.Unlock()
		return
	}
	for _, a := range actions {
		d.Dispatch(a)
	}
	delete(e.inflight, key)
	e.mu.Unlock()

	if r.Err != nil {
		e.log.Warn("request failed", "kind", e.kind, "key", key, "error", r.Err)
	}
	reply(f.start, outcome)
}

func reply(start ir.Action, o ir.Outcome) {
	if start.Reply != nil && !start.Reply.Send(o) {
		slog.Debug("reply already settled, outcome dropped", "type", start.Type(), "key", start.Key())
	}
}

// InFlight returns the number of running requests.
func (e *Epic) InFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inflight)
}

// Shutdown cancels every running request and waits for their goroutines
// to finish.
func (e *Epic) Shutdown() {
	e.mu.Lock()
	flights := e.inflight
	e.inflight = make(map[string]*flight)
	e.mu.Unlock()

	for _, f := range flights {
		e.abandon(f, "shutdown")
	}
	e.wg.Wait()
}

// Error is a domain failure carrying the payload of the error action.
type Error struct {
	Payload ir.Object
}

func (e *Error) Error() string {
	if msg := e.Payload.GetString("message"); msg != "" {
		return msg
	}
	return "request failed"
}

// Fail returns an *Error with payload.
func Fail(payload ir.Object) error {
	return &Error{Payload: payload}
}

// payloader is implemented by errors that carry their own error-action
// payload (transport.TransportError, *Error).
type payloader interface {
	Payload() ir.Object
}

// ErrorPayload converts an effect error to an error-action payload.
// Domain errors keep their payload; validation errors are tagged
// ValidationError; anything else, panics included, is an InternalError.
func ErrorPayload(err error) ir.Object {
	var de *Error
	if errors.As(err, &de) {
		return de.Payload.Clone()
	}
	var p payloader
	if errors.As(err, &p) {
		return p.Payload()
	}
	var ve ir.ValidationError
	if errors.As(err, &ve) {
		return ir.Object{
			"kind":    ir.String("ValidationError"),
			"field":   ir.String(ve.Field),
			"message": ir.String(ve.Message),
		}
	}
	return ir.Object{
		"kind":    ir.String("InternalError"),
		"message": ir.String(err.Error()),
	}
}
