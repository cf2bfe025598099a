package harness

import (
	"sync"

	"github.com/roach88/shopkeep/internal/ir"
	"github.com/roach88/shopkeep/internal/projection"
)

// TraceEvent is one action seen on the bus.
type TraceEvent struct {
	Seq     int64     `json:"seq"`
	Type    string    `json:"type"` // "KIND.phase"
	Key     string    `json:"key,omitempty"` // set when not the kind's default
	Payload ir.Object `json:"payload,omitempty"`
}

// object renders the event for golden files.
func (e TraceEvent) object() ir.Object {
	obj := ir.Object{
		"seq":  ir.Int(e.Seq),
		"type": ir.String(e.Type),
	}
	if e.Key != "" {
		obj["key"] = ir.String(e.Key)
	}
	if e.Payload != nil {
		obj["payload"] = e.Payload
	}
	return obj
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every delivered action in delivery order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Configs is the config table after the flow, by name.
	Configs map[string]ir.Value `json:"configs,omitempty"`

	// Projections holds the final snapshots by projection name.
	Projections map[string]*projection.Snapshot `json:"projections,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Trace:       []TraceEvent{},
		Errors:      []string{},
		Configs:     make(map[string]ir.Value),
		Projections: make(map[string]*projection.Snapshot),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// tracer records bus actions. record runs on the bus goroutine while the
// runner reads between steps.
type tracer struct {
	mu     sync.Mutex
	events []TraceEvent
}

func (t *tracer) record(a ir.Action) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var payload ir.Object
	if a.Payload != nil {
		payload = a.Payload.Clone()
	}
	ev := TraceEvent{
		Seq:     int64(len(t.events) + 1),
		Type:    a.Type(),
		Payload: payload,
	}
	if a.Key() != string(a.Kind) {
		ev.Key = a.Key()
	}
	t.events = append(t.events, ev)
}

func (t *tracer) snapshot() []TraceEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TraceEvent(nil), t.events...)
}
