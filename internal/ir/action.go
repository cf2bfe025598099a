package ir

import (
	"fmt"
	"strings"
)

// Phase is the lifecycle stage an action reports.
//
//	IDLE --start--> IN_FLIGHT --success--> DONE
//	                IN_FLIGHT --error----> DONE
//	                IN_FLIGHT --cancel---> CANCELED
type Phase string

const (
	PhaseStart   Phase = "start"
	PhaseSuccess Phase = "success"
	PhaseError   Phase = "error"
	PhaseCancel  Phase = "cancel"
)

// Valid reports whether p is one of the four lifecycle phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseStart, PhaseSuccess, PhaseError, PhaseCancel:
		return true
	}
	return false
}

// Terminal reports whether p ends a workflow.
func (p Phase) Terminal() bool {
	return p == PhaseSuccess || p == PhaseError || p == PhaseCancel
}

// Kind names a workflow, conventionally "PREFIX.name" (e.g. "AUTH.login").
type Kind string

// NewKind joins a prefix and a name into a Kind.
func NewKind(prefix, name string) Kind {
	return Kind(prefix + "." + name)
}

// Prefix returns the part of the kind before the first dot.
func (k Kind) Prefix() string {
	p, _, _ := strings.Cut(string(k), ".")
	return p
}

// Action is one tagged message on the action bus.
//
// Kind and Phase select routing. CorrelationKey groups the start, outcome and
// cancel actions of one request; it defaults to Kind so "cancel AUTH.login"
// without a key cancels the default login request.
//
// Reply is set only on start actions submitted through bus.Submit. The epic
// handling the start sends one Outcome on it for success/error and closes
// it without a value when the request is canceled. Actions are never
// persisted.
type Action struct {
	Kind           Kind
	Phase          Phase
	CorrelationKey string
	Payload        Object
	Reply          *Reply
}

// Key returns the correlation key, defaulting to the kind.
func (a Action) Key() string {
	if a.CorrelationKey != "" {
		return a.CorrelationKey
	}
	return string(a.Kind)
}

// Type returns the routing tag "KIND.phase" used in logs.
func (a Action) Type() string {
	return fmt.Sprintf("%s.%s", a.Kind, a.Phase)
}

// Start builds a start action with the default correlation key.
func Start(kind Kind, payload Object) Action {
	return Action{Kind: kind, Phase: PhaseStart, Payload: payload}
}

// StartKeyed builds a start action with an explicit correlation key.
func StartKeyed(kind Kind, key string, payload Object) Action {
	return Action{Kind: kind, Phase: PhaseStart, CorrelationKey: key, Payload: payload}
}

// Success builds the success action answering start.
func Success(start Action, payload Object) Action {
	return Action{Kind: start.Kind, Phase: PhaseSuccess, CorrelationKey: start.CorrelationKey, Payload: payload}
}

// Failure builds the error action answering start.
func Failure(start Action, payload Object) Action {
	return Action{Kind: start.Kind, Phase: PhaseError, CorrelationKey: start.CorrelationKey, Payload: payload}
}

// Cancel builds a cancel action for the request with the given key.
// An empty key addresses the kind's default request.
func Cancel(kind Kind, key string) Action {
	return Action{Kind: kind, Phase: PhaseCancel, CorrelationKey: key}
}

// Outcome is what a submitter receives on an action's Reply channel.
type Outcome struct {
	Phase   Phase
	Payload Object
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool {
	return o.Phase == PhaseSuccess
}
