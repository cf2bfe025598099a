// Package projection folds action outcomes into immutable snapshots for
// UI-facing observers.
//
// A Reducer is pure: it never mutates the previous snapshot and returns a
// fresh one whenever anything changed. Observers compare snapshot pointers
// to detect change.
package projection

import (
	"github.com/roach88/shopkeep/internal/ir"
)

// Snapshot is one immutable projection state. Data is never nil. Value is
// set by value reducers, Error by the last failed request.
type Snapshot struct {
	Data    []ir.Object
	Value   ir.Object
	Error   ir.Object
	Version uint64
}

// Empty is the initial snapshot.
func Empty() *Snapshot {
	return &Snapshot{Data: []ir.Object{}}
}

// Object renders the snapshot as a Value.
func (s *Snapshot) Object() ir.Object {
	data := make(ir.Array, len(s.Data))
	for i, item := range s.Data {
		data[i] = item
	}
	out := ir.Object{
		"data":    data,
		"version": ir.Int(int64(s.Version)),
	}
	if s.Value != nil {
		out["value"] = s.Value
	}
	if s.Error != nil {
		out["error"] = s.Error
	}
	return out
}

// MarshalJSON writes the canonical form of Object.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return ir.MarshalCanonical(s.Object())
}

// Reducer computes the next snapshot. It returns changed == false, and
// prev itself, for actions it does not handle.
type Reducer interface {
	Reduce(prev *Snapshot, a ir.Action) (next *Snapshot, changed bool)
}

// ReducerFunc adapts a function to Reducer.
type ReducerFunc func(prev *Snapshot, a ir.Action) (*Snapshot, bool)

// Reduce calls f.
func (f ReducerFunc) Reduce(prev *Snapshot, a ir.Action) (*Snapshot, bool) {
	return f(prev, a)
}

// Fold applies a to prev with r. Unhandled actions return prev; any change
// returns a new snapshot with Version incremented.
func Fold(r Reducer, prev *Snapshot, a ir.Action) *Snapshot {
	if prev == nil {
		prev = Empty()
	}
	next, changed := r.Reduce(prev, a)
	if !changed || next == nil || next == prev {
		return prev
	}
	next.Version = prev.Version + 1
	if next.Data == nil {
		next.Data = []ir.Object{}
	}
	return next
}
