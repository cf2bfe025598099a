package projection

import (
	"slices"

	"github.com/roach88/shopkeep/internal/ir"
)

// ListReducer keeps a paginated list from the successes of Kind.
//
// A success with page absent or 1 replaces the list; a later page appends,
// dropping items whose identity is already present (first seen wins). An
// error empties the list and records the payload. A success of UpdateKind
// replaces the item with the same identity by the object under
// UpdateField.
type ListReducer struct {
	Kind          ir.Kind
	ItemsField    string
	IdentityField string

	UpdateKind  ir.Kind
	UpdateField string
}

// Reduce implements Reducer.
func (r ListReducer) Reduce(prev *Snapshot, a ir.Action) (*Snapshot, bool) {
	switch {
	case a.Kind == r.Kind && a.Phase == ir.PhaseSuccess:
		return r.merge(prev, a.Payload), true
	case a.Kind == r.Kind && a.Phase == ir.PhaseError:
		return &Snapshot{Data: []ir.Object{}, Value: prev.Value, Error: errorOf(a.Payload)}, true
	case r.UpdateKind != "" && a.Kind == r.UpdateKind && a.Phase == ir.PhaseSuccess:
		return r.replace(prev, a.Payload)
	}
	return prev, false
}

func (r ListReducer) merge(prev *Snapshot, payload ir.Object) *Snapshot {
	items := objects(payload.GetArray(r.ItemsField))
	page, ok := payload.GetInt("page")
	if !ok || page <= 1 {
		return &Snapshot{Data: items, Value: prev.Value}
	}

	seen := make(map[string]struct{}, len(prev.Data)+len(items))
	data := make([]ir.Object, 0, len(prev.Data)+len(items))
	for _, item := range slices.Concat(prev.Data, items) {
		id := r.identity(item)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		data = append(data, item)
	}
	return &Snapshot{Data: data, Value: prev.Value}
}

func (r ListReducer) replace(prev *Snapshot, payload ir.Object) (*Snapshot, bool) {
	updated := payload.GetObject(r.UpdateField)
	if updated == nil {
		return prev, false
	}
	id := r.identity(updated)
	i := slices.IndexFunc(prev.Data, func(item ir.Object) bool {
		return r.identity(item) == id
	})
	if i < 0 {
		return prev, false
	}
	data := slices.Clone(prev.Data)
	data[i] = updated
	return &Snapshot{Data: data, Value: prev.Value, Error: prev.Error}, true
}

// identity returns the canonical form of the item's identity field, or of
// the whole item when the field is missing.
func (r ListReducer) identity(item ir.Object) string {
	var v ir.Value = item
	if r.IdentityField != "" {
		if id, ok := item[r.IdentityField]; ok {
			v = id
		}
	}
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// ValueReducer keeps a single object: the payload of the last success of
// one of Kinds (or its Field, when set). An error of those kinds clears
// the value; a success of one of ClearKinds resets the snapshot.
type ValueReducer struct {
	Kinds      []ir.Kind
	Field      string
	ClearKinds []ir.Kind
}

// Reduce implements Reducer.
func (r ValueReducer) Reduce(prev *Snapshot, a ir.Action) (*Snapshot, bool) {
	if a.Phase == ir.PhaseSuccess && slices.Contains(r.ClearKinds, a.Kind) {
		return Empty(), true
	}
	if !slices.Contains(r.Kinds, a.Kind) {
		return prev, false
	}
	switch a.Phase {
	case ir.PhaseSuccess:
		v := a.Payload
		if r.Field != "" {
			v = a.Payload.GetObject(r.Field)
		}
		if v == nil {
			return &Snapshot{Data: prev.Data}, true
		}
		return &Snapshot{Data: prev.Data, Value: v.Clone()}, true
	case ir.PhaseError:
		return &Snapshot{Data: prev.Data, Error: errorOf(a.Payload)}, true
	}
	return prev, false
}

func errorOf(payload ir.Object) ir.Object {
	if payload == nil {
		return ir.Object{}
	}
	return payload.Clone()
}

func objects(arr ir.Array) []ir.Object {
	out := make([]ir.Object, 0, len(arr))
	for _, v := range arr {
		if obj, ok := v.(ir.Object); ok {
			out = append(out, obj)
		}
	}
	return out
}
