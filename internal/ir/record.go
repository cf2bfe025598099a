package ir

import (
	"fmt"
	"slices"
)

// Record is a persisted entity: an id, the table it lives in, and its fields.
// Seq is the store's logical insertion clock and defines insertion order.
type Record struct {
	ID     string `json:"id"`
	Table  string `json:"table"`
	Seq    int64  `json:"seq"`
	Fields Object `json:"fields"`
}

// Get returns the field value, or Null when the column is unset.
func (r Record) Get(col string) Value {
	if v, ok := r.Fields[col]; ok {
		return v
	}
	return Null{}
}

// Patch is a typed set of column assignments applied to a record.
// The store validates every column against the table schema before writing.
type Patch struct {
	cols []string
	vals map[string]Value
}

// NewPatch returns an empty patch.
func NewPatch() Patch {
	return Patch{vals: map[string]Value{}}
}

// PatchOf builds a patch from an object's entries in key order.
func PatchOf(obj Object) Patch {
	p := NewPatch()
	for _, k := range obj.SortedKeys() {
		p = p.Set(k, obj[k])
	}
	return p
}

// Set returns a copy of p with col assigned. Later assignments to the same
// column win. p itself is left untouched.
func (p Patch) Set(col string, v Value) Patch {
	vals := make(map[string]Value, len(p.vals)+1)
	for k, x := range p.vals {
		vals[k] = x
	}
	cols := slices.Clip(p.cols)
	if _, ok := vals[col]; !ok {
		cols = append(cols, col)
	}
	vals[col] = v
	return Patch{cols: cols, vals: vals}
}

// SetString is shorthand for Set(col, String(s)).
func (p Patch) SetString(col, s string) Patch {
	return p.Set(col, String(s))
}

// Columns returns the assigned columns in assignment order.
func (p Patch) Columns() []string {
	return slices.Clone(p.cols)
}

// Value returns the value assigned to col.
func (p Patch) Value(col string) (Value, bool) {
	v, ok := p.vals[col]
	return v, ok
}

// Len returns the number of assigned columns.
func (p Patch) Len() int {
	return len(p.cols)
}

// ApplyTo returns fields with the patch merged over it.
func (p Patch) ApplyTo(fields Object) Object {
	out := fields.Clone()
	for _, c := range p.cols {
		out[c] = p.vals[c]
	}
	return out
}

// ConfigEntry is a row of the config table: a unique business name and an
// opaque JSON payload.
type ConfigEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	JSON string `json:"json"`
}

// ConfigValue is a config entry with its payload parsed.
type ConfigValue struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// ValidationError reports a payload or schema rule rejected before any write.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
