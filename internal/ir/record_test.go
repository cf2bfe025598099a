package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatch_SetKeepsOrderAndLastWins(t *testing.T) {
	p := NewPatch().
		SetString("name", "user").
		Set("json", String("{}")).
		SetString("name", "qr")

	assert.Equal(t, []string{"name", "json"}, p.Columns())
	v, ok := p.Value("name")
	assert.True(t, ok)
	assert.Equal(t, String("qr"), v)
	assert.Equal(t, 2, p.Len())
}

func TestPatch_SetIsPersistent(t *testing.T) {
	base := NewPatch().SetString("name", "a")
	derived := base.SetString("json", "{}")

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, 2, derived.Len())
	_, ok := base.Value("json")
	assert.False(t, ok)
}

func TestPatch_ApplyTo(t *testing.T) {
	fields := Object{"name": String("user"), "json": String(`{"a":1}`)}
	out := PatchOf(Object{"json": String(`{"a":2}`)}).ApplyTo(fields)

	assert.Equal(t, String(`{"a":2}`), out["json"])
	assert.Equal(t, String("user"), out["name"])
	assert.Equal(t, String(`{"a":1}`), fields["json"], "input not mutated")
}

func TestRecord_Get(t *testing.T) {
	r := Record{ID: "1", Table: "config", Fields: Object{"name": String("qr")}}
	assert.Equal(t, String("qr"), r.Get("name"))
	assert.Equal(t, Null{}, r.Get("json"))
}

func TestValidationError(t *testing.T) {
	assert.Equal(t, "name: must not be empty", ValidationError{Field: "name", Message: "must not be empty"}.Error())
	assert.Equal(t, "bad", ValidationError{Message: "bad"}.Error())
}
