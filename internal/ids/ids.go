// Package ids generates record ids and correlation keys.
package ids

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
// Implemented by UUIDv7 (production), Sequence and Fixed (tests).
type Generator interface {
	Generate() string
}

// UUIDv7 generates time-sortable UUIDv7 identifiers.
//
// UUIDv7 embeds a timestamp in the most significant bits, so ids sort by
// creation time, which keeps log output and database pages readable.
//
// Stateless and safe for concurrent use.
type UUIDv7 struct{}

// Generate returns a new hyphenated UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Sequence generates "<prefix>-1", "<prefix>-2", ... and never runs out.
// Safe for concurrent use.
type Sequence struct {
	prefix string
	n      atomic.Int64
}

// NewSequence creates a sequence generator with the given prefix.
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

// Generate returns the next id in the sequence.
func (s *Sequence) Generate() string {
	return fmt.Sprintf("%s-%d", s.prefix, s.n.Add(1))
}

// Fixed returns predetermined ids in order.
//
// Tests use it to pin exact ids in assertions and golden files.
// Safe for concurrent use via internal mutex.
type Fixed struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixed creates a generator that returns ids in order.
//
//	gen := NewFixed("a", "b")
//	gen.Generate() // "a"
//	gen.Generate() // "b"
//	gen.Generate() // panic: all ids exhausted
func NewFixed(ids ...string) *Fixed {
	return &Fixed{ids: ids}
}

// Generate returns the next predetermined id.
//
// Panics once all ids have been consumed, to surface a test that creates
// more records than it declared.
func (g *Fixed) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("ids.Fixed: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
