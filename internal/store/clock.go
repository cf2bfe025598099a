package store

// seqClock hands out the seq stamped on each created record. seq is the
// insertion order used by every query's tiebreaker; it never reuses a value
// after deletes the way SQLite rowids can.
//
// Owned by the actor goroutine, so it needs no locking.
type seqClock struct {
	last int64
}

// resumeClock continues after the highest seq already on disk.
func resumeClock(last int64) *seqClock {
	return &seqClock{last: last}
}

func (c *seqClock) next() int64 {
	c.last++
	return c.last
}
