package ir

import "sync"

// Reply is the response channel of a submitted start action.
//
// Every handler that accepts the start sees the same Reply, so it settles
// once: the first Send or Close wins and later calls do nothing. Methods
// are safe on a nil Reply.
type Reply struct {
	ch   chan Outcome
	once sync.Once
}

// NewReply creates an unsettled reply.
func NewReply() *Reply {
	return &Reply{ch: make(chan Outcome, 1)}
}

// Send delivers o and closes the reply. Reports whether o was delivered.
func (r *Reply) Send(o Outcome) bool {
	if r == nil {
		return false
	}
	sent := false
	r.once.Do(func() {
		r.ch <- o
		close(r.ch)
		sent = true
	})
	return sent
}

// Close settles the reply without an outcome. Reports whether this call
// settled it.
func (r *Reply) Close() bool {
	if r == nil {
		return false
	}
	closed := false
	r.once.Do(func() {
		close(r.ch)
		closed = true
	})
	return closed
}

// C yields the outcome, or is closed without one.
func (r *Reply) C() <-chan Outcome {
	return r.ch
}
