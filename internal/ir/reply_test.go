package ir

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReply_FirstSendWins(t *testing.T) {
	r := NewReply()
	assert.True(t, r.Send(Outcome{Phase: PhaseSuccess, Payload: Object{"n": Int(1)}}))
	assert.False(t, r.Send(Outcome{Phase: PhaseError}))
	assert.False(t, r.Close())

	o, ok := <-r.C()
	assert.True(t, ok)
	assert.Equal(t, PhaseSuccess, o.Phase)
	_, ok = <-r.C()
	assert.False(t, ok)
}

func TestReply_CloseThenSend(t *testing.T) {
	r := NewReply()
	assert.True(t, r.Close())
	assert.False(t, r.Send(Outcome{Phase: PhaseSuccess}))

	_, ok := <-r.C()
	assert.False(t, ok)
}

func TestReply_ConcurrentSettle(t *testing.T) {
	r := NewReply()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				r.Send(Outcome{Phase: PhaseSuccess})
			} else {
				r.Close()
			}
		}(i)
	}
	wg.Wait()

	n := 0
	for range r.C() {
		n++
	}
	assert.LessOrEqual(t, n, 1)
}

func TestReply_Nil(t *testing.T) {
	var r *Reply
	assert.False(t, r.Send(Outcome{}))
	assert.False(t, r.Close())
}
