package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFO_EnqueueDequeue(t *testing.T) {
	q := New[string]()

	ok := q.Enqueue("a")
	require.True(t, ok, "enqueue should succeed")

	got, ok := q.TryDequeue()
	require.True(t, ok, "dequeue should succeed")
	assert.Equal(t, "a", got)
}

func TestFIFO_Order(t *testing.T) {
	q := New[int]()
	for i := 1; i <= 3; i++ {
		q.Enqueue(i)
	}

	for want := 1; want <= 3; want++ {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestFIFO_TryDequeue_Empty(t *testing.T) {
	q := New[int]()

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestFIFO_Dequeue_BlocksUntilAvailable(t *testing.T) {
	q := New[string]()
	done := make(chan string)

	go func() {
		v, ok := q.Dequeue()
		if ok {
			done <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Enqueue("late")

	select {
	case v := <-done:
		assert.Equal(t, "late", v)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not unblock")
	}
}

func TestFIFO_Close_UnblocksDequeue(t *testing.T) {
	q := New[int]()
	done := make(chan bool)

	go func() {
		_, ok := q.Dequeue()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok, "dequeue after close should return false")
	case <-time.After(time.Second):
		t.Fatal("dequeue did not unblock after close")
	}
}

func TestFIFO_Close_DrainsRemaining(t *testing.T) {
	q := New[int]()
	q.Enqueue(1)
	q.Close()

	v, ok := q.Dequeue()
	require.True(t, ok, "queued items survive close")
	assert.Equal(t, 1, v)

	_, ok = q.Dequeue()
	assert.False(t, ok)
}

func TestFIFO_Enqueue_AfterClose(t *testing.T) {
	q := New[int]()
	q.Close()
	q.Close() // idempotent

	assert.False(t, q.Enqueue(1), "enqueue after close should return false")
	assert.True(t, q.Closed())
}

func TestFIFO_Len(t *testing.T) {
	q := New[int]()
	assert.Equal(t, 0, q.Len())

	q.Enqueue(1)
	q.Enqueue(2)
	assert.Equal(t, 2, q.Len())

	q.TryDequeue()
	assert.Equal(t, 1, q.Len())
}

func TestFIFO_ThreadSafe(t *testing.T) {
	q := New[int]()

	const producers = 10
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(id*1000 + i)
			}
		}(p)
	}

	received := make(chan int, producers*perProducer)
	go func() {
		for n := 0; n < producers*perProducer; {
			v, ok := q.TryDequeue()
			if !ok {
				time.Sleep(time.Millisecond)
				continue
			}
			received <- v
			n++
		}
		close(received)
	}()

	wg.Wait()

	count := 0
	timeout := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-received:
			if !ok {
				assert.Equal(t, producers*perProducer, count)
				return
			}
			count++
		case <-timeout:
			t.Fatalf("consumer timeout: received %d items", count)
		}
	}
}
