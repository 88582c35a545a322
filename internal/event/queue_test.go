package event

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(64)
	base := time.Now()

	for i := 0; i < 10; i++ {
		q.Push(KeyEvent{Timestamp: base.Add(time.Duration(i) * time.Millisecond), KeyCode: uint16(i)})
	}

	for i := 0; i < 10; i++ {
		ev, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, uint16(i), ev.KeyCode)
	}

	_, ok := q.Pop()
	assert.False(t, ok, "queue should be empty")
}

func TestQueueCapacityFloor(t *testing.T) {
	q := NewQueue(4)
	assert.Equal(t, MinQueueCapacity, q.Cap())
}

func TestQueueOverflowDropsOldest(t *testing.T) {
	// Capacity 64, push 65: exactly one dropped and the retained events
	// are the most recent 64.
	q := NewQueue(64)
	for i := 0; i < 65; i++ {
		q.Push(KeyEvent{KeyCode: uint16(i)})
	}

	assert.Equal(t, uint64(1), q.Dropped())
	assert.Equal(t, 64, q.Len())

	ev, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, uint16(1), ev.KeyCode, "oldest event should have been dropped")

	// Drain the rest and check the newest survived.
	var last KeyEvent
	for {
		e, ok := q.Pop()
		if !ok {
			break
		}
		last = e
	}
	assert.Equal(t, uint16(64), last.KeyCode)
}

func TestQueueDrain(t *testing.T) {
	q := NewQueue(64)
	for i := 0; i < 7; i++ {
		q.Push(KeyEvent{KeyCode: uint16(i)})
	}

	assert.Equal(t, 7, q.Drain())
	assert.Equal(t, 0, q.Len())
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestQueueWaitSignals(t *testing.T) {
	q := NewQueue(64)

	done := make(chan KeyEvent, 1)
	go func() {
		<-q.Wait()
		ev, _ := q.Pop()
		done <- ev
	}()

	q.Push(KeyEvent{KeyCode: 42})

	select {
	case ev := <-done:
		assert.Equal(t, uint16(42), ev.KeyCode)
	case <-time.After(time.Second):
		t.Fatal("consumer was not woken")
	}
}

func TestQueueConcurrentProducer(t *testing.T) {
	q := NewQueue(1024)
	var wg sync.WaitGroup

	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				q.Push(KeyEvent{})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 800, q.Len())
	assert.Equal(t, uint64(0), q.Dropped())
}
