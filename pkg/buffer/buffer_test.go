package buffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircularBufferBasicOperations(t *testing.T) {
	buf, err := NewCircularBuffer[string](3)
	require.NoError(t, err)
	defer buf.Close()

	assert.Equal(t, 0, buf.Size())
	assert.Equal(t, 3, buf.Capacity())
	assert.True(t, buf.IsEmpty())
	assert.False(t, buf.IsFull())

	require.NoError(t, buf.Write("first"))
	require.NoError(t, buf.Write("second"))

	item, ok := buf.Peek()
	require.True(t, ok)
	assert.Equal(t, "first", item)
	assert.Equal(t, 2, buf.Size())

	item, ok = buf.Read()
	require.True(t, ok)
	assert.Equal(t, "first", item)

	item, ok = buf.Read()
	require.True(t, ok)
	assert.Equal(t, "second", item)

	_, ok = buf.Read()
	assert.False(t, ok)
}

// Drop-oldest is the delivery policy for sink queues: enqueueing six
// frames into a capacity-4 queue must leave the newest four.
func TestDropOldestKeepsNewestItems(t *testing.T) {
	var droppedMu sync.Mutex
	var dropped []int

	buf, err := NewCircularBuffer(4,
		WithOverflowPolicy[int](DropOldest),
		WithDropCallback[int](func(item int) {
			droppedMu.Lock()
			dropped = append(dropped, item)
			droppedMu.Unlock()
		}))
	require.NoError(t, err)
	defer buf.Close()

	for i := 0; i < 6; i++ {
		require.NoError(t, buf.Write(i))
	}

	got := buf.ReadBatch(10)
	assert.Equal(t, []int{2, 3, 4, 5}, got)

	droppedMu.Lock()
	assert.Equal(t, []int{0, 1}, dropped)
	droppedMu.Unlock()

	assert.Equal(t, int64(2), buf.Stats().Drops())
	assert.Equal(t, int64(2), buf.Stats().Overflows())
}

func TestDropNewestRejectsIncoming(t *testing.T) {
	buf, err := NewCircularBuffer(2, WithOverflowPolicy[int](DropNewest))
	require.NoError(t, err)
	defer buf.Close()

	require.NoError(t, buf.Write(1))
	require.NoError(t, buf.Write(2))
	require.NoError(t, buf.Write(3)) // dropped

	got := buf.ReadBatch(10)
	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, int64(1), buf.Stats().Drops())
}

func TestReadBatchPartial(t *testing.T) {
	buf, err := NewCircularBuffer[int](8)
	require.NoError(t, err)
	defer buf.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, buf.Write(i))
	}

	assert.Equal(t, []int{0, 1}, buf.ReadBatch(2))
	assert.Equal(t, []int{2}, buf.ReadBatch(5))
	assert.Nil(t, buf.ReadBatch(5))
}

func TestWrapAround(t *testing.T) {
	buf, err := NewCircularBuffer[int](3)
	require.NoError(t, err)
	defer buf.Close()

	// Cycle items through several times to exercise index wrapping.
	for round := 0; round < 5; round++ {
		for i := 0; i < 3; i++ {
			require.NoError(t, buf.Write(round*10+i))
		}
		got := buf.ReadBatch(3)
		assert.Equal(t, []int{round * 10, round*10 + 1, round*10 + 2}, got)
	}
}

func TestClear(t *testing.T) {
	buf, err := NewCircularBuffer[int](4)
	require.NoError(t, err)
	defer buf.Close()

	require.NoError(t, buf.Write(1))
	require.NoError(t, buf.Write(2))
	buf.Clear()

	assert.True(t, buf.IsEmpty())
	_, ok := buf.Read()
	assert.False(t, ok)
}

func TestWriteAfterCloseFails(t *testing.T) {
	buf, err := NewCircularBuffer[int](2)
	require.NoError(t, err)

	require.NoError(t, buf.Close())
	require.NoError(t, buf.Close()) // idempotent

	err = buf.Write(1)
	require.Error(t, err)
}

func TestConcurrentProducersConsumers(t *testing.T) {
	buf, err := NewCircularBuffer[int](128)
	require.NoError(t, err)
	defer buf.Close()

	const producers = 4
	const perProducer = 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = buf.Write(base + i)
			}
		}(p * perProducer)
	}

	var consumed int64
	var cwg sync.WaitGroup
	done := make(chan struct{})
	var consumedMu sync.Mutex
	for c := 0; c < 2; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for {
				select {
				case <-done:
					// Drain remainder
					for {
						if _, ok := buf.Read(); !ok {
							return
						}
						consumedMu.Lock()
						consumed++
						consumedMu.Unlock()
					}
				default:
					if _, ok := buf.Read(); ok {
						consumedMu.Lock()
						consumed++
						consumedMu.Unlock()
					}
				}
			}
		}()
	}

	wg.Wait()
	close(done)
	cwg.Wait()

	// Consumers fully drained the buffer, so everything written and not
	// dropped was consumed.
	stats := buf.Stats()
	assert.Equal(t, stats.Writes()-stats.Drops(), consumed)
}
