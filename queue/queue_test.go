package queue

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue(1, 2)
	q.Push(3)

	require.Equal(t, 3, q.Len())
	head, ok := q.Peek()
	require.True(t, ok)
	require.Equal(t, 1, head)

	for _, expected := range []int{1, 2, 3} {
		value, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, expected, value)
	}

	value, ok := q.Pop()
	require.False(t, ok)
	require.Zero(t, value)
	require.Zero(t, q.Len())

	_, ok = q.Peek()
	require.False(t, ok)
}

func TestQueue_PushAfterDrain(t *testing.T) {
	q := NewQueue("a")
	_, _ = q.Pop()
	q.Push("b", "c")

	value, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, "b", value)
	require.Equal(t, 1, q.Len())
}

func TestDrain(t *testing.T) {
	values := make([]int, 1000)
	for i := range values {
		values[i] = i
	}
	q := Sync(NewQueue(values...))

	var lock sync.Mutex
	seen := make(map[int]bool, len(values))
	Drain(q, 8, func(value int) {
		lock.Lock()
		defer lock.Unlock()
		seen[value] = true
	})

	require.Len(t, seen, len(values))
	require.Zero(t, q.Len())
}

func TestDrain_SingleWorkerKeepsOrder(t *testing.T) {
	q := Sync(NewQueue("stable", "beta", "nightly"))

	var order []string
	Drain(q, 0, func(value string) {
		order = append(order, value)
	})

	require.Equal(t, []string{"stable", "beta", "nightly"}, order)
}

func TestDrain_BoundedConcurrency(t *testing.T) {
	q := Sync(NewQueue(1, 2, 3, 4, 5, 6))

	var active, peak atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{}, 6)

	done := make(chan struct{})
	go func() {
		defer close(done)
		Drain(q, 2, func(int) {
			current := active.Add(1)
			for {
				old := peak.Load()
				if current <= old || peak.CompareAndSwap(old, current) {
					break
				}
			}
			started <- struct{}{}
			<-release
			active.Add(-1)
		})
	}()

	<-started
	<-started
	close(release)
	<-done

	require.Equal(t, int32(2), peak.Load())
}
