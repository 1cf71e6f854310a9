package queue

import "sync"

type syncQueue[V any] struct {
	queue Queue[V]
	lock  sync.Mutex
}

// Sync makes q safe for concurrent consumers.
func Sync[V any](q Queue[V]) Queue[V] {
	return &syncQueue[V]{queue: q}
}

func (q *syncQueue[V]) Peek() (V, bool) {
	q.lock.Lock()
	defer q.lock.Unlock()

	return q.queue.Peek()
}

func (q *syncQueue[V]) Pop() (V, bool) {
	q.lock.Lock()
	defer q.lock.Unlock()

	return q.queue.Pop()
}

func (q *syncQueue[V]) Push(values ...V) {
	q.lock.Lock()
	defer q.lock.Unlock()

	q.queue.Push(values...)
}

func (q *syncQueue[V]) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()

	return q.queue.Len()
}

// Drain pops values from q with the given number of workers until it is empty and
// returns once every handler has returned. q must be safe for concurrent use.
func Drain[V any](q Queue[V], workers int, handle func(V)) {
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				value, ok := q.Pop()
				if !ok {
					return
				}
				handle(value)
			}
		}()
	}
	wg.Wait()
}
