package queue

func NewQueue[V any](values ...V) Queue[V] {
	q := &queue[V]{}
	q.Push(values...)
	return q
}

type queue[V any] struct {
	items []V
	head  int
}

func (q *queue[V]) Peek() (result V, ok bool) {
	if q.head >= len(q.items) {
		return
	}
	return q.items[q.head], true
}

func (q *queue[V]) Pop() (result V, ok bool) {
	if q.head >= len(q.items) {
		return
	}

	var zero V
	result, ok = q.items[q.head], true
	q.items[q.head] = zero
	q.head++

	// reuse the backing array once drained
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return
}

func (q *queue[V]) Push(values ...V) {
	q.items = append(q.items, values...)
}

func (q *queue[V]) Len() int {
	return len(q.items) - q.head
}
