package queue

// Queue is a FIFO of pending work.
type Queue[V any] interface {
	// Peek returns the head without removing it.
	Peek() (value V, ok bool)
	// Pop removes and returns the head. ok is false if the queue was empty.
	Pop() (value V, ok bool)
	Push(values ...V)
	Len() int
}
