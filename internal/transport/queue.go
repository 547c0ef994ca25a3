package transport

import "github.com/danmuck/simmodem/internal/observability"

const DefaultQueueCapacity = 1024

// Queue is a bounded FIFO of raw packets. Push and Pop never block.
// Any number of goroutines may Push; one goroutine Pops.
type Queue struct {
	name string
	ch   chan []byte
}

func NewQueue(name string, capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{name: name, ch: make(chan []byte, capacity)}
}

// Push enqueues b and reports false when the queue is full.
func (q *Queue) Push(b []byte) bool {
	select {
	case q.ch <- b:
		return true
	default:
		observability.RecordQueueDrop(q.name)
		return false
	}
}

// Pop dequeues the oldest packet, if any.
func (q *Queue) Pop() ([]byte, bool) {
	select {
	case b := <-q.ch:
		return b, true
	default:
		return nil, false
	}
}

func (q *Queue) Len() int {
	return len(q.ch)
}

func (q *Queue) Cap() int {
	return cap(q.ch)
}
