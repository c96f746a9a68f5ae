package logfwd

import (
	"github.com/valyala/bytebufferpool"

	"github.com/lixenwraith/logfwd/codec"
)

// fifo is an unbounded first-in first-out queue. Not safe for concurrent use.
type fifo[T any] struct {
	items []T
	head  int
}

func (q *fifo[T]) push(v T) {
	q.items = append(q.items, v)
}

func (q *fifo[T]) pop() (T, bool) {
	var zero T
	if q.head >= len(q.items) {
		return zero, false
	}
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head++

	// Reclaim the consumed prefix once it dominates the backing array
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 32 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return v, true
}

func (q *fifo[T]) len() int {
	return len(q.items) - q.head
}

// drain pops every element in order, passing each to fn
func (q *fifo[T]) drain(fn func(T)) {
	for {
		v, ok := q.pop()
		if !ok {
			return
		}
		fn(v)
	}
}

// stagingQueue holds encoded bodies of records produced off the owner goroutine
type stagingQueue = fifo[*bytebufferpool.ByteBuffer]

// outboundQueue holds framed units awaiting hand-over to the transport
type outboundQueue = fifo[*codec.Unit]
