package dataplane

import (
	"net"
	"sync/atomic"
)

// Packet is one queued datagram: the raw bytes as received, the socket it
// arrived on (for egress/reply-path reuse) and which ingress interface that
// socket represents (§4.4, §4.5 step 1).
type Packet struct {
	Data      []byte
	PeerAddr  *net.UDPAddr
	Conn      *net.UDPConn
	SourceIf  uint8
}

// Queue is the bounded MPMC packet queue of §4.4: a buffered channel gives
// the lock-free, FIFO-across-the-whole-queue semantics the spec calls for;
// the atomic counter exists purely so Size() is observable without racing a
// concurrent Dequeue (len(chan) alone would race a simultaneous receive).
type Queue struct {
	ch       chan Packet
	size     atomic.Int64
	capacity int
}

// NewQueue creates a queue with the given fixed capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch:       make(chan Packet, capacity),
		capacity: capacity,
	}
}

// Enqueue attempts to add p to the queue, returning false if it is full (the
// caller is expected to drop and count the loss — §4.4, §5 backpressure).
func (q *Queue) Enqueue(p Packet) bool {
	select {
	case q.ch <- p:
		q.size.Add(1)
		return true
	default:
		return false
	}
}

// Dequeue returns the next packet, or false if the queue is currently empty.
// Per §5, an empty queue is a polling wait at the caller (1ms sleep), not a
// blocking receive, to keep this path free of a condition variable.
func (q *Queue) Dequeue() (Packet, bool) {
	select {
	case p := <-q.ch:
		q.size.Add(-1)
		return p, true
	default:
		return Packet{}, false
	}
}

// Size reports the current occupancy, never exceeding the configured
// capacity (P6).
func (q *Queue) Size() int {
	return int(q.size.Load())
}

// Capacity returns the fixed capacity Q.
func (q *Queue) Capacity() int {
	return q.capacity
}
