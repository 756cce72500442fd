package dataplane

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// S6 / P6 — queue overflow.
func TestQueueOverflowReturnsFalseAndCapsSize(t *testing.T) {
	q := NewQueue(16)

	for i := 0; i < 16; i++ {
		require.True(t, q.Enqueue(Packet{Data: []byte{byte(i)}}))
	}
	for i := 0; i < 10; i++ {
		require.False(t, q.Enqueue(Packet{Data: []byte{0xff}}), "queue must reject once full")
	}
	require.Equal(t, 16, q.Size())
}

func TestQueueFIFOOrder(t *testing.T) {
	q := NewQueue(4)
	require.True(t, q.Enqueue(Packet{Data: []byte{1}}))
	require.True(t, q.Enqueue(Packet{Data: []byte{2}}))
	require.True(t, q.Enqueue(Packet{Data: []byte{3}}))

	p1, ok := q.Dequeue()
	require.True(t, ok)
	require.Equal(t, byte(1), p1.Data[0])

	p2, ok := q.Dequeue()
	require.True(t, ok)
	require.Equal(t, byte(2), p2.Data[0])
}

func TestQueueDequeueEmptyReturnsFalse(t *testing.T) {
	q := NewQueue(4)
	_, ok := q.Dequeue()
	require.False(t, ok)
}

func TestQueueSizeTracksEnqueueDequeue(t *testing.T) {
	q := NewQueue(4)
	require.Equal(t, 0, q.Size())
	q.Enqueue(Packet{Data: []byte{1}})
	q.Enqueue(Packet{Data: []byte{2}})
	require.Equal(t, 2, q.Size())
	q.Dequeue()
	require.Equal(t, 1, q.Size())
}
