package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func block(v float32) Block {
	return Block{Samples: []float32{v, v}, Channels: 2}
}

func TestQueuePreservesArrivalOrder(t *testing.T) {
	q := newBlockQueue(0)
	for i := 0; i < 100; i++ {
		q.Push(block(float32(i)))
	}
	for i := 0; i < 100; i++ {
		b, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, float32(i), b.Samples[0])
	}
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	q := newBlockQueue(3)
	for i := 0; i < 5; i++ {
		q.Push(block(float32(i)))
	}
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, uint64(2), q.Dropped())

	var got []float32
	for {
		b, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, b.Samples[0])
	}
	assert.Equal(t, []float32{2, 3, 4}, got)
}

func TestQueueInterleavedPushPop(t *testing.T) {
	q := newBlockQueue(4)
	next := 0
	for i := 0; i < 50; i++ {
		q.Push(block(float32(i)))
		if i%3 == 0 {
			b, ok := q.Pop()
			require.True(t, ok)
			assert.GreaterOrEqual(t, b.Samples[0], float32(next))
			next = int(b.Samples[0]) + 1
		}
	}
	assert.LessOrEqual(t, q.Len(), 4)
}

func TestQueueDropLogThrottled(t *testing.T) {
	q := newBlockQueue(1)
	now := time.Unix(1000, 0)
	q.now = func() time.Time { return now }

	q.Push(block(0))
	q.Push(block(1))
	first := q.lastLog
	q.Push(block(2))
	assert.Equal(t, first, q.lastLog, "second drop within a second is not logged")

	now = now.Add(2 * time.Second)
	q.Push(block(3))
	assert.Equal(t, now, q.lastLog)
	assert.Equal(t, uint64(3), q.Dropped())
}

func TestQueueReset(t *testing.T) {
	q := newBlockQueue(1)
	q.Push(block(0))
	q.Push(block(1))
	q.Reset()
	assert.Equal(t, 0, q.Len())
	assert.Zero(t, q.Dropped())
}
