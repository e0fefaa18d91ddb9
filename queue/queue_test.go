package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_StrictOrder(t *testing.T) {
	q := New(context.Background(), 1)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, q.Submit(Job{
			TaskID: "t",
			Run: func(ctx context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			},
		}))
	}
	require.NoError(t, q.Drain())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestQueue_ParallelBoundsConcurrency(t *testing.T) {
	const concurrency = 3
	q := New(context.Background(), concurrency)

	var inFlight int32
	var maxSeen int32
	var mu sync.Mutex

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Submit(Job{
			Run: func(ctx context.Context) error {
				n := atomic.AddInt32(&inFlight, 1)
				mu.Lock()
				if n > maxSeen {
					maxSeen = n
				}
				mu.Unlock()
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			},
		}))
	}
	require.NoError(t, q.Drain())
	assert.LessOrEqual(t, maxSeen, int32(concurrency))
}

func TestQueue_DrainStopsNewSubmissions(t *testing.T) {
	q := New(context.Background(), 2)
	var ran int32
	require.NoError(t, q.Submit(Job{Run: func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	}}))
	require.NoError(t, q.Drain())

	require.NoError(t, q.Submit(Job{Run: func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	}}))
	assert.Equal(t, int32(1), ran)
}
