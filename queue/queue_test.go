package queue

import (
	"context"
	"testing"
	"time"

	"github.com/bftcore/bftcore/wire"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Push(2)
	q.Push(3)
	require.Equal(t, 3, q.Len())

	for _, want := range []int{1, 2, 3} {
		v, ok := q.TryPop()
		require.True(t, ok)
		require.Equal(t, want, v)
	}
	_, ok := q.TryPop()
	require.False(t, ok)
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan int, 1)
	go func() {
		v, ok := q.Pop(ctx)
		if ok {
			done <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(42)

	select {
	case v := <-done:
		require.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("Pop did not observe the pushed value")
	}
}

func TestQueuePopRespectsCancellation(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := q.Pop(ctx)
	require.False(t, ok)
}

func TestWorkQueuesExecutionSharding(t *testing.T) {
	wq := NewWorkQueues(4)
	require.Len(t, wq.ExecutionShards(), 4)
	require.Same(t, wq.Execution(5), wq.Execution(9))
	require.NotSame(t, wq.Execution(5), wq.Execution(6))

	env := wire.Envelope{Header: wire.Header{Rtype: wire.RTypeExecute, TxnID: 5}}
	wq.Execution(5).Push(env)
	require.Equal(t, 1, wq.Execution(5).Len())
}
