package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/empower1/consensusd/internal/consensuserr"
	"github.com/empower1/consensusd/internal/logging"
)

func TestExecutorRunsTasksInSubmissionOrder(t *testing.T) {
	e := New("test", 8, logging.Nop())
	require.NoError(t, e.Start())
	t.Cleanup(func() { _ = e.Stop() })

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, e.Submit(func(ctx context.Context) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		}))
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestExecutorSubmitAfterStopFails(t *testing.T) {
	e := New("test", 1, logging.Nop())
	require.NoError(t, e.Start())
	require.NoError(t, e.Stop())

	err := e.Submit(func(context.Context) {})
	require.ErrorIs(t, err, consensuserr.ErrNotRunning)
}

func TestExecutorStartTwiceFails(t *testing.T) {
	e := New("test", 1, logging.Nop())
	require.NoError(t, e.Start())
	t.Cleanup(func() { _ = e.Stop() })

	require.ErrorIs(t, e.Start(), consensuserr.ErrAlreadyRunning)
}

func TestExecutorStopWaitsForInFlightTask(t *testing.T) {
	e := New("test", 1, logging.Nop())
	require.NoError(t, e.Start())

	started := make(chan struct{})
	finished := false
	require.NoError(t, e.Submit(func(ctx context.Context) {
		close(started)
		time.Sleep(20 * time.Millisecond)
		finished = true
	}))
	<-started

	require.NoError(t, e.Stop())
	require.True(t, finished)
}

func TestExecutorStopTwiceFails(t *testing.T) {
	e := New("test", 1, logging.Nop())
	require.NoError(t, e.Start())
	require.NoError(t, e.Stop())
	require.ErrorIs(t, e.Stop(), consensuserr.ErrNotRunning)
}
