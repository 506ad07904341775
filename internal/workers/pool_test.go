package workers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_ProcessesTasks(t *testing.T) {
	pool := NewPool(2, 8, time.Second, nil)

	var mu sync.Mutex
	var processed []uuid.UUID
	done := make(chan struct{}, 3)

	pool.Register(TaskAcceptance, func(ctx context.Context, task Task) {
		mu.Lock()
		processed = append(processed, task.TargetID)
		mu.Unlock()
		done <- struct{}{}
	})
	pool.Start()
	defer pool.Stop()

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		require.NoError(t, pool.Submit(Task{Kind: TaskAcceptance, TargetID: id}))
	}

	for range ids {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for tasks")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, processed, 3)
}

func TestPool_SubmitFailsWhenQueueFull(t *testing.T) {
	// Not started: nothing drains the queue
	pool := NewPool(1, 2, time.Second, nil)
	pool.Register(TaskArtifact, func(ctx context.Context, task Task) {})

	require.NoError(t, pool.Submit(Task{Kind: TaskArtifact}))
	require.NoError(t, pool.Submit(Task{Kind: TaskArtifact}))
	assert.Error(t, pool.Submit(Task{Kind: TaskArtifact}))
}

func TestPool_SubmitFailsAfterStop(t *testing.T) {
	pool := NewPool(1, 2, time.Second, nil)
	pool.Start()
	pool.Stop()

	assert.Error(t, pool.Submit(Task{Kind: TaskAcceptance}))
}

func TestPool_RecoversFromHandlerPanic(t *testing.T) {
	pool := NewPool(1, 4, time.Second, nil)

	done := make(chan struct{}, 1)
	pool.Register(TaskAcceptance, func(ctx context.Context, task Task) {
		if task.Stage == "boom" {
			panic("handler exploded")
		}
		done <- struct{}{}
	})
	pool.Start()
	defer pool.Stop()

	require.NoError(t, pool.Submit(Task{Kind: TaskAcceptance, Stage: "boom"}))
	require.NoError(t, pool.Submit(Task{Kind: TaskAcceptance, Stage: "ok"}))

	select {
	case <-done:
		// The worker survived the panic and processed the next task
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not recover from panic")
	}
}

func TestPool_HandlerContextCarriesTimeout(t *testing.T) {
	pool := NewPool(1, 4, 50*time.Millisecond, nil)

	deadlineSeen := make(chan bool, 1)
	pool.Register(TaskArtifact, func(ctx context.Context, task Task) {
		_, ok := ctx.Deadline()
		deadlineSeen <- ok
	})
	pool.Start()
	defer pool.Stop()

	require.NoError(t, pool.Submit(Task{Kind: TaskArtifact}))
	select {
	case ok := <-deadlineSeen:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
}
