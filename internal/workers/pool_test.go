// Package workers_test provides tests for the worker pool.
package workers_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wealthpath-desktop/wealth-backend/internal/workers"
)

func TestPoolExecutesTasks(t *testing.T) {
	pool := workers.NewPool(zap.NewNop(), &workers.PoolConfig{
		Name:       "test",
		NumWorkers: 4,
		QueueSize:  64,
	})
	pool.Start()
	defer pool.Stop()

	var counter atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		err := pool.SubmitFunc(func() error {
			defer wg.Done()
			counter.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}
	wg.Wait()

	if got := counter.Load(); got != 50 {
		t.Errorf("Executed count incorrect: expected 50, got %d", got)
	}

	stats := pool.Stats()
	if stats.TasksSubmitted != 50 {
		t.Errorf("Submitted count incorrect: expected 50, got %d", stats.TasksSubmitted)
	}
	if stats.TasksFailed != 0 {
		t.Errorf("No tasks should have failed, got %d", stats.TasksFailed)
	}
}

func TestPoolRecoversFromPanic(t *testing.T) {
	pool := workers.NewPool(zap.NewNop(), &workers.PoolConfig{
		Name:       "test",
		NumWorkers: 1,
		QueueSize:  8,
	})
	pool.Start()
	defer pool.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	if err := pool.SubmitFunc(func() error {
		defer wg.Done()
		panic("boom")
	}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	wg.Wait()

	// The worker survives and keeps processing
	done := make(chan struct{})
	if err := pool.SubmitFunc(func() error {
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("Submit after panic failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Worker did not recover after panic")
	}

	stats := pool.Stats()
	if stats.PanicsRecovered != 1 {
		t.Errorf("Panics recovered incorrect: expected 1, got %d", stats.PanicsRecovered)
	}
	if stats.TasksFailed != 1 {
		t.Errorf("Panicked task should count as failed, got %d", stats.TasksFailed)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	pool := workers.NewPool(zap.NewNop(), &workers.PoolConfig{
		Name:       "test",
		NumWorkers: 1,
		QueueSize:  8,
	})
	pool.Start()
	if err := pool.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if pool.IsRunning() {
		t.Error("Pool should not be running after Stop")
	}
	if err := pool.Submit(workers.TaskFunc(func() error { return nil })); err != workers.ErrPoolStopped {
		t.Errorf("Expected ErrPoolStopped, got %v", err)
	}
}

func TestQueueFull(t *testing.T) {
	pool := workers.NewPool(zap.NewNop(), &workers.PoolConfig{
		Name:       "test",
		NumWorkers: 1,
		QueueSize:  1,
	})
	pool.Start()
	defer pool.Stop()

	started := make(chan struct{})
	release := make(chan struct{})

	// Occupy the only worker, then wait until it has actually picked the
	// task up so the queue is observably empty
	if err := pool.SubmitFunc(func() error {
		close(started)
		<-release
		return nil
	}); err != nil {
		t.Fatalf("Submit blocker failed: %v", err)
	}
	<-started

	if err := pool.SubmitFunc(func() error { return nil }); err != nil {
		t.Fatalf("Queue should hold one task: %v", err)
	}
	if err := pool.SubmitFunc(func() error { return nil }); err != workers.ErrQueueFull {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}

	close(release)
}
