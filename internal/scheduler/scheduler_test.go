package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_FirstTickImmediate(t *testing.T) {
	var runs atomic.Int32
	started := make(chan struct{}, 1)
	s := New(time.Hour, func(context.Context) error {
		runs.Add(1)
		select {
		case started <- struct{}{}:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first tick did not run immediately")
	}
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), runs.Load())
}

func TestTrigger_SkipsOverlap(t *testing.T) {
	release := make(chan struct{})
	var runs atomic.Int32
	s := New(time.Hour, func(context.Context) error {
		runs.Add(1)
		<-release
		return nil
	})

	require.True(t, s.Trigger(context.Background()))
	assert.False(t, s.Trigger(context.Background()), "second trigger should be skipped while the first runs")

	close(release)
	s.Wait()
	assert.Equal(t, int32(1), runs.Load())

	// Guard is released once the run finishes.
	release = make(chan struct{})
	close(release)
	assert.True(t, s.Trigger(context.Background()))
	s.Wait()
}

func TestRun_WaitsForInFlightTick(t *testing.T) {
	entered := make(chan struct{})
	var finished atomic.Bool
	s := New(time.Hour, func(ctx context.Context) error {
		close(entered)
		time.Sleep(100 * time.Millisecond)
		// Shutdown must not cancel the job context.
		if ctx.Err() == nil {
			finished.Store(true)
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-entered
	cancel()
	require.NoError(t, <-done)
	assert.True(t, finished.Load(), "Run returned before the in-flight tick completed")
}

func TestRun_TicksOnInterval(t *testing.T) {
	var runs atomic.Int32
	s := New(20*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return errors.New("errors are logged, not fatal")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}

func TestTrigger_RecoversPanic(t *testing.T) {
	s := New(time.Hour, func(context.Context) error { panic("boom") })
	require.True(t, s.Trigger(context.Background()))
	s.Wait()
	assert.True(t, s.Trigger(context.Background()), "guard must be released after a panic")
	s.Wait()
}

func TestNew_DefaultInterval(t *testing.T) {
	assert.Equal(t, DefaultInterval, New(0, nil).Interval())
}
