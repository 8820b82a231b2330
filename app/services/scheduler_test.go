package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (s *countingSweeper) SweepIdleSessions(context.Context, time.Duration) (int, error) {
	s.calls.Add(1)
	return 1, s.err
}

func TestSchedulerSweepsUntilCancelled(t *testing.T) {
	t.Parallel()
	sweeper := &countingSweeper{err: errors.New("db down")}
	ctx, cancel := context.WithCancel(context.Background())

	done := StartScheduler(ctx, sweeper, time.Millisecond, time.Hour)
	deadline := time.After(time.Second)
	for sweeper.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected repeated sweeps despite errors, got %d", sweeper.calls.Load())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSchedulerDisabled(t *testing.T) {
	t.Parallel()
	sweeper := &countingSweeper{}
	done := StartScheduler(context.Background(), sweeper, 0, time.Hour)
	<-done
	if sweeper.calls.Load() != 0 {
		t.Fatalf("disabled scheduler swept %d times", sweeper.calls.Load())
	}
}
