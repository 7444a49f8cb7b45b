package orchestration

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestEpochTaskGoesStaleOnAdvance(t *testing.T) {
	counter := &epochCounter{}
	task := counter.NewTask()

	if task.Stale() {
		t.Fatal("expected a fresh task")
	}

	counter.Advance()
	if !task.Stale() {
		t.Fatal("expected the task to go stale after an advance")
	}

	if counter.NewTask().Stale() {
		t.Fatal("expected a task from the new epoch to be fresh")
	}
}

func TestZeroTaskIsStale(t *testing.T) {
	var task epochTask
	if !task.Stale() {
		t.Fatal("expected the zero task to be stale")
	}
}

func TestPollerPollsUntilStopped(t *testing.T) {
	var polls atomic.Int32
	p := startPoller(context.Background(), time.Millisecond, func(context.Context) bool {
		polls.Add(1)
		return true
	})

	waitFor(t, time.Second, func() bool { return polls.Load() >= 3 }, "repeated polls")
	p.Stop()
	p.Stop()

	settled := polls.Load()
	time.Sleep(10 * time.Millisecond)
	if polls.Load() != settled {
		t.Fatal("expected no polls after stop")
	}
}

func TestPollerStopsWhenPollReturnsFalse(t *testing.T) {
	var polls atomic.Int32
	p := startPoller(context.Background(), time.Millisecond, func(context.Context) bool {
		return polls.Add(1) < 2
	})

	waitFor(t, time.Second, func() bool { return polls.Load() == 2 }, "poll to finish itself")
	time.Sleep(10 * time.Millisecond)
	if polls.Load() != 2 {
		t.Fatal("expected the loop to exit once poll returned false")
	}
	p.Stop()
}

func TestPollerHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var polls atomic.Int32
	startPoller(ctx, time.Millisecond, func(context.Context) bool {
		polls.Add(1)
		return true
	})

	waitFor(t, time.Second, func() bool { return polls.Load() >= 1 }, "first poll")
	cancel()

	time.Sleep(5 * time.Millisecond)
	settled := polls.Load()
	time.Sleep(10 * time.Millisecond)
	if polls.Load() != settled {
		t.Fatal("expected no polls after context cancellation")
	}
}
