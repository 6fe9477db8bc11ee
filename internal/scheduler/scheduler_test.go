package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSchedulerRunsRepeatedly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32
	s := New(nil, Job{Name: "count", Interval: 10 * time.Millisecond, Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}})

	s.Start(ctx)
	waitFor(t, func() bool { return runs.Load() >= 3 })
	cancel()
	s.Wait()
}

func TestSchedulerSurvivesFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var panics, errs, other atomic.Int32
	s := New(nil,
		Job{Name: "panics", Interval: 10 * time.Millisecond, Run: func(context.Context) error {
			panics.Add(1)
			panic("boom")
		}},
		Job{Name: "errors", Interval: 10 * time.Millisecond, Run: func(context.Context) error {
			errs.Add(1)
			return errors.New("store unreachable")
		}},
		Job{Name: "healthy", Interval: 10 * time.Millisecond, Run: func(context.Context) error {
			other.Add(1)
			return nil
		}},
	)

	s.Start(ctx)
	waitFor(t, func() bool { return panics.Load() >= 2 && errs.Load() >= 2 && other.Load() >= 2 })
	cancel()
	s.Wait()
}

func TestSchedulerSkipsOverlappingTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	var active, maxActive, runs atomic.Int32

	s := New(nil, Job{Name: "slow", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		runs.Add(1)
		<-release
		return nil
	}})

	s.Start(ctx)
	waitFor(t, func() bool { return runs.Load() == 1 })
	time.Sleep(50 * time.Millisecond)
	if runs.Load() != 1 {
		t.Errorf("expected overlapping ticks skipped, got %d runs", runs.Load())
	}
	close(release)
	waitFor(t, func() bool { return runs.Load() >= 2 })
	cancel()
	s.Wait()

	if maxActive.Load() != 1 {
		t.Errorf("expected at most one concurrent run, got %d", maxActive.Load())
	}
}

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	acquired int
}

func (l *fakeLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil, false, nil
	}
	l.acquired++
	return func() {}, true, nil
}

func TestSchedulerHonorsLocker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	locker := &fakeLocker{held: true}
	var runs atomic.Int32
	s := New(locker, Job{Name: "locked", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}})

	s.Start(ctx)
	time.Sleep(40 * time.Millisecond)
	if runs.Load() != 0 {
		t.Errorf("expected no runs while locked elsewhere, got %d", runs.Load())
	}

	locker.mu.Lock()
	locker.held = false
	locker.mu.Unlock()
	waitFor(t, func() bool { return runs.Load() >= 1 })
	cancel()
	s.Wait()
}

func TestSchedulerSkipsDisabledJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(nil, Job{Name: "off", Interval: 0, Run: func(context.Context) error {
		t.Error("disabled job ran")
		return nil
	}})
	s.Start(ctx)
	cancel()
	s.Wait()
}
