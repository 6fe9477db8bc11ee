// Package scheduler runs recurring background jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Job is a named task run every Interval.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Locker makes a tick exclusive across processes. ok is false when another
// holder has the lock; the tick is then skipped.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Scheduler runs each job on its own ticker. A tick is skipped while the
// job's previous run is still going, and a failing or panicking run only
// affects its own tick.
type Scheduler struct {
	jobs   []Job
	locker Locker
	wg     sync.WaitGroup
}

// New returns a scheduler for jobs. locker may be nil.
func New(locker Locker, jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs, locker: locker}
}

// Start runs every job once and then on its interval until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			slog.Warn("job disabled", "job", job.Name)
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
}

// Wait blocks until every job loop and in-flight run has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	var running atomic.Bool
	tick := func() {
		if !running.CompareAndSwap(false, true) {
			slog.Warn("job still running, skipping tick", "job", job.Name)
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer running.Store(false)
			s.runOnce(ctx, job)
		}()
	}

	tick()
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("job panicked", "job", job.Name, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()

	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, "najdeno:job:"+job.Name, job.Interval)
		if err != nil {
			slog.Error("job lock failed", "job", job.Name, "error", err)
			return
		}
		if !ok {
			slog.Debug("job locked elsewhere, skipping tick", "job", job.Name)
			return
		}
		defer release()
	}

	if err := job.Run(ctx); err != nil {
		slog.Error("job failed", "job", job.Name, "error", err, "duration", time.Since(start))
		return
	}
	slog.Debug("job finished", "job", job.Name, "duration", time.Since(start))
}
