package pipeline

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultRunRetryDelay is how long a transiently failed scheduled run waits
// before its single retry.
const DefaultRunRetryDelay = 5 * time.Minute

// Clock abstracts time for the scheduler so tests can drive it
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Scheduler fires pipeline runs on a fixed interval. At most one run executes
// at a time: a trigger that arrives while a run is in flight is dropped, not
// queued. A scheduled run that fails transiently gets exactly one delayed
// retry; the retry itself never reschedules.
type Scheduler struct {
	runner     *Runner
	interval   time.Duration
	retryDelay time.Duration
	clock      Clock
	sem        *semaphore.Weighted
}

// NewScheduler builds a scheduler around a runner
func NewScheduler(runner *Runner, interval time.Duration) *Scheduler {
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		retryDelay: DefaultRunRetryDelay,
		clock:      systemClock{},
		sem:        semaphore.NewWeighted(1),
	}
}

// Start blocks, running the pipeline every interval until ctx is cancelled.
// The first run fires after one full interval, not immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	log.Printf("[SCHEDULER] Started, interval %s", s.interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[SCHEDULER] Stopped: %v", ctx.Err())
			return ctx.Err()
		case <-s.clock.After(s.interval):
			s.RunScheduled(ctx)
		}
	}
}

// RunScheduled executes one scheduled run. It never returns an error and
// never panics: failures are logged, and a transient failure arms the single
// delayed retry in the background.
func (s *Scheduler) RunScheduled(ctx context.Context) {
	if !s.sem.TryAcquire(1) {
		log.Printf("[SCHEDULER] Run already in progress, skipping trigger")
		return
	}

	result := s.runner.Run(ctx)
	s.sem.Release(1)

	if result.Success || !result.Transient {
		return
	}

	log.Printf("[SCHEDULER] Transient failure, retrying once in %s", s.retryDelay)
	go s.retryAfterDelay(ctx)
}

// retryAfterDelay waits out the retry delay and runs once more. The retry
// does not arm another retry regardless of how it ends.
func (s *Scheduler) retryAfterDelay(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-s.clock.After(s.retryDelay):
	}

	if !s.sem.TryAcquire(1) {
		log.Printf("[SCHEDULER] Run in progress at retry time, dropping retry")
		return
	}
	defer s.sem.Release(1)

	result := s.runner.Run(ctx)
	if !result.Success {
		log.Printf("[SCHEDULER] Retry run also failed: %s", result.Message)
	}
}

// RunNow executes a manual trigger synchronously and returns its result.
// A trigger racing an in-flight run is rejected with a result, not an error.
func (s *Scheduler) RunNow(ctx context.Context) *RunResult {
	if !s.sem.TryAcquire(1) {
		return &RunResult{Success: false, Message: "a run is already in progress"}
	}
	defer s.sem.Release(1)
	return s.runner.Run(ctx)
}
