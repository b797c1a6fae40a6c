// Package scheduler runs the periodic jobs: distributing idle equipment,
// expiring bans, cleaning up passcodes and reminding overdue holders.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/ppissanetzky/barcode-sub000/internal/joblock"
	"github.com/ppissanetzky/barcode-sub000/internal/metrics"
)

// Job is a unit of periodic work.
type Job struct {
	Name     string
	Interval time.Duration
	// Delay is how long to wait after Start before the first run.
	Delay time.Duration
	Run   func(ctx context.Context) error
}

type entry struct {
	Job
	busy *atomic.Bool
}

// Scheduler runs jobs on their intervals. A job never overlaps with itself,
// and when a lock is set, only one process runs a given slot.
type Scheduler struct {
	lock    *joblock.Lock
	timeout time.Duration
	jobs    []*entry

	running  *atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a scheduler. lock may be nil for a single process. Each run
// gets timeout to finish.
func New(lock *joblock.Lock, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Scheduler{
		lock:    lock,
		timeout: timeout,
		running: atomic.NewBool(false),
		stopCh:  make(chan struct{}),
	}
}

// Add registers a job. It must be called before Start.
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, &entry{Job: job, busy: atomic.NewBool(false)})
}

// Start launches a goroutine per job. Calling it twice is a no-op.
func (s *Scheduler) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	for _, e := range s.jobs {
		s.wg.Add(1)
		go s.loop(e)
	}
	slog.Info("scheduler started", "jobs", len(s.jobs))
}

func (s *Scheduler) loop(e *entry) {
	defer s.wg.Done()

	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-s.stopCh:
			return
		}
	}
	s.runOnce(e)

	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.runOnce(e)
		case <-s.stopCh:
			return
		}
	}
}

// Stop halts all jobs and waits for running ones to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		s.running.Store(false)
		slog.Info("scheduler stopped")
	})
}

// RunNow runs the named job immediately, subject to the same overlap and
// lock rules as a scheduled run.
func (s *Scheduler) RunNow(name string) error {
	for _, e := range s.jobs {
		if e.Name == name {
			return s.runOnce(e)
		}
	}
	return fmt.Errorf("unknown job %q", name)
}

func (s *Scheduler) runOnce(e *entry) error {
	if !e.busy.CompareAndSwap(false, true) {
		slog.Warn("job still running, skipping", "job", e.Name)
		metrics.ObserveJob(e.Name, "skipped", 0)
		return nil
	}
	defer e.busy.Store(false)

	if s.lock != nil {
		ok, err := s.lock.TryAcquire(e.Name)
		if err != nil {
			slog.Error("job lock failed", "job", e.Name, "error", err)
			metrics.ObserveJob(e.Name, "error", 0)
			return err
		}
		if !ok {
			slog.Info("job slot taken by another process", "job", e.Name)
			metrics.ObserveJob(e.Name, "skipped", 0)
			return nil
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	err := run(ctx, e.Job)
	elapsed := time.Since(start)
	if err != nil {
		slog.Error("job failed", "job", e.Name, "duration", elapsed, "error", err)
		metrics.ObserveJob(e.Name, "error", elapsed)
		return err
	}
	slog.Info("job finished", "job", e.Name, "duration", elapsed)
	metrics.ObserveJob(e.Name, "ok", elapsed)
	return nil
}

// run calls the job, turning a panic into an error.
func run(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
	}()
	return job.Run(ctx)
}
