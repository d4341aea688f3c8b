// Package scheduler runs the periodic batch jobs: graduation, overdue sweep and pending
// payment re-verification.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"campuspay/internal/metrics"
)

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func New() *Scheduler {
	logger := cron.PrintfLogger(log.New(os.Stdout, "cron: ", log.LstdFlags))
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(time.UTC),
			cron.WithLogger(logger),
			// A run that outlives its interval is never started twice.
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register schedules job under spec. Each run gets its own timeout.
func (s *Scheduler) Register(name, spec string, timeout time.Duration, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()
		_ = Run(ctx, name, job)
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	log.Printf("Scheduler: registered %s at %q", name, spec)
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Println("Scheduler: started")
}

// Stop prevents new runs, cancels running ones and waits for them until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		log.Println("Scheduler: stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Run executes job once with logging and metrics. Scheduled and manual runs share it.
func Run(ctx context.Context, name string, job Job) error {
	start := time.Now()
	log.Printf("Scheduler: running job %s", name)

	err := job(ctx)

	metrics.JobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.JobRunsTotal.WithLabelValues(name, "error").Inc()
		log.Printf("Scheduler: job %s failed after %s: %v", name, time.Since(start).Round(time.Millisecond), err)
		return err
	}
	metrics.JobRunsTotal.WithLabelValues(name, "success").Inc()
	log.Printf("Scheduler: job %s finished in %s", name, time.Since(start).Round(time.Millisecond))
	return nil
}
