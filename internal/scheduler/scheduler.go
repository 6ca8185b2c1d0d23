// Package scheduler drives the two daily operational jobs (C11): the risk
// report and the performance digest. Each job computes its next UTC
// boundary and sleeps rather than polling on a tight ticker, so a slow or
// failing run never drifts the schedule.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Job runs once at its scheduled hour and returns an error on failure; the
// scheduler logs the error and continues the schedule unperturbed.
type Job struct {
	Name string
	Hour int // UTC hour of day, 0-23
	Run  func(ctx context.Context) error
}

// Scheduler owns a set of daily jobs and runs each on its own goroutine.
type Scheduler struct {
	log  zerolog.Logger
	jobs []Job
}

func NewScheduler(logger zerolog.Logger) *Scheduler {
	return &Scheduler{log: logger}
}

// AddJob registers a daily job; Start must be called afterward for it to run.
func (s *Scheduler) AddJob(job Job) { s.jobs = append(s.jobs, job) }

// Start launches every registered job on its own loop and blocks until ctx
// is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		go s.runLoop(ctx, job)
	}
	<-ctx.Done()
}

func (s *Scheduler) runLoop(ctx context.Context, job Job) {
	for {
		wait := nextUTCHourBoundary(time.Now(), job.Hour)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.log.Info().Str("job", job.Name).Msg("scheduled job starting")
		if err := job.Run(ctx); err != nil {
			s.log.Error().Str("job", job.Name).Err(err).Msg("scheduled job failed")
		} else {
			s.log.Info().Str("job", job.Name).Msg("scheduled job completed")
		}
	}
}

// nextUTCHourBoundary returns the duration until the next occurrence of
// hour (UTC, 0-23), today if it hasn't passed yet, else tomorrow.
func nextUTCHourBoundary(now time.Time, hour int) time.Duration {
	u := now.UTC()
	next := time.Date(u.Year(), u.Month(), u.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(u) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(u)
}
