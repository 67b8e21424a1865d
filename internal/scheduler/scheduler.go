// Package scheduler runs periodic jobs until their context is cancelled.
package scheduler

import (
	"context"
	"sync"
	"time"

	"loan-pool-sync/internal/common/logger"
)

// JobFunc is one scheduled run.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	fn       JobFunc
}

type Scheduler struct {
	logger logger.Logger
	jobs   []*job
	wg     sync.WaitGroup
}

func New(log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Scheduler{logger: log.WithFields(map[string]interface{}{"component": "scheduler"})}
}

// Add registers fn to run every interval. Non-positive intervals are ignored.
func (s *Scheduler) Add(name string, interval time.Duration, fn JobFunc) {
	if interval <= 0 {
		s.logger.Warn("Job disabled, interval is not positive", map[string]interface{}{"job": name})
		return
	}
	s.jobs = append(s.jobs, &job{name: name, interval: interval, fn: fn})
}

// Start runs every job once immediately and then on its ticker. Runs of the
// same job never overlap; ticks missed during a slow run are dropped.
func (s *Scheduler) Start(ctx context.Context) {
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
}

// Wait blocks until every loop has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	s.logger.Info("Job scheduled", map[string]interface{}{
		"job":      j.name,
		"interval": j.interval.String(),
	})

	s.run(ctx, j)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx, j)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, j *job) {
	start := time.Now()
	if err := j.fn(ctx); err != nil {
		s.logger.Error("Scheduled job failed", map[string]interface{}{
			"job":        j.name,
			"error":      err.Error(),
			"durationMs": time.Since(start).Milliseconds(),
		})
		return
	}
	s.logger.Debug("Scheduled job finished", map[string]interface{}{
		"job":        j.name,
		"durationMs": time.Since(start).Milliseconds(),
	})
}
