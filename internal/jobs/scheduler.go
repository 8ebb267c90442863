// Package jobs runs periodic maintenance work on a cron schedule.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/R3E-Network/solver_layer/internal/logging"
	"github.com/R3E-Network/solver_layer/internal/metrics"
)

// Job is a unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Func adapts a function to Job.
type Func struct {
	JobName string
	Fn      func(ctx context.Context) error
}

func (f Func) Name() string                  { return f.JobName }
func (f Func) Run(ctx context.Context) error { return f.Fn(ctx) }

// Scheduler wraps a cron runner. Each run gets its own timeout and is
// recorded in the job metrics.
type Scheduler struct {
	cron    *cron.Cron
	log     *logging.Logger
	timeout time.Duration
}

// NewScheduler creates a stopped scheduler. A run exceeding timeout has its
// context canceled.
func NewScheduler(log *logging.Logger, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cl := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:     log,
		timeout: timeout,
	}
}

// Add schedules job with a standard cron spec or descriptor ("@every 1m").
// An empty spec leaves the job unscheduled.
func (s *Scheduler) Add(spec string, job Job) error {
	if spec == "" {
		s.log.WithField("job", job.Name()).Info("job disabled")
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() { _ = s.RunNow(job) })
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"job": job.Name(), "schedule": spec}).Info("job scheduled")
	return nil
}

// RunNow executes job once, synchronously.
func (s *Scheduler) RunNow(job Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	ctx = logging.WithTraceID(ctx, logging.NewTraceID())

	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)
	metrics.RecordJobRun(job.Name(), elapsed, err == nil)

	entry := s.log.WithContext(ctx).WithFields(logrus.Fields{
		"job":         job.Name(),
		"duration_ms": elapsed.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("job failed")
	} else {
		entry.Debug("job finished")
	}
	return err
}

// Name implements system.Service.
func (s *Scheduler) Name() string { return "jobs" }

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start(context.Context) error {
	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries returns the number of scheduled jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// cronLogger routes cron's own messages to logrus.
type cronLogger struct {
	log *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			f[k] = kv[i+1]
		}
	}
	return f
}
