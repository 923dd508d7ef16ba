// Package scheduler keeps the cached views warm on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "campuscal/internal/log"
)

// Refresher rebuilds whatever the schedule keeps warm.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler runs a Refresher on a standard five-field cron spec.
type Scheduler struct {
	spec    string
	r       Refresher
	timeout time.Duration
	cron    *cron.Cron
}

// New validates spec and prepares a scheduler evaluating it in loc. Each
// run is bounded by timeout; zero means one minute.
func New(spec string, loc *time.Location, r Refresher, timeout time.Duration) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.Local
	}
	if timeout <= 0 {
		timeout = time.Minute
	}

	logger := cronLogger{}
	s := &Scheduler{
		spec:    spec,
		r:       r,
		timeout: timeout,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
	return s, nil
}

// RunOnce performs a single refresh.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := s.r.Refresh(ctx)
	if err != nil {
		appLog.Warn("scheduled refresh finished with errors", "err", err, "took", time.Since(start).String())
		return err
	}
	appLog.Debug("scheduled refresh done", "took", time.Since(start).String())
	return nil
}

// Run refreshes once immediately, then on every tick until ctx is done.
// It waits for a running refresh before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	_ = s.RunOnce(ctx)

	if _, err := s.cron.AddFunc(s.spec, func() { _ = s.RunOnce(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	appLog.Info("refresh scheduler started", "schedule", s.spec)

	<-ctx.Done()
	<-s.cron.Stop().Done()
	appLog.Info("refresh scheduler stopped")
	return nil
}

// cronLogger routes cron's own messages to the application log.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
