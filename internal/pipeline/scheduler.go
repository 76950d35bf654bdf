package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Passer runs one aggregation pass.
type Passer interface {
	RunPass(ctx context.Context) (PassSummary, error)
}

// Scheduler runs aggregation passes on a cron schedule. A pass that is still
// running when the next one is due causes that tick to be skipped.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context // parent of every pass, cancelled on stop
	cancel context.CancelFunc
	logger *slog.Logger
}

// NewScheduler schedules pass on spec, a standard five-field cron expression
// or an @every descriptor.
func NewScheduler(spec string, pass Passer, logger *slog.Logger) (*Scheduler, error) {
	cl := cronLogger{logger: logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: c, ctx: ctx, cancel: cancel, logger: logger}
	if _, err := c.AddFunc(spec, s.job(pass)); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule aggregation pass %q: %w", spec, err)
	}
	return s, nil
}

// Run starts the schedule and blocks until ctx is cancelled. It then cancels
// a running pass and waits for it to return.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("aggregation scheduler started")
	s.cron.Start()
	<-ctx.Done()
	stopped := s.cron.Stop()
	s.cancel()
	<-stopped.Done()
	s.logger.Info("aggregation scheduler stopped")
	return nil
}

// job adapts pass to a cron func.
func (s *Scheduler) job(pass Passer) func() {
	return func() {
		if _, err := pass.RunPass(s.ctx); err != nil && s.ctx.Err() == nil {
			s.logger.Error("aggregation pass failed", "error", err)
		}
	}
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
