package sweep

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs a Sweeper on a cron schedule. Overlapping runs are skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler registers sweeper on spec (standard cron syntax or a
// descriptor such as "@every 1m").
func NewScheduler(spec string, sweeper *Sweeper, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl))
	_, err := c.AddFunc(spec, func() {
		report, err := sweeper.Run(context.Background())
		if err != nil {
			logger.Error("deadline sweep failed", "error", err)
			return
		}
		if report.Closed > 0 || report.Reminders > 0 {
			logger.Info("deadline sweep", "closed", report.Closed, "reminded_questions", report.Reminded, "reminders", report.Reminders)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule sweep %q: %w", spec, err)
	}
	return &Scheduler{cron: c, logger: logger}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running pass or ctx, whichever
// finishes first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("deadline sweep still running at shutdown")
	}
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
