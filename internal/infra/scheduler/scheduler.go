package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scanner runs one pass over all channels.
type Scanner interface {
	ScanChannels(ctx context.Context, now time.Time) error
}

// TickScheduler triggers a channel scan every tick. A tick that arrives while the
// previous scan is still running is skipped. Scans carry no deadline of their own;
// Stop waits for a running one to finish.
type TickScheduler struct {
	cronEngine *cron.Cron
	scanner    Scanner
	logger     *logrus.Entry
	interval   time.Duration
	now        func() time.Time
}

func NewTickScheduler(scanner Scanner, interval time.Duration, logger *logrus.Entry) *TickScheduler {
	return &TickScheduler{
		cronEngine: cron.New(
			cron.WithLocation(time.Local), // Use server's local time for cron
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger))),
		),
		scanner:  scanner,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

func (s *TickScheduler) Start() error {
	s.logger.WithField("interval", s.interval.String()).Info("Starting channel scan scheduler...")

	if _, err := s.cronEngine.AddFunc(fmt.Sprintf("@every %s", s.interval), s.tick); err != nil {
		return fmt.Errorf("could not add scan job: %w", err)
	}

	s.cronEngine.Start()
	s.logger.Info("Channel scan scheduler started.")
	return nil
}

func (s *TickScheduler) tick() {
	now := s.now()
	s.logger.WithField("tick", now.Format(time.RFC3339)).Debug("Scanning channels")
	if err := s.scanner.ScanChannels(context.Background(), now); err != nil {
		s.logger.WithError(err).Error("Channel scan failed")
	}
}

func (s *TickScheduler) Stop() {
	s.logger.Info("Stopping channel scan scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Channel scan scheduler gracefully stopped.")
}
