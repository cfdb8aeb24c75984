package updater

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/jose-zothner-meyer/commodity-tracker/internal/provider"
)

// Dispatcher enqueues update work onto the task queue.
type Dispatcher interface {
	EnqueueAllUpdate(ctx context.Context, opts provider.FetchOptions) (string, error)
}

// Scheduler periodically enqueues a source-wide update sweep. It does not
// enforce provider rate limits; those stay advisory metadata on the
// provider record.
type Scheduler struct {
	cron       *cron.Cron
	dispatcher Dispatcher
	schedule   string
	opts       provider.FetchOptions
	logger     *logrus.Entry
}

// NewScheduler creates a scheduler with a cron spec such as "@every 1h".
func NewScheduler(dispatcher Dispatcher, schedule string, opts provider.FetchOptions, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		dispatcher: dispatcher,
		schedule:   schedule,
		opts:       opts,
		logger:     log.WithField("component", "scheduler"),
	}
}

// Start registers the sweep job and starts the cron loop.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		correlationID, err := s.dispatcher.EnqueueAllUpdate(context.Background(), s.opts)
		if err != nil {
			s.logger.WithError(err).Error("Failed to enqueue scheduled update sweep")
			return
		}
		s.logger.WithField("correlation_id", correlationID).Info("Enqueued scheduled update sweep")
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.WithField("schedule", s.schedule).Info("Update scheduler started")
	return nil
}

// Stop stops the cron loop, waiting for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
