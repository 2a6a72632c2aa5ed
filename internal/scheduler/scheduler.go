package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/weather-assistant/internal/alerts"
)

const jobTimeout = 2 * time.Minute

// Checker runs one alert check over all active subscriptions.
type Checker interface {
	Check(ctx context.Context) (alerts.CheckResult, error)
}

// Scheduler periodically checks subscribed locations for new weather alerts.
type Scheduler struct {
	scheduler *gocron.Scheduler
	checker   Checker
	interval  time.Duration
	log       logrus.FieldLogger
}

// New creates a new Scheduler.
func New(checker Checker, interval time.Duration, log logrus.FieldLogger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		scheduler: s,
		checker:   checker,
		interval:  interval,
		log:       log.WithField("component", "alert_poller"),
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 15
	}

	// SingletonMode skips a tick while the previous check is still running.
	_, err := s.scheduler.Every(minutes).Minutes().SingletonMode().Do(s.run)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.log.WithField("interval_minutes", minutes).Info("alert poller started")
	return nil
}

// run performs one check; it is the scheduled job body.
func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	started := time.Now()
	res, err := s.checker.Check(ctx)
	if err != nil {
		s.log.WithError(err).Error("alert check failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"locations":     res.Locations,
		"subscriptions": res.Subscriptions,
		"notified":      res.Notified,
		"failed":        res.Failed,
		"duration":      time.Since(started).String(),
	}).Info("alert check completed")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
