package workers

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ReminderDeliverer pushes the reminders due on a given date to their users
type ReminderDeliverer interface {
	DeliverDueReminders(ctx context.Context, date time.Time) (int, error)
}

// Runner manages periodic background jobs. Currently a single daily job that
// derives and delivers stage reminders.
type Runner struct {
	deliverer ReminderDeliverer
	interval  time.Duration
	logger    *logrus.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
	ticker *time.Ticker
}

// NewRunner creates a background runner delivering reminders every interval
func NewRunner(deliverer ReminderDeliverer, interval time.Duration, logger *logrus.Logger) *Runner {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Runner{
		deliverer: deliverer,
		interval:  interval,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the background job processing
func (r *Runner) Start() {
	r.ticker = time.NewTicker(r.interval)
	r.wg.Add(1)
	go r.runReminderJob()
	r.logger.WithField("interval", r.interval).Info("Background runner started")
}

// Stop gracefully stops all background jobs
func (r *Runner) Stop() {
	close(r.stopCh)
	if r.ticker != nil {
		r.ticker.Stop()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Background runner stopped")
	case <-time.After(30 * time.Second):
		r.logger.Warn("Background runner stop timeout")
	}
}

func (r *Runner) runReminderJob() {
	defer r.wg.Done()

	// Run once on start to catch reminders missed while the service was down
	r.executeReminders()

	for {
		select {
		case <-r.stopCh:
			return
		case <-r.ticker.C:
			r.executeReminders()
		}
	}
}

func (r *Runner) executeReminders() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	sent, err := r.deliverer.DeliverDueReminders(ctx, time.Now())
	if err != nil {
		r.logger.WithError(err).Error("Reminder delivery job failed")
		return
	}
	if sent > 0 {
		r.logger.WithField("sent", sent).Info("Reminder delivery job completed")
	}
}
