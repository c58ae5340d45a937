package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"daily-planner/internal/metrics"
	"daily-planner/internal/model"
	"daily-planner/internal/notify"
)

const (
	dueBatchLimit = 500

	reminderTitle       = "Reminder"
	defaultReminderBody = "You have a task reminder"
)

// DeliveryConfig tunes a DeliveryChecker.
type DeliveryConfig struct {
	Interval  time.Duration
	CacheSize int
	CacheTTL  time.Duration
}

// CheckResult summarizes one delivery cycle.
type CheckResult struct {
	Due       int
	Delivered int
	Skipped   int
	Failed    int
}

// DeliveryChecker polls for due reminders and hands each one to a channel.
//
// Ids delivered by this instance are remembered in a bounded TTL cache so a
// reminder still seen as scheduled on the next poll is not sent twice. The
// status flip to sent is the durable guard; delivery is at-least-once.
type DeliveryChecker struct {
	reminders ReminderStore
	channel   notify.Channel
	log       *zap.Logger
	interval  time.Duration
	delivered *expirable.LRU[string, struct{}]
	opts      options

	mu        sync.Mutex
	scheduler *SchedulerService
	entryID   cron.EntryID
}

func NewDeliveryChecker(reminders ReminderStore, channel notify.Channel, log *zap.Logger, cfg DeliveryConfig, opts ...Option) *DeliveryChecker {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 4096
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	return &DeliveryChecker{
		reminders: reminders,
		channel:   channel,
		log:       log.Named("delivery"),
		interval:  cfg.Interval,
		delivered: expirable.NewLRU[string, struct{}](cfg.CacheSize, nil, cfg.CacheTTL),
		opts:      newOptions(opts),
	}
}

// CheckOnce delivers every reminder that is due now. A failed delivery is
// logged and retried on a later cycle; it does not stop the others.
func (c *DeliveryChecker) CheckOnce(ctx context.Context) (CheckResult, error) {
	started := time.Now()
	defer func() { metrics.DeliveryCycleDuration.Observe(time.Since(started).Seconds()) }()

	var res CheckResult
	now := c.opts.now()
	due, err := c.reminders.ListDue(ctx, now, dueBatchLimit)
	if err != nil {
		return res, fmt.Errorf("list due reminders: %w", err)
	}
	res.Due = len(due)

	for _, r := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if c.delivered.Contains(r.ID) {
			res.Skipped++
			metrics.RemindersDelivered.WithLabelValues("skipped").Inc()
			continue
		}
		c.delivered.Add(r.ID, struct{}{})

		if err := c.channel.Deliver(ctx, NotificationFor(r)); err != nil {
			c.delivered.Remove(r.ID)
			res.Failed++
			metrics.RemindersDelivered.WithLabelValues("failed").Inc()
			c.log.Warn("deliver reminder failed",
				zap.String("reminder_id", r.ID),
				zap.String("task_id", r.TaskID),
				zap.Error(err),
			)
			continue
		}

		res.Delivered++
		metrics.RemindersDelivered.WithLabelValues("sent").Inc()
		flipped, err := c.reminders.MarkSent(ctx, r.ID, c.opts.now())
		switch {
		case err != nil:
			c.log.Error("mark reminder sent failed", zap.String("reminder_id", r.ID), zap.Error(err))
		case !flipped:
			c.log.Debug("reminder changed while delivering", zap.String("reminder_id", r.ID))
		}
	}

	if res.Due > 0 {
		c.log.Debug("delivery cycle done",
			zap.Int("due", res.Due),
			zap.Int("delivered", res.Delivered),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed),
		)
	}
	return res, nil
}

// NotificationFor builds the notification shown for a reminder.
func NotificationFor(r model.Reminder) notify.Notification {
	body := r.TaskName
	if body == "" {
		body = defaultReminderBody
	}
	return notify.Notification{
		UserID:     r.UserID,
		ReminderID: r.ID,
		TaskID:     r.TaskID,
		Title:      reminderTitle,
		Body:       body,
		Type:       r.Type,
	}
}

// Start registers the checker on scheduler at its interval and runs the first
// check right away. ctx bounds every run.
func (c *DeliveryChecker) Start(ctx context.Context, scheduler *SchedulerService) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scheduler != nil {
		return errors.New("delivery checker already started")
	}

	id, err := scheduler.ScheduleInterval(c.interval, func() {
		runCtx, cancel := context.WithTimeout(ctx, c.interval)
		defer cancel()
		if _, err := c.CheckOnce(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Error("delivery cycle failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule delivery checker: %w", err)
	}
	c.scheduler, c.entryID = scheduler, id
	scheduler.RunNow(id)
	c.log.Info("delivery checker started", zap.Duration("interval", c.interval))
	return nil
}

// Stop unregisters the checker and forgets delivered ids.
func (c *DeliveryChecker) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scheduler == nil {
		return
	}
	c.scheduler.Remove(c.entryID)
	c.scheduler, c.entryID = nil, 0
	c.delivered.Purge()
}
