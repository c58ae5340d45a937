package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"daily-planner/internal/model"
)

// ReminderFeed pushes a user's active reminders to subscribers whenever the
// set changes. The store has no change notifications, so each subscription
// polls.
type ReminderFeed struct {
	reminders *ReminderService
	log       *zap.Logger
	interval  time.Duration
}

func NewReminderFeed(reminders *ReminderService, log *zap.Logger, interval time.Duration) *ReminderFeed {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ReminderFeed{reminders: reminders, log: log.Named("feed"), interval: interval}
}

// Subscribe calls fn with the current panel list and again after every
// change, until ctx is done or the returned cancel is called. fn runs on the
// feed's goroutine.
func (f *ReminderFeed) Subscribe(ctx context.Context, userID uint, fn func([]model.Reminder)) (cancel func()) {
	ctx, stop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.run(ctx, userID, fn)
	}()
	return func() {
		stop()
		wg.Wait()
	}
}

func (f *ReminderFeed) run(ctx context.Context, userID uint, fn func([]model.Reminder)) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	var last []model.Reminder
	first := true
	for {
		current, err := f.reminders.ListActive(ctx, userID)
		switch {
		case err != nil:
			if ctx.Err() == nil {
				f.log.Warn("load active reminders failed", zap.Uint("user_id", userID), zap.Error(err))
			}
		case first || !sameReminders(last, current):
			first = false
			last = current
			fn(slices.Clone(current))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sameReminders(a, b []model.Reminder) bool {
	return slices.EqualFunc(a, b, func(x, y model.Reminder) bool {
		return x.ID == y.ID &&
			x.Status == y.Status &&
			x.SnoozeCount == y.SnoozeCount &&
			x.ScheduledAt.Equal(y.ScheduledAt)
	})
}
