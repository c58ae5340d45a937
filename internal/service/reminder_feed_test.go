package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"daily-planner/internal/model"
)

func TestReminderFeed_Subscribe(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, tuesday)
	reminders := env.reminderService(nil)
	feed := NewReminderFeed(reminders, zap.NewNop(), 10*time.Millisecond)

	a := storeReminder(t, env, model.Reminder{ScheduledAt: tuesday.Add(time.Hour), Status: model.ReminderScheduled})
	b := storeReminder(t, env, model.Reminder{ScheduledAt: tuesday, Status: model.ReminderSent})

	updates := make(chan []model.Reminder, 16)
	cancel := feed.Subscribe(ctx, 1, func(rs []model.Reminder) { updates <- rs })

	next := func() []model.Reminder {
		t.Helper()
		select {
		case rs := <-updates:
			return rs
		case <-time.After(2 * time.Second):
			t.Fatal("no feed update")
			return nil
		}
	}

	first := next()
	require.Len(t, first, 2)
	assert.Equal(t, b.ID, first[0].ID, "sent reminders come first")
	assert.Equal(t, a.ID, first[1].ID)

	require.NoError(t, reminders.Dismiss(ctx, b.ID))
	second := next()
	require.Len(t, second, 1)
	assert.Equal(t, a.ID, second[0].ID)

	cancel()
	// No update is pushed without a change, and none after cancel.
	select {
	case rs := <-updates:
		t.Fatalf("unexpected update %v", rs)
	case <-time.After(50 * time.Millisecond):
	}
}
