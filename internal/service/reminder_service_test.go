package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"daily-planner/internal/model"
	"daily-planner/internal/repository"
)

func offsets(minutes ...int) []model.ReminderOffset {
	out := make([]model.ReminderOffset, len(minutes))
	for i, m := range minutes {
		out[i] = model.ReminderOffset{OffsetMinutes: m, Type: model.ReminderPush}
	}
	return out
}

func pending(t *testing.T, env *testEnv, taskID string) []model.Reminder {
	t.Helper()
	all, err := env.reminders.ListForTask(context.Background(), taskID)
	require.NoError(t, err)
	var out []model.Reminder
	for _, r := range all {
		if r.Status == model.ReminderScheduled || r.Status == model.ReminderSnoozed {
			out = append(out, r)
		}
	}
	return out
}

func TestScheduleRemindersForTask(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, tuesday)
	svc := env.reminderService(nil)
	today := model.DateOf(tuesday)

	created, err := svc.ScheduleRemindersForTask(ctx, ScheduleRequest{
		UserID:   1,
		TaskID:   "t1",
		TaskName: "Dentist",
		DueDate:  model.DatePtr(today),
		DueTime:  model.StringPtr("12:00"),
		Offsets:  offsets(0, 15, 180),
	})
	require.NoError(t, err)
	require.Len(t, created, 2, "the 09:00 reminder is in the past")

	stored := pending(t, env, "t1")
	require.Len(t, stored, 2)
	assert.True(t, stored[0].ScheduledAt.Equal(time.Date(2025, time.June, 10, 11, 45, 0, 0, time.UTC)))
	assert.Equal(t, 15, stored[0].OffsetMinutes)
	assert.True(t, stored[1].ScheduledAt.Equal(time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)))
	for _, r := range stored {
		assert.Equal(t, model.ReminderScheduled, r.Status)
		assert.Equal(t, "Dentist", r.TaskName)
		assert.Zero(t, r.SnoozeCount)
		assert.Nil(t, r.SnoozedUntil)
		assert.Nil(t, r.SentAt)
	}
}

func TestScheduleRemindersForTask_PastDueDropsEverything(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, tuesday)
	svc := env.reminderService(nil)
	yesterday := model.DateOf(tuesday).AddDays(-1)

	created, err := svc.ScheduleRemindersForTask(ctx, ScheduleRequest{
		UserID:  1,
		TaskID:  "t1",
		DueDate: model.DatePtr(yesterday),
		DueTime: model.StringPtr("10:00"),
		Offsets: offsets(15),
	})
	require.NoError(t, err)
	assert.Empty(t, created)

	all, err := env.reminders.ListForTask(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestScheduleRemindersForTask_ReplacesPreviousSet(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, tuesday)
	svc := env.reminderService(nil)
	req := ScheduleRequest{
		UserID:  1,
		TaskID:  "t1",
		DueDate: model.DatePtr(model.DateOf(tuesday)),
		DueTime: model.StringPtr("12:00"),
		Offsets: offsets(0, 30),
	}
	first, err := svc.ScheduleRemindersForTask(ctx, req)
	require.NoError(t, err)
	require.Len(t, first, 2)

	req.DueTime = model.StringPtr("15:00")
	second, err := svc.ScheduleRemindersForTask(ctx, req)
	require.NoError(t, err)
	require.Len(t, second, 2)

	stored := pending(t, env, "t1")
	require.Len(t, stored, 2)
	for _, r := range stored {
		assert.False(t, r.ScheduledAt.Before(time.Date(2025, time.June, 10, 14, 30, 0, 0, time.UTC)), "stale fire time %s", r.ScheduledAt)
	}
	for _, r := range first {
		got, err := env.reminders.FindByID(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ReminderCancelled, got.Status)
	}

	t.Run("removing the due time cancels everything", func(t *testing.T) {
		req.DueTime = nil
		created, err := svc.ScheduleRemindersForTask(ctx, req)
		require.NoError(t, err)
		assert.Empty(t, created)
		assert.Empty(t, pending(t, env, "t1"))
	})
}

func TestScheduleRemindersForTask_InterruptedReplace(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, tuesday)
	req := ScheduleRequest{
		UserID:  1,
		TaskID:  "t1",
		DueDate: model.DatePtr(model.DateOf(tuesday)),
		DueTime: model.StringPtr("12:00"),
		Offsets: offsets(0),
	}
	_, err := env.reminderService(nil).ScheduleRemindersForTask(ctx, req)
	require.NoError(t, err)

	boom := errors.New("quota exceeded")
	svc := env.reminderService(&failingReminderStore{ReminderStore: env.reminders, createBatchErr: boom})
	req.DueTime = model.StringPtr("13:00")
	_, err = svc.ScheduleRemindersForTask(ctx, req)
	require.ErrorIs(t, err, boom)

	// The cancel step committed, the create step did not.
	assert.Empty(t, pending(t, env, "t1"))
}

func TestScheduleRemindersForTask_Validation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, tuesday)
	svc := env.reminderService(nil)

	_, err := svc.ScheduleRemindersForTask(ctx, ScheduleRequest{TaskID: "t1", DueDate: model.DatePtr(model.DateOf(tuesday)), DueTime: model.StringPtr("25:00"), Offsets: offsets(0)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.ScheduleRemindersForTask(ctx, ScheduleRequest{TaskID: "t1", DueDate: model.DatePtr(model.DateOf(tuesday)), DueTime: model.StringPtr("12:00"), Offsets: offsets(-5)})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func storeReminder(t *testing.T, env *testEnv, r model.Reminder) model.Reminder {
	t.Helper()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.UserID == 0 {
		r.UserID = 1
	}
	if r.TaskID == "" {
		r.TaskID = "t1"
	}
	if r.Type == "" {
		r.Type = model.ReminderPush
	}
	require.NoError(t, env.reminders.CreateBatch(context.Background(), []model.Reminder{r}))
	return r
}

func TestSnooze(t *testing.T) {
	ctx := context.Background()
	local := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2025, time.June, 10, 22, 0, 0, 0, local)

	tests := []struct {
		duration SnoozeDuration
		want     time.Time
	}{
		{SnoozeFifteenMinutes, now.Add(15 * time.Minute)},
		{SnoozeOneHour, now.Add(time.Hour)},
		{SnoozeTomorrow, time.Date(2025, time.June, 11, 9, 0, 0, 0, local)},
	}
	for _, tt := range tests {
		t.Run(string(tt.duration), func(t *testing.T) {
			env := newTestEnv(t, now)
			svc := NewReminderService(env.reminders, zap.NewNop(), WithClock(func() time.Time { return now }), WithLocation(local))
			r := storeReminder(t, env, model.Reminder{ScheduledAt: now.Add(-time.Hour), Status: model.ReminderSent})

			until, err := svc.Snooze(ctx, r.ID, tt.duration)
			require.NoError(t, err)
			assert.True(t, until.Equal(tt.want), "got %s want %s", until, tt.want)

			got, err := env.reminders.FindByID(ctx, r.ID)
			require.NoError(t, err)
			assert.Equal(t, model.ReminderScheduled, got.Status)
			assert.True(t, got.ScheduledAt.Equal(tt.want))
			require.NotNil(t, got.SnoozedUntil)
			assert.True(t, got.SnoozedUntil.Equal(tt.want))
			assert.Zero(t, got.SnoozeCount, "snooze alone does not count")
		})
	}

	t.Run("unknown duration", func(t *testing.T) {
		env := newTestEnv(t, now)
		_, err := env.reminderService(nil).Snooze(ctx, "r", "forever")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestIncrementSnoozeCount(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, tuesday)
	svc := env.reminderService(nil)
	r := storeReminder(t, env, model.Reminder{ScheduledAt: tuesday, Status: model.ReminderSent, SnoozeCount: 2})

	require.NoError(t, svc.IncrementSnoozeCount(ctx, r.ID, r.SnoozeCount))
	got, err := env.reminders.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.SnoozeCount)

	assert.ErrorIs(t, svc.IncrementSnoozeCount(ctx, "missing", 0), repository.ErrNotFound)
}

func TestCanSnooze(t *testing.T) {
	assert.True(t, CanSnooze(model.Reminder{Status: model.ReminderSent, SnoozeCount: 0}))
	assert.True(t, CanSnooze(model.Reminder{Status: model.ReminderScheduled, SnoozeCount: model.MaxSnoozeCount - 1}))
	assert.False(t, CanSnooze(model.Reminder{Status: model.ReminderSent, SnoozeCount: model.MaxSnoozeCount}))
	assert.False(t, CanSnooze(model.Reminder{Status: model.ReminderDismissed}))
	assert.False(t, CanSnooze(model.Reminder{Status: model.ReminderCancelled}))
}

func TestSnoozeWithinLimit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, tuesday)
	svc := env.reminderService(nil)

	t.Run("snoozes and counts", func(t *testing.T) {
		r := storeReminder(t, env, model.Reminder{ScheduledAt: tuesday, Status: model.ReminderSent, SnoozeCount: 4})
		got, err := svc.SnoozeWithinLimit(ctx, 1, r.ID, SnoozeOneHour)
		require.NoError(t, err)
		assert.Equal(t, 5, got.SnoozeCount)
		assert.True(t, got.ScheduledAt.Equal(tuesday.Add(time.Hour)))

		stored, err := env.reminders.FindByID(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, 5, stored.SnoozeCount)
		assert.Equal(t, model.ReminderScheduled, stored.Status)

		_, err = svc.SnoozeWithinLimit(ctx, 1, r.ID, SnoozeOneHour)
		assert.ErrorIs(t, err, ErrSnoozeLimitReached)
	})

	t.Run("limit leaves the reminder untouched", func(t *testing.T) {
		r := storeReminder(t, env, model.Reminder{ScheduledAt: tuesday, Status: model.ReminderSent, SnoozeCount: model.MaxSnoozeCount})
		_, err := svc.SnoozeWithinLimit(ctx, 1, r.ID, SnoozeFifteenMinutes)
		require.ErrorIs(t, err, ErrSnoozeLimitReached)

		stored, err := env.reminders.FindByID(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ReminderSent, stored.Status)
		assert.True(t, stored.ScheduledAt.Equal(tuesday))
	})

	t.Run("other user", func(t *testing.T) {
		r := storeReminder(t, env, model.Reminder{ScheduledAt: tuesday, Status: model.ReminderSent})
		_, err := svc.SnoozeWithinLimit(ctx, 2, r.ID, SnoozeFifteenMinutes)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("dismissed", func(t *testing.T) {
		r := storeReminder(t, env, model.Reminder{ScheduledAt: tuesday, Status: model.ReminderDismissed})
		_, err := svc.SnoozeWithinLimit(ctx, 1, r.ID, SnoozeFifteenMinutes)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestDismissAndCancel(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, tuesday)
	svc := env.reminderService(nil)

	a := storeReminder(t, env, model.Reminder{ScheduledAt: tuesday.Add(time.Hour), Status: model.ReminderScheduled})
	b := storeReminder(t, env, model.Reminder{ScheduledAt: tuesday.Add(time.Hour), Status: model.ReminderSnoozed})
	c := storeReminder(t, env, model.Reminder{ScheduledAt: tuesday, Status: model.ReminderSent})

	require.NoError(t, svc.Dismiss(ctx, c.ID))
	got, err := env.reminders.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReminderDismissed, got.Status)

	n, err := svc.CancelRemindersForTask(ctx, "t1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	for _, id := range []string{a.ID, b.ID} {
		got, err := env.reminders.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.ReminderCancelled, got.Status)
	}

	assert.ErrorIs(t, svc.Dismiss(ctx, "missing"), repository.ErrNotFound)
}

func TestListActiveAndSortForPanel(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, tuesday)
	svc := env.reminderService(nil)

	late := storeReminder(t, env, model.Reminder{ScheduledAt: tuesday.Add(2 * time.Hour), Status: model.ReminderScheduled})
	early := storeReminder(t, env, model.Reminder{ScheduledAt: tuesday.Add(time.Hour), Status: model.ReminderScheduled})
	snoozed := storeReminder(t, env, model.Reminder{ScheduledAt: tuesday.Add(3 * time.Hour), Status: model.ReminderSnoozed})
	sent := storeReminder(t, env, model.Reminder{ScheduledAt: tuesday.Add(5 * time.Hour), Status: model.ReminderSent})
	storeReminder(t, env, model.Reminder{ScheduledAt: tuesday, Status: model.ReminderDismissed})

	got, err := svc.ListActive(ctx, 1)
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, r := range got {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{sent.ID, snoozed.ID, early.ID, late.ID}, ids)
}

func TestPurgeStale(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, tuesday)
	svc := env.reminderService(nil)

	old := tuesday.Add(-10 * 24 * time.Hour)
	stale := storeReminder(t, env, model.Reminder{ScheduledAt: old, Status: model.ReminderCancelled, CreatedAt: old})
	keep := storeReminder(t, env, model.Reminder{ScheduledAt: old, Status: model.ReminderCancelled, CreatedAt: tuesday.Add(-time.Hour)})

	n, err := svc.PurgeStale(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = env.reminders.FindByID(ctx, stale.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = env.reminders.FindByID(ctx, keep.ID)
	assert.NoError(t, err)
}

func TestPendingOffsets(t *testing.T) {
	env := newTestEnv(t, tuesday)
	svc := env.reminderService(nil)
	storeReminder(t, env, model.Reminder{ScheduledAt: tuesday.Add(time.Hour), Status: model.ReminderScheduled, OffsetMinutes: 15})
	storeReminder(t, env, model.Reminder{ScheduledAt: tuesday, Status: model.ReminderSent, OffsetMinutes: 60})

	got, err := svc.PendingOffsets(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, []model.ReminderOffset{{OffsetMinutes: 15, Type: model.ReminderPush}}, got)
}

func TestFormatOffset(t *testing.T) {
	tests := map[int]string{
		0:    "At time of task",
		5:    "5 minutes before",
		60:   "1 hour before",
		1440: "1 day before",
		10:   "10m before",
		90:   "1.5h before",
		120:  "2h before",
		2880: "2d before",
	}
	for minutes, want := range tests {
		assert.Equal(t, want, FormatOffset(minutes), minutes)
	}
}
