package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"daily-planner/internal/metrics"
	"daily-planner/internal/model"
	"daily-planner/internal/repository"
)

// SnoozeDuration is a user-facing snooze choice.
type SnoozeDuration string

const (
	SnoozeFifteenMinutes SnoozeDuration = "fifteen_min"
	SnoozeOneHour        SnoozeDuration = "one_hour"
	SnoozeTomorrow       SnoozeDuration = "tomorrow"
)

const (
	snoozeTomorrowHour = 9
	purgeBatchSize     = 500
)

// ErrSnoozeLimitReached is returned when a reminder was snoozed MaxSnoozeCount times.
var ErrSnoozeLimitReached = errors.New("snooze limit reached")

// ActiveReminderStatuses are the statuses shown in the reminder panel.
var ActiveReminderStatuses = []model.ReminderStatus{model.ReminderScheduled, model.ReminderSnoozed, model.ReminderSent}

// ScheduleRequest describes the reminder set wanted for one occurrence.
type ScheduleRequest struct {
	UserID   uint
	TaskID   string
	TaskName string
	DueDate  *model.Date
	DueTime  *string
	Offsets  []model.ReminderOffset
}

// ReminderService schedules reminders and applies user actions to them.
type ReminderService struct {
	reminders ReminderStore
	log       *zap.Logger
	opts      options
}

func NewReminderService(reminders ReminderStore, log *zap.Logger, opts ...Option) *ReminderService {
	return &ReminderService{
		reminders: reminders,
		log:       log.Named("reminder"),
		opts:      newOptions(opts),
	}
}

// ScheduleRemindersForTask replaces the reminder set of a task.
//
// Pending reminders of the task are cancelled first. New reminders are only
// created when the request has a due date, a due time and offsets; offsets
// whose fire time is not in the future are dropped. The created reminders are
// written as one batch. If that write fails the task is left with no pending
// reminders.
func (s *ReminderService) ScheduleRemindersForTask(ctx context.Context, req ScheduleRequest) ([]model.Reminder, error) {
	for _, o := range req.Offsets {
		if o.OffsetMinutes < 0 {
			return nil, fmt.Errorf("%w: negative reminder offset %d", ErrInvalidInput, o.OffsetMinutes)
		}
	}
	var hour, minute int
	if req.DueTime != nil {
		var err error
		if hour, minute, err = model.ParseClock(*req.DueTime); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}

	if _, err := s.CancelRemindersForTask(ctx, req.TaskID); err != nil {
		return nil, err
	}
	if len(req.Offsets) == 0 || req.DueDate == nil || req.DueTime == nil {
		return nil, nil
	}

	due := req.DueDate.At(hour, minute, s.opts.loc)
	now := s.opts.now()
	reminders := make([]model.Reminder, 0, len(req.Offsets))
	for _, o := range req.Offsets {
		fireAt := due.Add(-time.Duration(o.OffsetMinutes) * time.Minute)
		if !fireAt.After(now) {
			metrics.RemindersScheduled.WithLabelValues("dropped_past").Inc()
			s.log.Debug("reminder in the past dropped",
				zap.String("task_id", req.TaskID),
				zap.Int("offset_minutes", o.OffsetMinutes),
				zap.Time("fire_at", fireAt),
			)
			continue
		}
		typ := o.Type
		if typ == "" {
			typ = model.ReminderPush
		}
		reminders = append(reminders, model.Reminder{
			ID:            uuid.NewString(),
			UserID:        req.UserID,
			TaskID:        req.TaskID,
			TaskName:      req.TaskName,
			ScheduledAt:   fireAt,
			OffsetMinutes: o.OffsetMinutes,
			Status:        model.ReminderScheduled,
			Type:          typ,
		})
	}
	if len(reminders) == 0 {
		return nil, nil
	}

	if err := s.reminders.CreateBatch(ctx, reminders); err != nil {
		return nil, fmt.Errorf("schedule reminders for task %s: %w", req.TaskID, err)
	}
	metrics.RemindersScheduled.WithLabelValues("created").Add(float64(len(reminders)))
	return reminders, nil
}

// CancelRemindersForTask cancels every scheduled or snoozed reminder of the task.
func (s *ReminderService) CancelRemindersForTask(ctx context.Context, taskID string) (int64, error) {
	n, err := s.reminders.CancelForTask(ctx, taskID)
	if err != nil {
		return 0, fmt.Errorf("cancel reminders for task %s: %w", taskID, err)
	}
	metrics.ReminderTransitions.WithLabelValues(string(model.ReminderCancelled)).Add(float64(n))
	return n, nil
}

// CancelRemindersForTasks is CancelRemindersForTask for several tasks in one batch.
func (s *ReminderService) CancelRemindersForTasks(ctx context.Context, taskIDs []string) (int64, error) {
	if len(taskIDs) == 0 {
		return 0, nil
	}
	n, err := s.reminders.CancelForTasks(ctx, taskIDs)
	if err != nil {
		return 0, fmt.Errorf("cancel reminders: %w", err)
	}
	metrics.ReminderTransitions.WithLabelValues(string(model.ReminderCancelled)).Add(float64(n))
	return n, nil
}

// Snooze puts the reminder back to scheduled at the instant chosen by
// duration and returns that instant. It does not check the snooze bound;
// callers use CanSnooze first, or SnoozeWithinLimit.
func (s *ReminderService) Snooze(ctx context.Context, reminderID string, duration SnoozeDuration) (time.Time, error) {
	until, err := s.snoozeUntil(duration)
	if err != nil {
		return time.Time{}, err
	}
	if err := s.reminders.Reschedule(ctx, reminderID, until); err != nil {
		return time.Time{}, fmt.Errorf("snooze reminder %s: %w", reminderID, err)
	}
	metrics.ReminderTransitions.WithLabelValues(string(model.ReminderSnoozed)).Inc()
	return until, nil
}

func (s *ReminderService) snoozeUntil(duration SnoozeDuration) (time.Time, error) {
	now := s.opts.now()
	switch duration {
	case SnoozeFifteenMinutes:
		return now.Add(15 * time.Minute), nil
	case SnoozeOneHour:
		return now.Add(time.Hour), nil
	case SnoozeTomorrow:
		return model.Today(now, s.opts.loc).AddDays(1).At(snoozeTomorrowHour, 0, s.opts.loc), nil
	default:
		return time.Time{}, fmt.Errorf("%w: snooze duration %q", ErrInvalidInput, duration)
	}
}

// IncrementSnoozeCount stores current+1 as the snooze count. current is the
// count the caller loaded; the write is not an atomic increment.
func (s *ReminderService) IncrementSnoozeCount(ctx context.Context, reminderID string, current int) error {
	if err := s.reminders.SetSnoozeCount(ctx, reminderID, current+1); err != nil {
		return fmt.Errorf("increment snooze count of %s: %w", reminderID, err)
	}
	return nil
}

// CanSnooze reports whether the reminder may be snoozed once more.
func CanSnooze(r model.Reminder) bool {
	return !r.Status.Terminal() && r.SnoozeCount < model.MaxSnoozeCount
}

// SnoozeWithinLimit loads a reminder owned by userID, enforces the snooze
// bound, snoozes it and bumps its count.
func (s *ReminderService) SnoozeWithinLimit(ctx context.Context, userID uint, reminderID string, duration SnoozeDuration) (*model.Reminder, error) {
	r, err := s.Get(ctx, userID, reminderID)
	if err != nil {
		return nil, err
	}
	if r.Status.Terminal() {
		return nil, fmt.Errorf("%w: reminder is %s", ErrInvalidInput, r.Status)
	}
	if !CanSnooze(*r) {
		return nil, ErrSnoozeLimitReached
	}

	until, err := s.Snooze(ctx, r.ID, duration)
	if err != nil {
		return nil, err
	}
	if err := s.IncrementSnoozeCount(ctx, r.ID, r.SnoozeCount); err != nil {
		return nil, err
	}

	r.Status = model.ReminderScheduled
	r.ScheduledAt = until
	r.SnoozedUntil = &until
	r.SnoozeCount++
	return r, nil
}

// Dismiss moves the reminder to dismissed; it never fires again.
func (s *ReminderService) Dismiss(ctx context.Context, reminderID string) error {
	if err := s.reminders.SetStatus(ctx, reminderID, model.ReminderDismissed); err != nil {
		return fmt.Errorf("dismiss reminder %s: %w", reminderID, err)
	}
	metrics.ReminderTransitions.WithLabelValues(string(model.ReminderDismissed)).Inc()
	return nil
}

// Get returns a reminder owned by userID.
func (s *ReminderService) Get(ctx context.Context, userID uint, reminderID string) (*model.Reminder, error) {
	r, err := s.reminders.FindByID(ctx, reminderID)
	if err != nil {
		return nil, err
	}
	if r.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return r, nil
}

// ListActive returns the user's scheduled, snoozed and sent reminders in
// panel order.
func (s *ReminderService) ListActive(ctx context.Context, userID uint) ([]model.Reminder, error) {
	reminders, err := s.reminders.ListByStatus(ctx, userID, ActiveReminderStatuses...)
	if err != nil {
		return nil, err
	}
	SortForPanel(reminders)
	return reminders, nil
}

// PendingOffsets returns the offsets of the task's scheduled and snoozed
// reminders, so a changed due time can re-derive the same set.
func (s *ReminderService) PendingOffsets(ctx context.Context, taskID string) ([]model.ReminderOffset, error) {
	reminders, err := s.reminders.ListForTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	var offsets []model.ReminderOffset
	for _, r := range reminders {
		if r.Status == model.ReminderScheduled || r.Status == model.ReminderSnoozed {
			offsets = append(offsets, model.ReminderOffset{OffsetMinutes: r.OffsetMinutes, Type: r.Type})
		}
	}
	return offsets, nil
}

// PurgeStale deletes dismissed and cancelled reminders older than retention.
func (s *ReminderService) PurgeStale(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.opts.now().Add(-retention)
	n, err := s.reminders.DeleteTerminalBefore(ctx, cutoff, purgeBatchSize)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("stale reminders purged", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// SortForPanel orders reminders sent first, then snoozed, then scheduled,
// each group by fire time ascending.
func SortForPanel(reminders []model.Reminder) {
	rank := func(st model.ReminderStatus) int {
		switch st {
		case model.ReminderSent:
			return 0
		case model.ReminderSnoozed:
			return 1
		case model.ReminderScheduled:
			return 2
		}
		return 3
	}
	sort.SliceStable(reminders, func(i, j int) bool {
		ri, rj := rank(reminders[i].Status), rank(reminders[j].Status)
		if ri != rj {
			return ri < rj
		}
		return reminders[i].ScheduledAt.Before(reminders[j].ScheduledAt)
	})
}

// OffsetOptions are the offsets offered when creating a task.
var OffsetOptions = []struct {
	Minutes int
	Label   string
}{
	{0, "At time of task"},
	{5, "5 minutes before"},
	{15, "15 minutes before"},
	{30, "30 minutes before"},
	{60, "1 hour before"},
	{1440, "1 day before"},
}

// FormatOffset renders an offset for display.
func FormatOffset(minutes int) string {
	for _, o := range OffsetOptions {
		if o.Minutes == minutes {
			return o.Label
		}
	}
	switch {
	case minutes < 60:
		return fmt.Sprintf("%dm before", minutes)
	case minutes < 1440:
		return strconv.FormatFloat(float64(minutes)/60, 'f', -1, 64) + "h before"
	default:
		return strconv.FormatFloat(float64(minutes)/1440, 'f', -1, 64) + "d before"
	}
}
