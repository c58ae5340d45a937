package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"daily-planner/internal/model"
)

var (
	// ErrInvalidInput is returned for requests that fail validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotRecurring is returned for series operations on a standalone task.
	ErrNotRecurring = errors.New("task is not part of a repeat series")
)

// TaskStore is the task storage used by the services. It is satisfied by
// *repository.TaskRepository.
type TaskStore interface {
	Create(ctx context.Context, task *model.Task) error
	CreateBatch(ctx context.Context, tasks []model.Task) error
	FindByID(ctx context.Context, userID uint, taskID string) (*model.Task, error)
	Update(ctx context.Context, userID uint, taskID string, updates map[string]any) error
	ListSeries(ctx context.Context, userID uint, seriesID string, statuses ...model.TaskStatus) ([]model.Task, error)
	ListRecurring(ctx context.Context, userID uint) ([]model.Task, error)
	UpdateActiveFrom(ctx context.Context, userID uint, seriesID string, from model.Date, updates map[string]any) (int64, error)
	SoftDeleteActiveAfter(ctx context.Context, userID uint, seriesID string, after model.Date, excludeID string) ([]string, error)
	ListDueBetween(ctx context.Context, userID uint, from, to model.Date, statuses ...model.TaskStatus) ([]model.Task, error)
	ListOverdue(ctx context.Context, userID uint, before model.Date) ([]model.Task, error)
	RescheduleMany(ctx context.Context, userID uint, taskIDs []string, due model.Date) (int64, error)
}

// ReminderStore is the reminder storage used by the services. It is satisfied
// by *repository.ReminderRepository.
type ReminderStore interface {
	CreateBatch(ctx context.Context, reminders []model.Reminder) error
	FindByID(ctx context.Context, reminderID string) (*model.Reminder, error)
	CancelForTask(ctx context.Context, taskID string) (int64, error)
	CancelForTasks(ctx context.Context, taskIDs []string) (int64, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.Reminder, error)
	MarkSent(ctx context.Context, reminderID string, at time.Time) (bool, error)
	Reschedule(ctx context.Context, reminderID string, until time.Time) error
	SetSnoozeCount(ctx context.Context, reminderID string, count int) error
	SetStatus(ctx context.Context, reminderID string, status model.ReminderStatus) error
	ListByStatus(ctx context.Context, userID uint, statuses ...model.ReminderStatus) ([]model.Reminder, error)
	ListForTask(ctx context.Context, taskID string) ([]model.Reminder, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type options struct {
	now func() time.Time
	loc *time.Location
}

// Option configures the clock and time zone of a service.
type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLocation sets the zone used for due times, "today" and snoozes.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.loc = loc }
}

func newOptions(opts []Option) options {
	o := options{now: time.Now, loc: time.Local}
	for _, opt := range opts {
		opt(&o)
	}
	if o.loc == nil {
		o.loc = time.Local
	}
	return o
}

func (o options) today() model.Date {
	return model.Today(o.now(), o.loc)
}

// PartialError reports a multi-step operation whose first steps succeeded and
// were kept. Step names the step that failed.
type PartialError struct {
	Step string
	Err  error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("partially applied, %s failed: %v", e.Step, e.Err)
}

func (e *PartialError) Unwrap() error {
	return e.Err
}
