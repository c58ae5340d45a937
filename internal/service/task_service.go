package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"daily-planner/internal/model"
	"daily-planner/internal/recurrence"
)

// CategoryResolver turns a category name from user input into a category.
type CategoryResolver interface {
	GetOrCreate(ctx context.Context, userID uint, name string) (*model.Category, error)
}

// TaskInput represents data required to create a task.
type TaskInput struct {
	Name        string
	Description string
	Priority    model.Priority
	Category    string
	DueDate     *model.Date
	DueTime     *string
	Repeat      model.RepeatMode
	Reminders   []model.ReminderOffset
}

// TaskEdit changes one occurrence, or a series depending on the EditChoice.
type TaskEdit struct {
	Fields SeriesUpdate
	// DueDate moves the occurrence. Only allowed when editing this occurrence.
	DueDate *model.Date
	// Reminders replaces the reminder offsets; nil keeps the current ones.
	Reminders []model.ReminderOffset
}

// EditResult reports what an edit changed.
type EditResult struct {
	Task    *model.Task
	Choice  EditChoice
	Updated int64
	Stopped *StopResult
}

// TaskService wraps task-related business logic.
type TaskService struct {
	tasks      TaskStore
	categories CategoryResolver
	repeat     *RepeatService
	reminders  *ReminderService
	log        *zap.Logger
	opts       options
}

func NewTaskService(tasks TaskStore, categories CategoryResolver, repeat *RepeatService, reminders *ReminderService, log *zap.Logger, opts ...Option) *TaskService {
	return &TaskService{
		tasks:      tasks,
		categories: categories,
		repeat:     repeat,
		reminders:  reminders,
		log:        log.Named("task"),
		opts:       newOptions(opts),
	}
}

// CreateTask stores a new task. A repeating task becomes the anchor of its
// own series and the rolling window is generated; then reminders are
// scheduled. Steps run in order without rollback: when a later step fails the
// created task is returned together with a *PartialError.
func (s *TaskService) CreateTask(ctx context.Context, userID uint, input TaskInput) (*model.Task, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	priority := input.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: priority %q", ErrInvalidInput, priority)
	}
	repeat := input.Repeat
	if repeat == "" {
		repeat = model.RepeatNone
	}
	if repeat != model.RepeatNone && input.DueDate == nil {
		return nil, fmt.Errorf("%w: a repeating task needs a due date", ErrInvalidInput)
	}
	if input.DueTime != nil {
		if _, _, err := model.ParseClock(*input.DueTime); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}

	var categoryID *uint
	if input.Category != "" {
		category, err := s.categories.GetOrCreate(ctx, userID, input.Category)
		if err != nil {
			return nil, err
		}
		if category != nil {
			categoryID = &category.ID
		}
	}

	task := model.Task{
		ID:          uuid.NewString(),
		UserID:      userID,
		CategoryID:  categoryID,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Priority:    priority,
		DueDate:     input.DueDate,
		DueTime:     input.DueTime,
		Repeat:      repeat,
		Status:      model.TaskActive,
	}
	if input.DueDate != nil {
		task.RepeatOriginalDate = model.DatePtr(*input.DueDate)
	}
	if task.IsRecurring() {
		task.RepeatSeriesID = model.StringPtr(task.ID)
	}

	if err := s.tasks.Create(ctx, &task); err != nil {
		return nil, err
	}

	if task.IsRecurring() {
		if _, err := s.repeat.GenerateInstances(ctx, task, 0); err != nil {
			return &task, &PartialError{Step: "generate occurrences", Err: err}
		}
	}
	if len(input.Reminders) > 0 {
		if _, err := s.reminders.ScheduleRemindersForTask(ctx, scheduleFor(task, input.Reminders)); err != nil {
			return &task, &PartialError{Step: "schedule reminders", Err: err}
		}
	}

	s.log.Debug("task created", zap.String("task_id", task.ID), zap.Uint("user_id", userID), zap.String("repeat", string(repeat)))
	return &task, nil
}

func scheduleFor(task model.Task, offsets []model.ReminderOffset) ScheduleRequest {
	return ScheduleRequest{
		UserID:   task.UserID,
		TaskID:   task.ID,
		TaskName: task.Name,
		DueDate:  task.DueDate,
		DueTime:  task.DueTime,
		Offsets:  offsets,
	}
}

func (s *TaskService) GetTask(ctx context.Context, userID uint, taskID string) (*model.Task, error) {
	return s.tasks.FindByID(ctx, userID, taskID)
}

// CompleteTask marks an occurrence done and cancels its pending reminders.
func (s *TaskService) CompleteTask(ctx context.Context, userID uint, taskID string) (*model.Task, error) {
	now := s.opts.now().UTC()
	err := s.tasks.Update(ctx, userID, taskID, map[string]any{
		"status":       string(model.TaskCompleted),
		"completed_at": now,
	})
	if err != nil {
		return nil, err
	}
	return s.afterClose(ctx, userID, taskID, "complete")
}

// UncompleteTask reopens a completed occurrence. Cancelled reminders stay cancelled.
func (s *TaskService) UncompleteTask(ctx context.Context, userID uint, taskID string) (*model.Task, error) {
	err := s.tasks.Update(ctx, userID, taskID, map[string]any{
		"status":       string(model.TaskActive),
		"completed_at": nil,
	})
	if err != nil {
		return nil, err
	}
	return s.tasks.FindByID(ctx, userID, taskID)
}

// DeleteTask soft-deletes an occurrence and cancels its pending reminders.
func (s *TaskService) DeleteTask(ctx context.Context, userID uint, taskID string) (*model.Task, error) {
	if err := s.tasks.Update(ctx, userID, taskID, map[string]any{"status": string(model.TaskDeleted)}); err != nil {
		return nil, err
	}
	return s.afterClose(ctx, userID, taskID, "delete")
}

func (s *TaskService) afterClose(ctx context.Context, userID uint, taskID, action string) (*model.Task, error) {
	task, err := s.tasks.FindByID(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if _, err := s.reminders.CancelRemindersForTask(ctx, taskID); err != nil {
		return task, &PartialError{Step: "cancel reminders", Err: err}
	}
	s.log.Debug("task closed", zap.String("task_id", taskID), zap.String("action", action))
	return task, nil
}

// RestoreTask brings a soft-deleted occurrence back to active.
func (s *TaskService) RestoreTask(ctx context.Context, userID uint, taskID string) (*model.Task, error) {
	if err := s.tasks.Update(ctx, userID, taskID, map[string]any{"status": string(model.TaskActive)}); err != nil {
		return nil, err
	}
	return s.tasks.FindByID(ctx, userID, taskID)
}

// RescheduleTask moves an occurrence to a new date and time and re-derives
// its reminders. offsets nil keeps the current offsets.
func (s *TaskService) RescheduleTask(ctx context.Context, userID uint, taskID string, due model.Date, dueTime *string, offsets []model.ReminderOffset) (*model.Task, error) {
	if dueTime != nil {
		if _, _, err := model.ParseClock(*dueTime); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	if offsets == nil {
		current, err := s.reminders.PendingOffsets(ctx, taskID)
		if err != nil {
			return nil, err
		}
		offsets = current
	}

	cols := map[string]any{"due_date": due, "due_time": nil}
	if dueTime != nil {
		cols["due_time"] = *dueTime
	}
	if err := s.tasks.Update(ctx, userID, taskID, cols); err != nil {
		return nil, err
	}
	task, err := s.tasks.FindByID(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if _, err := s.reminders.ScheduleRemindersForTask(ctx, scheduleFor(*task, offsets)); err != nil {
		return task, &PartialError{Step: "schedule reminders", Err: err}
	}
	return task, nil
}

// EditTask applies an edit. Standalone occurrences are always edited alone;
// for series occurrences choice selects this occurrence, this and all future
// ones, or stopping the series after editing this one.
func (s *TaskService) EditTask(ctx context.Context, userID uint, taskID string, edit TaskEdit, choice EditChoice) (*EditResult, error) {
	task, err := s.tasks.FindByID(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if !RequiresEditChoice(*task) {
		choice = EditThis
	}
	if !choice.Valid() {
		return nil, fmt.Errorf("%w: edit choice %q", ErrInvalidInput, choice)
	}
	cols, err := edit.Fields.columns()
	if err != nil {
		return nil, err
	}

	res := &EditResult{Choice: choice}
	switch choice {
	case EditAllFuture:
		if edit.DueDate != nil {
			return nil, fmt.Errorf("%w: due date cannot change for a whole series", ErrInvalidInput)
		}
		n, err := s.repeat.UpdateFutureInstances(ctx, userID, task.SeriesID(), edit.Fields)
		if err != nil {
			return nil, err
		}
		res.Updated = n
		if len(cols) > 0 && task.Status == model.TaskActive && task.DueDate != nil && task.DueDate.Before(s.opts.today()) {
			// The edited occurrence itself is in the past; the bulk update skipped it.
			if err := s.tasks.Update(ctx, userID, taskID, cols); err != nil {
				return nil, err
			}
			res.Updated++
		}
		if err := s.rederiveSeriesReminders(ctx, *task, cols, edit.Reminders); err != nil {
			res.Task, _ = s.tasks.FindByID(ctx, userID, taskID)
			return res, &PartialError{Step: "schedule reminders", Err: err}
		}

	case EditThis, EditStopSeries:
		if edit.DueDate != nil {
			cols["due_date"] = *edit.DueDate
		}
		if len(cols) > 0 {
			if err := s.tasks.Update(ctx, userID, taskID, cols); err != nil {
				return nil, err
			}
			res.Updated = 1
		}
		if choice == EditStopSeries {
			stopped, err := s.StopSeries(ctx, userID, taskID)
			res.Stopped = &stopped
			if err != nil {
				res.Task, _ = s.tasks.FindByID(ctx, userID, taskID)
				return res, err
			}
		}
		if reminderFieldsChanged(cols) || edit.Reminders != nil {
			if err := s.rederive(ctx, userID, taskID, edit.Reminders); err != nil {
				res.Task, _ = s.tasks.FindByID(ctx, userID, taskID)
				return res, &PartialError{Step: "schedule reminders", Err: err}
			}
		}
	}

	res.Task, err = s.tasks.FindByID(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func reminderFieldsChanged(cols map[string]any) bool {
	for _, key := range []string{"due_date", "due_time", "name"} {
		if _, ok := cols[key]; ok {
			return true
		}
	}
	return false
}

// rederive replaces a task's reminders from its stored state. offsets nil
// keeps the currently pending offsets.
func (s *TaskService) rederive(ctx context.Context, userID uint, taskID string, offsets []model.ReminderOffset) error {
	if offsets == nil {
		current, err := s.reminders.PendingOffsets(ctx, taskID)
		if err != nil {
			return err
		}
		if len(current) == 0 {
			return nil
		}
		offsets = current
	}
	task, err := s.tasks.FindByID(ctx, userID, taskID)
	if err != nil {
		return err
	}
	_, err = s.reminders.ScheduleRemindersForTask(ctx, scheduleFor(*task, offsets))
	return err
}

func (s *TaskService) rederiveSeriesReminders(ctx context.Context, edited model.Task, cols map[string]any, offsets []model.ReminderOffset) error {
	if offsets != nil {
		if err := s.rederive(ctx, edited.UserID, edited.ID, offsets); err != nil {
			return err
		}
	}
	if !reminderFieldsChanged(cols) {
		return nil
	}
	occurrences, err := s.tasks.ListSeries(ctx, edited.UserID, edited.SeriesID(), model.TaskActive)
	if err != nil {
		return err
	}
	today := s.opts.today()
	for _, occ := range occurrences {
		if occ.DueDate == nil || occ.DueDate.Before(today) {
			continue
		}
		if occ.ID == edited.ID && offsets != nil {
			continue
		}
		if err := s.rederive(ctx, occ.UserID, occ.ID, nil); err != nil {
			return err
		}
	}
	return nil
}

// StopSeries stops the series taskID belongs to and cancels the reminders of
// the occurrences it removed.
func (s *TaskService) StopSeries(ctx context.Context, userID uint, taskID string) (StopResult, error) {
	task, err := s.tasks.FindByID(ctx, userID, taskID)
	if err != nil {
		return StopResult{}, err
	}
	if task.RepeatSeriesID == nil {
		return StopResult{}, ErrNotRecurring
	}
	res, err := s.repeat.StopRepeatSeries(ctx, userID, taskID, task.SeriesID())
	if err != nil {
		return res, err
	}
	if _, err := s.reminders.CancelRemindersForTasks(ctx, res.DeletedIDs); err != nil {
		return res, &PartialError{Step: "cancel reminders", Err: err}
	}
	return res, nil
}

// ListForDate returns the active and completed occurrences due on day.
func (s *TaskService) ListForDate(ctx context.Context, userID uint, day model.Date) ([]model.Task, error) {
	return s.ListForRange(ctx, userID, day, day)
}

// ListForRange returns the active and completed occurrences due within [from, to].
func (s *TaskService) ListForRange(ctx context.Context, userID uint, from, to model.Date) ([]model.Task, error) {
	return s.tasks.ListDueBetween(ctx, userID, from, to, model.TaskActive, model.TaskCompleted)
}

// ListOverdue returns active occurrences due before today.
func (s *TaskService) ListOverdue(ctx context.Context, userID uint) ([]model.Task, error) {
	return s.tasks.ListOverdue(ctx, userID, s.opts.today())
}

// RescheduleOverdue moves every overdue occurrence to today.
func (s *TaskService) RescheduleOverdue(ctx context.Context, userID uint) (int64, error) {
	overdue, err := s.ListOverdue(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(overdue) == 0 {
		return 0, nil
	}
	ids := make([]string, len(overdue))
	for i, t := range overdue {
		ids[i] = t.ID
	}
	return s.tasks.RescheduleMany(ctx, userID, ids, s.opts.today())
}

// Today is the current calendar day in the service's zone.
func (s *TaskService) Today() model.Date {
	return s.opts.today()
}

// Now is the service clock.
func (s *TaskService) Now() time.Time {
	return s.opts.now()
}

// WeekRange returns the week containing day, starting on weekStart.
func WeekRange(day model.Date, weekStart time.Weekday) (model.Date, model.Date) {
	back := (int(day.Weekday()) - int(weekStart) + 7) % 7
	from := day.AddDays(-back)
	return from, from.AddDays(6)
}

// MonthRange returns the first and last day of day's month.
func MonthRange(day model.Date) (model.Date, model.Date) {
	return model.Date{Year: day.Year, Month: day.Month, Day: 1},
		model.Date{Year: day.Year, Month: day.Month, Day: recurrence.DaysInMonth(day.Year, day.Month)}
}

// SortByPriority returns tasks ordered P1 first, keeping the input order
// within a priority.
func SortByPriority(tasks []model.Task) []model.Task {
	out := make([]model.Task, len(tasks))
	copy(out, tasks)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.Rank() < out[j].Priority.Rank()
	})
	return out
}
