package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"daily-planner/internal/metrics"
	"daily-planner/internal/model"
	"daily-planner/internal/recurrence"
)

const (
	// DefaultWindowDays is the rolling window kept generated ahead of today.
	DefaultWindowDays = 30
	// maxGeneratedPerCall bounds one GenerateInstances call.
	maxGeneratedPerCall = 100
)

// EditChoice is how an edit of a series occurrence is applied.
type EditChoice string

const (
	EditThis       EditChoice = "this"
	EditAllFuture  EditChoice = "all_future"
	EditStopSeries EditChoice = "stop"
)

func (c EditChoice) Valid() bool {
	switch c {
	case EditThis, EditAllFuture, EditStopSeries:
		return true
	}
	return false
}

// RequiresEditChoice reports whether editing task must ask which occurrences
// the edit applies to. Standalone occurrences are edited directly.
func RequiresEditChoice(task model.Task) bool {
	return task.IsRecurring() && task.RepeatSeriesID != nil
}

// SeriesUpdate lists the display fields that may be changed on a whole series.
// Due date and repeat mode are never part of it.
type SeriesUpdate struct {
	Name          *string
	Description   *string
	Priority      *model.Priority
	CategoryID    *uint
	ClearCategory bool
	DueTime       *string
	ClearDueTime  bool
}

func (u SeriesUpdate) columns() (map[string]any, error) {
	cols := make(map[string]any)
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is empty", ErrInvalidInput)
		}
		cols["name"] = name
	}
	if u.Description != nil {
		cols["description"] = strings.TrimSpace(*u.Description)
	}
	if u.Priority != nil {
		if !u.Priority.Valid() {
			return nil, fmt.Errorf("%w: priority %q", ErrInvalidInput, *u.Priority)
		}
		cols["priority"] = string(*u.Priority)
	}
	switch {
	case u.ClearCategory:
		cols["category_id"] = nil
	case u.CategoryID != nil:
		cols["category_id"] = *u.CategoryID
	}
	switch {
	case u.ClearDueTime:
		cols["due_time"] = nil
	case u.DueTime != nil:
		if _, _, err := model.ParseClock(*u.DueTime); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		cols["due_time"] = *u.DueTime
	}
	return cols, nil
}

// StopResult describes a stopped series.
type StopResult struct {
	Deleted    int
	DeletedIDs []string
}

// RepeatService expands repeat series into dated occurrences and manages
// series-wide edits.
type RepeatService struct {
	tasks      TaskStore
	log        *zap.Logger
	windowDays int
	opts       options

	// fills collapses concurrent fills of the same user so they cannot both
	// generate the same dates.
	fills singleflight.Group
}

func NewRepeatService(tasks TaskStore, log *zap.Logger, windowDays int, opts ...Option) *RepeatService {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return &RepeatService{
		tasks:      tasks,
		log:        log.Named("repeat"),
		windowDays: windowDays,
		opts:       newOptions(opts),
	}
}

// GenerateInstances creates the missing occurrences of task's series inside
// the rolling window and returns how many were created.
//
// The window covers windowDays calendar days counting today. Generation starts
// at the occurrence after the source task while that task is still pending,
// otherwise at tomorrow. Dates already
// held by an active or completed occurrence are skipped, so repeated calls are
// no-ops. At most 100 occurrences are created per call.
func (s *RepeatService) GenerateInstances(ctx context.Context, task model.Task, windowDays int) (int, error) {
	if !task.IsRecurring() || task.DueDate == nil {
		return 0, nil
	}
	if windowDays <= 0 {
		windowDays = s.windowDays
	}

	seriesID := task.SeriesID()
	existing, err := s.tasks.ListSeries(ctx, task.UserID, seriesID, model.TaskActive, model.TaskCompleted)
	if err != nil {
		return 0, fmt.Errorf("load series %s: %w", seriesID, err)
	}

	originalDay := task.DueDate.Day
	taken := make(map[model.Date]struct{}, len(existing))
	for _, occ := range existing {
		if occ.DueDate != nil {
			taken[*occ.DueDate] = struct{}{}
		}
		if occ.RepeatOriginalDate != nil {
			taken[*occ.RepeatOriginalDate] = struct{}{}
		}
		if occ.ID == seriesID {
			originalDay = anchorDay(occ, originalDay)
		}
	}

	today := s.opts.today()
	windowEnd := today.AddDays(windowDays - 1)
	var current model.Date
	if task.DueDate.Before(today) {
		current = today.AddDays(1)
	} else {
		current = recurrence.NextDate(*task.DueDate, task.Repeat, originalDay)
	}

	var created []model.Task
	for !current.After(windowEnd) && len(created) < maxGeneratedPerCall {
		if _, ok := taken[current]; !ok {
			created = append(created, newOccurrence(task, seriesID, current))
			taken[current] = struct{}{}
		}
		current = recurrence.NextDate(current, task.Repeat, originalDay)
	}
	if len(created) == 0 {
		return 0, nil
	}

	if err := s.tasks.CreateBatch(ctx, created); err != nil {
		return 0, fmt.Errorf("create occurrences for series %s: %w", seriesID, err)
	}
	metrics.OccurrencesGenerated.Add(float64(len(created)))
	s.log.Debug("occurrences generated",
		zap.String("series_id", seriesID),
		zap.Int("count", len(created)),
		zap.Stringer("from", created[0].DueDate),
		zap.Stringer("to", created[len(created)-1].DueDate),
	)
	return len(created), nil
}

// anchorDay is the nominal day of month of a series anchor.
func anchorDay(anchor model.Task, fallback int) int {
	switch {
	case anchor.RepeatOriginalDate != nil:
		return anchor.RepeatOriginalDate.Day
	case anchor.DueDate != nil:
		return anchor.DueDate.Day
	}
	return fallback
}

func newOccurrence(source model.Task, seriesID string, due model.Date) model.Task {
	occ := model.Task{
		ID:                 uuid.NewString(),
		UserID:             source.UserID,
		Name:               source.Name,
		Description:        source.Description,
		Priority:           source.Priority,
		DueDate:            model.DatePtr(due),
		Repeat:             source.Repeat,
		RepeatSeriesID:     model.StringPtr(seriesID),
		RepeatOriginalDate: model.DatePtr(due),
		Status:             model.TaskActive,
	}
	if source.CategoryID != nil {
		id := *source.CategoryID
		occ.CategoryID = &id
	}
	if source.DueTime != nil {
		occ.DueTime = model.StringPtr(*source.DueTime)
	}
	return occ
}

// FillWindowForAllSeries tops up the rolling window of every series the user
// has. A failing series is logged and skipped. It returns the number of
// occurrences created; a caller that joined a fill already in flight gets
// that fill's result.
func (s *RepeatService) FillWindowForAllSeries(ctx context.Context, userID uint) (int, error) {
	v, err, _ := s.fills.Do(strconv.FormatUint(uint64(userID), 10), func() (any, error) {
		return s.fillWindow(ctx, userID)
	})
	n, _ := v.(int)
	return n, err
}

func (s *RepeatService) fillWindow(ctx context.Context, userID uint) (int, error) {
	recurring, err := s.tasks.ListRecurring(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list recurring tasks: %w", err)
	}

	seen := make(map[string]struct{})
	total := 0
	for _, task := range recurring {
		seriesID := task.SeriesID()
		if _, ok := seen[seriesID]; ok {
			continue
		}
		seen[seriesID] = struct{}{}

		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := s.GenerateInstances(ctx, task, s.windowDays)
		if err != nil {
			metrics.SeriesFillFailures.Inc()
			s.log.Warn("fill series window failed",
				zap.Uint("user_id", userID),
				zap.String("series_id", seriesID),
				zap.Error(err),
			)
			continue
		}
		total += n
	}
	if total > 0 {
		s.log.Info("repeat window filled", zap.Uint("user_id", userID), zap.Int("created", total))
	}
	return total, nil
}

// UpdateFutureInstances applies fields to every active occurrence of the
// series due today or later and returns how many were changed.
func (s *RepeatService) UpdateFutureInstances(ctx context.Context, userID uint, seriesID string, fields SeriesUpdate) (int64, error) {
	cols, err := fields.columns()
	if err != nil {
		return 0, err
	}
	if len(cols) == 0 {
		return 0, nil
	}
	n, err := s.tasks.UpdateActiveFrom(ctx, userID, seriesID, s.opts.today(), cols)
	if err != nil {
		return 0, err
	}
	s.log.Debug("future occurrences updated", zap.String("series_id", seriesID), zap.Int64("count", n))
	return n, nil
}

// StopRepeatSeries detaches taskID from its series and soft-deletes the other
// active occurrences due after today.
//
// The two steps are separate writes. If the second fails, taskID no longer
// repeats while the future occurrences stay active; calling again finishes
// the job.
//
// Only taskID is detached. Earlier occurrences of the series keep their repeat
// mode, so a later FillWindowForAllSeries generates the deleted dates again.
func (s *RepeatService) StopRepeatSeries(ctx context.Context, userID uint, taskID, seriesID string) (StopResult, error) {
	if err := s.tasks.Update(ctx, userID, taskID, map[string]any{"repeat": string(model.RepeatNone)}); err != nil {
		return StopResult{}, fmt.Errorf("detach occurrence %s: %w", taskID, err)
	}

	ids, err := s.tasks.SoftDeleteActiveAfter(ctx, userID, seriesID, s.opts.today(), taskID)
	if err != nil {
		return StopResult{}, &PartialError{Step: "delete future occurrences", Err: err}
	}
	s.log.Info("repeat series stopped",
		zap.Uint("user_id", userID),
		zap.String("series_id", seriesID),
		zap.Int("deleted", len(ids)),
	)
	return StopResult{Deleted: len(ids), DeletedIDs: ids}, nil
}
