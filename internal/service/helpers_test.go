package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"daily-planner/internal/model"
	"daily-planner/internal/notify"
	"daily-planner/internal/repository"
)

type testEnv struct {
	tasks      *repository.TaskRepository
	reminders  *repository.ReminderRepository
	categories *repository.CategoryRepository
	now        time.Time
	opts       []Option
}

// newTestEnv opens an in-memory database and pins the service clock to now in UTC.
func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()

	db, err := repository.NewDB(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return &testEnv{
		tasks:      repository.NewTaskRepository(db),
		reminders:  repository.NewReminderRepository(db),
		categories: repository.NewCategoryRepository(db),
		now:        now,
		opts:       []Option{WithClock(func() time.Time { return now }), WithLocation(time.UTC)},
	}
}

func (e *testEnv) repeatService(store TaskStore, log *zap.Logger) *RepeatService {
	if store == nil {
		store = e.tasks
	}
	if log == nil {
		log = zap.NewNop()
	}
	return NewRepeatService(store, log, DefaultWindowDays, e.opts...)
}

func (e *testEnv) reminderService(store ReminderStore) *ReminderService {
	if store == nil {
		store = e.reminders
	}
	return NewReminderService(store, zap.NewNop(), e.opts...)
}

func (e *testEnv) taskService(tasks TaskStore, reminders ReminderStore) *TaskService {
	if tasks == nil {
		tasks = e.tasks
	}
	return NewTaskService(tasks, e.categories, e.repeatService(tasks, nil), e.reminderService(reminders), zap.NewNop(), e.opts...)
}

// seedSeries stores occurrences of one series on the given day offsets from
// the anchor date. The first offset is the anchor.
func (e *testEnv) seedSeries(t *testing.T, mode model.RepeatMode, anchor model.Date, offsets ...int) []model.Task {
	t.Helper()

	var tasks []model.Task
	var seriesID string
	for i, off := range offsets {
		due := anchor.AddDays(off)
		task := model.Task{
			UserID:             1,
			Name:               "Stand-up",
			Priority:           model.PriorityMedium,
			DueDate:            model.DatePtr(due),
			DueTime:            model.StringPtr("09:30"),
			Repeat:             mode,
			RepeatOriginalDate: model.DatePtr(due),
			Status:             model.TaskActive,
		}
		task.ID = uuid.NewString()
		if i == 0 {
			seriesID = task.ID
		}
		task.RepeatSeriesID = model.StringPtr(seriesID)
		tasks = append(tasks, task)
	}
	require.NoError(t, e.tasks.CreateBatch(context.Background(), tasks))
	return tasks
}

func seriesDates(t *testing.T, e *testEnv, seriesID string, statuses ...model.TaskStatus) []model.Date {
	t.Helper()
	tasks, err := e.tasks.ListSeries(context.Background(), 1, seriesID, statuses...)
	require.NoError(t, err)
	dates := make([]model.Date, 0, len(tasks))
	for _, task := range tasks {
		dates = append(dates, *task.DueDate)
	}
	return dates
}

// failingTaskStore injects errors into selected task store calls.
type failingTaskStore struct {
	TaskStore
	createBatchErr error
	softDeleteErr  error
	listSeriesErr  map[string]error
}

func (s *failingTaskStore) CreateBatch(ctx context.Context, tasks []model.Task) error {
	if s.createBatchErr != nil {
		return s.createBatchErr
	}
	return s.TaskStore.CreateBatch(ctx, tasks)
}

func (s *failingTaskStore) SoftDeleteActiveAfter(ctx context.Context, userID uint, seriesID string, after model.Date, excludeID string) ([]string, error) {
	if s.softDeleteErr != nil {
		return nil, s.softDeleteErr
	}
	return s.TaskStore.SoftDeleteActiveAfter(ctx, userID, seriesID, after, excludeID)
}

func (s *failingTaskStore) ListSeries(ctx context.Context, userID uint, seriesID string, statuses ...model.TaskStatus) ([]model.Task, error) {
	if err, ok := s.listSeriesErr[seriesID]; ok {
		return nil, err
	}
	return s.TaskStore.ListSeries(ctx, userID, seriesID, statuses...)
}

// failingReminderStore injects errors into selected reminder store calls.
type failingReminderStore struct {
	ReminderStore
	createBatchErr error
	// dropMarkSent makes MarkSent a no-op, as if the status write never landed.
	dropMarkSent bool
}

func (s *failingReminderStore) CreateBatch(ctx context.Context, reminders []model.Reminder) error {
	if s.createBatchErr != nil {
		return s.createBatchErr
	}
	return s.ReminderStore.CreateBatch(ctx, reminders)
}

func (s *failingReminderStore) MarkSent(ctx context.Context, reminderID string, at time.Time) (bool, error) {
	if s.dropMarkSent {
		return false, nil
	}
	return s.ReminderStore.MarkSent(ctx, reminderID, at)
}

// fakeChannel records deliveries and fails for ids listed in fail.
type fakeChannel struct {
	mu        sync.Mutex
	delivered []notify.Notification
	fail      map[string]error
}

func (c *fakeChannel) Deliver(_ context.Context, n notify.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.fail[n.ReminderID]; ok {
		return err
	}
	c.delivered = append(c.delivered, n)
	return nil
}

func (c *fakeChannel) count(reminderID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, d := range c.delivered {
		if d.ReminderID == reminderID {
			n++
		}
	}
	return n
}

func (c *fakeChannel) setFail(reminderID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail == nil {
		c.fail = make(map[string]error)
	}
	if err == nil {
		delete(c.fail, reminderID)
		return
	}
	c.fail[reminderID] = err
}
