package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"daily-planner/internal/model"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := NewDB(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func occurrence(userID uint, seriesID string, due model.Date, status model.TaskStatus) model.Task {
	return model.Task{
		ID:                 uuid.NewString(),
		UserID:             userID,
		Name:               "Water plants",
		Priority:           model.PriorityMedium,
		DueDate:            model.DatePtr(due),
		DueTime:            model.StringPtr("09:00"),
		Repeat:             model.RepeatDaily,
		RepeatSeriesID:     model.StringPtr(seriesID),
		RepeatOriginalDate: model.DatePtr(due),
		Status:             status,
	}
}

func TestTaskRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(setupTestDB(t))
	due := model.NewDate(2025, time.June, 10)

	task := occurrence(1, "series", due, model.TaskActive)
	task.DueTime = nil
	require.NoError(t, repo.Create(ctx, &task))

	t.Run("existing task", func(t *testing.T) {
		found, err := repo.FindByID(ctx, 1, task.ID)
		require.NoError(t, err)
		require.NotNil(t, found.DueDate)
		assert.Equal(t, due, *found.DueDate)
		assert.Nil(t, found.DueTime)
		assert.Nil(t, found.CompletedAt)
		assert.Equal(t, "series", found.SeriesID())
	})

	t.Run("other user", func(t *testing.T) {
		_, err := repo.FindByID(ctx, 2, task.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update missing task", func(t *testing.T) {
		err := repo.Update(ctx, 1, "missing", map[string]any{"name": "x"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestTaskRepository_ListSeries(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(setupTestDB(t))
	base := model.NewDate(2025, time.June, 10)

	tasks := []model.Task{
		occurrence(1, "s1", base.AddDays(2), model.TaskActive),
		occurrence(1, "s1", base, model.TaskCompleted),
		occurrence(1, "s1", base.AddDays(1), model.TaskDeleted),
		occurrence(1, "s2", base, model.TaskActive),
		occurrence(2, "s1", base, model.TaskActive),
	}
	require.NoError(t, repo.CreateBatch(ctx, tasks))

	got, err := repo.ListSeries(ctx, 1, "s1", model.TaskActive, model.TaskCompleted)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, base, *got[0].DueDate)
	assert.Equal(t, base.AddDays(2), *got[1].DueDate)
}

func TestTaskRepository_UpdateActiveFrom(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(setupTestDB(t))
	today := model.NewDate(2025, time.June, 10)

	past := occurrence(1, "s", today.AddDays(-1), model.TaskActive)
	current := occurrence(1, "s", today, model.TaskActive)
	future := occurrence(1, "s", today.AddDays(7), model.TaskActive)
	done := occurrence(1, "s", today.AddDays(7), model.TaskCompleted)
	require.NoError(t, repo.CreateBatch(ctx, []model.Task{past, current, future, done}))

	n, err := repo.UpdateActiveFrom(ctx, 1, "s", today, map[string]any{"priority": string(model.PriorityHigh)})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	for id, want := range map[string]model.Priority{
		past.ID:    model.PriorityMedium,
		current.ID: model.PriorityHigh,
		future.ID:  model.PriorityHigh,
		done.ID:    model.PriorityMedium,
	} {
		got, err := repo.FindByID(ctx, 1, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Priority)
	}
}

func TestTaskRepository_SoftDeleteActiveAfter(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(setupTestDB(t))
	today := model.NewDate(2025, time.June, 10)

	current := occurrence(1, "s", today.AddDays(3), model.TaskActive)
	todays := occurrence(1, "s", today, model.TaskActive)
	later := occurrence(1, "s", today.AddDays(4), model.TaskActive)
	laterDone := occurrence(1, "s", today.AddDays(5), model.TaskCompleted)
	require.NoError(t, repo.CreateBatch(ctx, []model.Task{current, todays, later, laterDone}))

	ids, err := repo.SoftDeleteActiveAfter(ctx, 1, "s", today, current.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{later.ID}, ids)

	got, err := repo.FindByID(ctx, 1, later.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskDeleted, got.Status)

	for _, id := range []string{current.ID, todays.ID} {
		got, err := repo.FindByID(ctx, 1, id)
		require.NoError(t, err)
		assert.Equal(t, model.TaskActive, got.Status)
	}
}

func TestTaskRepository_DateQueries(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(setupTestDB(t))
	today := model.NewDate(2025, time.June, 10)

	overdue := occurrence(1, "a", today.AddDays(-3), model.TaskActive)
	overdueDone := occurrence(1, "b", today.AddDays(-2), model.TaskCompleted)
	todays := occurrence(1, "c", today, model.TaskActive)
	nextWeek := occurrence(1, "d", today.AddDays(7), model.TaskActive)
	require.NoError(t, repo.CreateBatch(ctx, []model.Task{overdue, overdueDone, todays, nextWeek}))

	got, err := repo.ListOverdue(ctx, 1, today)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, overdue.ID, got[0].ID)

	got, err = repo.ListDueBetween(ctx, 1, today.AddDays(-2), today.AddDays(6), model.TaskActive, model.TaskCompleted)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, overdueDone.ID, got[0].ID)
	assert.Equal(t, todays.ID, got[1].ID)

	n, err := repo.RescheduleMany(ctx, 1, []string{overdue.ID, nextWeek.ID}, today)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	moved, err := repo.FindByID(ctx, 1, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, today, *moved.DueDate)
}

func TestTaskRepository_ListRecurring(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(setupTestDB(t))
	today := model.NewDate(2025, time.June, 10)

	daily := occurrence(1, "a", today, model.TaskActive)
	stopped := occurrence(1, "a", today.AddDays(1), model.TaskActive)
	stopped.Repeat = model.RepeatNone
	deleted := occurrence(1, "b", today, model.TaskDeleted)
	require.NoError(t, repo.CreateBatch(ctx, []model.Task{daily, stopped, deleted}))

	got, err := repo.ListRecurring(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, daily.ID, got[0].ID)
}

func TestChunk(t *testing.T) {
	assert.Nil(t, chunk([]int{}, 2))
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, chunk([]int{1, 2, 3, 4, 5}, 2))
}
