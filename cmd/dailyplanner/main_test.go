package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"daily-planner/internal/model"
	"daily-planner/internal/repository"
	"daily-planner/internal/service"
)

type brokenUserStore struct {
	service.TaskStore
	userID uint
	err    error
}

func (s brokenUserStore) ListRecurring(ctx context.Context, userID uint) ([]model.Task, error) {
	if userID == s.userID {
		return nil, s.err
	}
	return s.TaskStore.ListRecurring(ctx, userID)
}

func TestFillAllWindows_FailingUserDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	db, err := repository.NewDB(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	users := repository.NewUserRepository(db)
	tasks := repository.NewTaskRepository(db)
	first, _, err := users.UpsertFromTelegram(ctx, 100, "Ann", "", "ann")
	require.NoError(t, err)
	second, _, err := users.UpsertFromTelegram(ctx, 200, "Bob", "", "bob")
	require.NoError(t, err)

	now := time.Date(2025, time.June, 10, 10, 0, 0, 0, time.UTC)
	today := model.DateOf(now)
	for _, u := range []*model.User{first, second} {
		id := uuid.NewString()
		require.NoError(t, tasks.Create(ctx, &model.Task{
			ID:                 id,
			UserID:             u.ID,
			Name:               "Stretch",
			Priority:           model.PriorityLow,
			DueDate:            model.DatePtr(today),
			Repeat:             model.RepeatDaily,
			RepeatSeriesID:     model.StringPtr(id),
			RepeatOriginalDate: model.DatePtr(today),
			Status:             model.TaskActive,
		}))
	}

	boom := errors.New("disk I/O error")
	store := brokenUserStore{TaskStore: tasks, userID: first.ID, err: boom}
	repeat := service.NewRepeatService(store, zap.NewNop(), service.DefaultWindowDays,
		service.WithClock(func() time.Time { return now }), service.WithLocation(time.UTC))

	core, logs := observer.New(zapcore.WarnLevel)
	err = fillAllWindows(ctx, users, repeat, zap.New(core))
	require.ErrorIs(t, err, boom)

	recurring, err := tasks.ListRecurring(ctx, second.ID)
	require.NoError(t, err)
	assert.Len(t, recurring, 30, "second user is filled despite the first failing")

	entries := logs.FilterMessage("fill repeat window failed").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, first.ID, entries[0].ContextMap()["user_id"])
}
