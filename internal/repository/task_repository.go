package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"daily-planner/internal/model"
)

// TaskRepository stores task occurrences.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// CreateBatch inserts all tasks in one transaction.
func (r *TaskRepository) CreateBatch(ctx context.Context, tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&tasks, maxBatchRows).Error
	})
	if err != nil {
		return fmt.Errorf("create task batch: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, userID uint, taskID string) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).First(&task).Error
	switch {
	case err == nil:
		return &task, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("find task: %w", err)
	}
}

// Update applies column updates to one task.
func (r *TaskRepository) Update(ctx context.Context, userID uint, taskID string, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ? AND id = ?", userID, taskID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSeries returns the occurrences of a series in the given statuses by due date.
func (r *TaskRepository) ListSeries(ctx context.Context, userID uint, seriesID string, statuses ...model.TaskStatus) ([]model.Task, error) {
	var tasks []model.Task
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND repeat_series_id = ? AND status IN ?", userID, seriesID, statusStrings(statuses)).
		Order("due_date ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	return tasks, nil
}

// ListRecurring returns every active or completed occurrence with a repeat mode.
func (r *TaskRepository) ListRecurring(ctx context.Context, userID uint) ([]model.Task, error) {
	var tasks []model.Task
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND repeat IN ? AND status IN ?", userID,
			statusStrings(model.RecurringModes),
			statusStrings([]model.TaskStatus{model.TaskActive, model.TaskCompleted})).
		Order("due_date ASC, created_at ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list recurring: %w", err)
	}
	return tasks, nil
}

// UpdateActiveFrom applies updates to active occurrences of a series due on or
// after from, in one statement.
func (r *TaskRepository) UpdateActiveFrom(ctx context.Context, userID uint, seriesID string, from model.Date, updates map[string]any) (int64, error) {
	updates["updated_at"] = time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ? AND repeat_series_id = ? AND status = ? AND due_date >= ?",
			userID, seriesID, string(model.TaskActive), from).
		Updates(updates)
	if result.Error != nil {
		return 0, fmt.Errorf("update future occurrences: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// SoftDeleteActiveAfter marks active occurrences of a series due strictly after
// after as deleted, skipping excludeID. It returns the affected ids.
func (r *TaskRepository) SoftDeleteActiveAfter(ctx context.Context, userID uint, seriesID string, after model.Date, excludeID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Task{}).
			Where("user_id = ? AND repeat_series_id = ? AND status = ? AND due_date > ? AND id <> ?",
				userID, seriesID, string(model.TaskActive), after, excludeID).
			Order("due_date ASC").
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, part := range chunk(ids, maxBatchRows) {
			if err := tx.Model(&model.Task{}).Where("id IN ?", part).
				Updates(map[string]any{"status": string(model.TaskDeleted), "updated_at": now}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("soft delete future occurrences: %w", err)
	}
	return ids, nil
}

// ListDueBetween returns occurrences due within [from, to] in the given statuses.
func (r *TaskRepository) ListDueBetween(ctx context.Context, userID uint, from, to model.Date, statuses ...model.TaskStatus) ([]model.Task, error) {
	var tasks []model.Task
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND due_date >= ? AND due_date <= ? AND status IN ?", userID, from, to, statusStrings(statuses)).
		Order("due_date ASC, due_time ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list tasks by date: %w", err)
	}
	return tasks, nil
}

// ListOverdue returns active occurrences due before the given day.
func (r *TaskRepository) ListOverdue(ctx context.Context, userID uint, before model.Date) ([]model.Task, error) {
	var tasks []model.Task
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND due_date < ?", userID, string(model.TaskActive), before).
		Order("due_date ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list overdue tasks: %w", err)
	}
	return tasks, nil
}

// RescheduleMany moves tasks to a new due date in one transaction.
func (r *TaskRepository) RescheduleMany(ctx context.Context, userID uint, taskIDs []string, due model.Date) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, part := range chunk(taskIDs, maxBatchRows) {
			result := tx.Model(&model.Task{}).
				Where("user_id = ? AND id IN ?", userID, part).
				Updates(map[string]any{"due_date": due, "updated_at": now})
			if result.Error != nil {
				return result.Error
			}
			total += result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reschedule tasks: %w", err)
	}
	return total, nil
}
