package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"daily-planner/internal/model"
)

var pendingReminderStatuses = []string{string(model.ReminderScheduled), string(model.ReminderSnoozed)}

// ReminderRepository stores reminders. Every timestamp is written in UTC so
// that SQLite's text comparison orders instants correctly.
type ReminderRepository struct {
	db *gorm.DB
}

func NewReminderRepository(db *gorm.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// CreateBatch inserts all reminders in one transaction.
func (r *ReminderRepository) CreateBatch(ctx context.Context, reminders []model.Reminder) error {
	if len(reminders) == 0 {
		return nil
	}
	for i := range reminders {
		normalizeReminder(&reminders[i])
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&reminders, maxBatchRows).Error
	})
	if err != nil {
		return fmt.Errorf("create reminder batch: %w", err)
	}
	return nil
}

func (r *ReminderRepository) FindByID(ctx context.Context, reminderID string) (*model.Reminder, error) {
	var reminder model.Reminder
	err := r.db.WithContext(ctx).Where("id = ?", reminderID).First(&reminder).Error
	switch {
	case err == nil:
		return &reminder, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("find reminder: %w", err)
	}
}

// CancelForTask moves every scheduled or snoozed reminder of the task to cancelled.
func (r *ReminderRepository) CancelForTask(ctx context.Context, taskID string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.Reminder{}).
		Where("task_id = ? AND status IN ?", taskID, pendingReminderStatuses).
		Update("status", string(model.ReminderCancelled))
	if result.Error != nil {
		return 0, fmt.Errorf("cancel reminders: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CancelForTasks cancels pending reminders of several tasks in one transaction.
func (r *ReminderRepository) CancelForTasks(ctx context.Context, taskIDs []string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, part := range chunk(taskIDs, maxBatchRows) {
			result := tx.Model(&model.Reminder{}).
				Where("task_id IN ? AND status IN ?", part, pendingReminderStatuses).
				Update("status", string(model.ReminderCancelled))
			if result.Error != nil {
				return result.Error
			}
			total += result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cancel reminders: %w", err)
	}
	return total, nil
}

// ListDue returns scheduled reminders whose fire time is not after now, oldest first.
func (r *ReminderRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]model.Reminder, error) {
	var reminders []model.Reminder
	q := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", string(model.ReminderScheduled), now.UTC()).
		Order("scheduled_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	return reminders, nil
}

// MarkSent flips a scheduled reminder to sent. It reports false when the
// reminder was no longer scheduled.
func (r *ReminderRepository) MarkSent(ctx context.Context, reminderID string, at time.Time) (bool, error) {
	sentAt := at.UTC()
	result := r.db.WithContext(ctx).Model(&model.Reminder{}).
		Where("id = ? AND status = ?", reminderID, string(model.ReminderScheduled)).
		Updates(map[string]any{"status": string(model.ReminderSent), "sent_at": sentAt})
	if result.Error != nil {
		return false, fmt.Errorf("mark reminder sent: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Reschedule puts a reminder back to scheduled at until, recording the snooze.
func (r *ReminderRepository) Reschedule(ctx context.Context, reminderID string, until time.Time) error {
	at := until.UTC()
	return r.update(ctx, reminderID, map[string]any{
		"status":        string(model.ReminderScheduled),
		"scheduled_at":  at,
		"snoozed_until": at,
	})
}

func (r *ReminderRepository) SetSnoozeCount(ctx context.Context, reminderID string, count int) error {
	return r.update(ctx, reminderID, map[string]any{"snooze_count": count})
}

func (r *ReminderRepository) SetStatus(ctx context.Context, reminderID string, status model.ReminderStatus) error {
	return r.update(ctx, reminderID, map[string]any{"status": string(status)})
}

func (r *ReminderRepository) update(ctx context.Context, reminderID string, updates map[string]any) error {
	result := r.db.WithContext(ctx).Model(&model.Reminder{}).Where("id = ?", reminderID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update reminder: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByStatus returns a user's reminders in the given statuses by fire time.
func (r *ReminderRepository) ListByStatus(ctx context.Context, userID uint, statuses ...model.ReminderStatus) ([]model.Reminder, error) {
	var reminders []model.Reminder
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, statusStrings(statuses)).
		Order("scheduled_at ASC").
		Find(&reminders).Error
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return reminders, nil
}

func (r *ReminderRepository) ListForTask(ctx context.Context, taskID string) ([]model.Reminder, error) {
	var reminders []model.Reminder
	err := r.db.WithContext(ctx).Where("task_id = ?", taskID).Order("scheduled_at ASC").Find(&reminders).Error
	if err != nil {
		return nil, fmt.Errorf("list task reminders: %w", err)
	}
	return reminders, nil
}

// DeleteTerminalBefore hard-deletes up to limit dismissed or cancelled
// reminders created before the cutoff.
func (r *ReminderRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&model.Reminder{}).
			Where("status IN ? AND created_at < ?",
				[]string{string(model.ReminderDismissed), string(model.ReminderCancelled)}, cutoff.UTC()).
			Limit(limit).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		result := tx.Where("id IN ?", ids).Delete(&model.Reminder{})
		deleted = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, fmt.Errorf("delete stale reminders: %w", err)
	}
	return deleted, nil
}

func normalizeReminder(r *model.Reminder) {
	r.ScheduledAt = r.ScheduledAt.UTC()
	if r.SnoozedUntil != nil {
		t := r.SnoozedUntil.UTC()
		r.SnoozedUntil = &t
	}
	if r.SentAt != nil {
		t := r.SentAt.UTC()
		r.SentAt = &t
	}
	if !r.CreatedAt.IsZero() {
		r.CreatedAt = r.CreatedAt.UTC()
	}
}
