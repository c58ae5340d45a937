package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"daily-planner/internal/model"
)

// CategoryLister lists a user's categories.
type CategoryLister interface {
	ListByUser(ctx context.Context, userID uint) ([]model.Category, error)
}

// DigestService builds human-readable summaries for daily notifications.
type DigestService struct {
	tasks      TaskStore
	categories CategoryLister
	opts       options
}

func NewDigestService(tasks TaskStore, categories CategoryLister, opts ...Option) *DigestService {
	return &DigestService{tasks: tasks, categories: categories, opts: newOptions(opts)}
}

// DailySummary renders today's tasks and the overdue ones as Telegram HTML.
func (s *DigestService) DailySummary(ctx context.Context, userID uint) (string, error) {
	now := s.opts.now().In(s.opts.loc)
	today := model.DateOf(now)

	todays, err := s.tasks.ListDueBetween(ctx, userID, today, today, model.TaskActive, model.TaskCompleted)
	if err != nil {
		return "", err
	}
	overdue, err := s.tasks.ListOverdue(ctx, userID, today)
	if err != nil {
		return "", err
	}

	categories, err := s.categories.ListByUser(ctx, userID)
	if err != nil {
		return "", err
	}
	catNames := make(map[uint]string)
	for _, cat := range categories {
		catNames[cat.ID] = cat.Name
	}

	var pending, done []model.Task
	for _, task := range todays {
		if task.Status == model.TaskCompleted {
			done = append(done, task)
			continue
		}
		pending = append(pending, task)
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Daily summary</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("Monday, Jan 2")))

	builder.WriteString("🔥 <b>Today</b>\n")
	if len(pending) == 0 {
		builder.WriteString("Nothing planned.\n")
	} else {
		for _, task := range SortByPriority(pending) {
			builder.WriteString(formatTask(task, catNames, today))
		}
	}
	if len(done) > 0 {
		builder.WriteString(fmt.Sprintf("✅ %d already done\n", len(done)))
	}

	if len(overdue) > 0 {
		builder.WriteString("\n⚠️ <b>Overdue</b>\n")
		for _, task := range overdue {
			builder.WriteString(formatTask(task, catNames, today))
		}
	}

	return strings.TrimSpace(builder.String()), nil
}

func formatTask(task model.Task, catNames map[uint]string, today model.Date) string {
	var sb strings.Builder

	icon := "🟢"
	switch task.Priority {
	case model.PriorityHigh:
		icon = "🔴"
	case model.PriorityMedium:
		icon = "🟡"
	}
	if task.Status == model.TaskCompleted {
		icon = "✅"
	}

	title := html.EscapeString(strings.TrimSpace(task.Name))
	sb.WriteString(fmt.Sprintf("%s %s", icon, title))
	if task.IsRecurring() {
		sb.WriteString(" ♻️")
	}

	if task.CategoryID != nil {
		if name, ok := catNames[*task.CategoryID]; ok {
			trimmed := strings.TrimSpace(name)
			if trimmed != "" {
				sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", html.EscapeString(trimmed)))
			}
		}
	}

	if task.DueDate != nil && task.DueDate.Before(today) {
		sb.WriteString(fmt.Sprintf("\n   ⏰ was due %s · %d d. ago", task.DueDate, task.DueDate.DaysUntil(today)))
	} else if task.DueTime != nil {
		sb.WriteString(fmt.Sprintf("\n   ⏰ at %s", *task.DueTime))
	}

	if task.Description != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(strings.TrimSpace(task.Description))))
	}

	sb.WriteByte('\n')
	return sb.String()
}

// FormatDue renders an occurrence's due date and time, "" when it has none.
func FormatDue(task model.Task, loc *time.Location) string {
	if task.DueDate == nil {
		return ""
	}
	if task.DueTime == nil {
		return task.DueDate.In(loc).Format("Mon, Jan 2")
	}
	hour, minute, err := model.ParseClock(*task.DueTime)
	if err != nil {
		return task.DueDate.In(loc).Format("Mon, Jan 2")
	}
	return task.DueDate.At(hour, minute, loc).Format("Mon, Jan 2 15:04")
}
