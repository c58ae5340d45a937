package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"daily-planner/internal/model"
	"daily-planner/internal/service"
)

type taskView string

const (
	viewToday   taskView = "today"
	viewWeek    taskView = "week"
	viewMonth   taskView = "month"
	viewOverdue taskView = "overdue"
)

func parseView(arg string) (taskView, bool) {
	switch v := taskView(strings.ToLower(strings.TrimSpace(arg))); v {
	case "":
		return viewToday, true
	case viewToday, viewWeek, viewMonth, viewOverdue:
		return v, true
	}
	return "", false
}

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	view, ok := parseView(commandArgs(msg))
	if !ok {
		return b.sendText(msg.Chat.ID, "Usage: /tasks today, week, month or overdue")
	}
	return b.sendTaskList(ctx, msg.Chat.ID, msg.From, view)
}

func (b *Bot) loadView(ctx context.Context, userID uint, view taskView) ([]model.Task, string, error) {
	today := b.svc.Tasks.Today()
	switch view {
	case viewWeek:
		from, to := service.WeekRange(today, weekStart)
		tasks, err := b.svc.Tasks.ListForRange(ctx, userID, from, to)
		return tasks, fmt.Sprintf("Week %s to %s", from, to), err
	case viewMonth:
		from, to := service.MonthRange(today)
		tasks, err := b.svc.Tasks.ListForRange(ctx, userID, from, to)
		return tasks, today.In(b.loc).Format("January 2006"), err
	case viewOverdue:
		tasks, err := b.svc.Tasks.ListOverdue(ctx, userID)
		return tasks, "Overdue", err
	default:
		tasks, err := b.svc.Tasks.ListForDate(ctx, userID, today)
		return tasks, "Today", err
	}
}

func (b *Bot) sendTaskList(ctx context.Context, chatID int64, from *tgbotapi.User, view taskView) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	tasks, title, err := b.loadView(ctx, user.ID, view)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Could not load tasks: %s", escape(err.Error())))
	}
	if len(tasks) == 0 {
		return b.sendText(chatID, fmt.Sprintf("📭 %s: nothing here. Add a task with /newtask.", title))
	}

	catNames, err := b.svc.Categories.Names(ctx, user.ID)
	if err != nil {
		b.log.Warn("load category names", zap.Uint("user_id", user.ID), zap.Error(err))
	}

	groups := groupByCategory(tasks, catNames)

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📋 <b>%s</b>\n", escape(title)))
	builder.WriteString("Tap a button to complete or delete a task.\n\n")

	today := b.svc.Tasks.Today()
	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, group := range groups {
		builder.WriteString(fmt.Sprintf("<b>%s</b>\n", escape(group.name)))
		for _, task := range group.tasks {
			builder.WriteString(formatTaskLine(task, today, b.loc))
			if task.Status != model.TaskActive {
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ "+shortTitle(task.Name, 24), cbCompletePrefix+task.ID),
				tgbotapi.NewInlineKeyboardButtonData("🗑 Delete", cbDeletePrefix+task.ID),
			))
		}
		builder.WriteByte('\n')
	}
	if view == viewOverdue {
		builder.WriteString("Send /overdue to move all of them to today.")
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ParseMode = tgbotapi.ModeHTML
	if len(buttons) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	}
	_, err = b.api.Send(msg)
	return err
}

type categoryGroup struct {
	name  string
	tasks []model.Task
}

// groupByCategory sorts tasks into named category groups, "No category" last.
// Within a group tasks are ordered by due date, due time, then priority.
func groupByCategory(tasks []model.Task, catNames map[uint]string) []categoryGroup {
	index := make(map[string]int)
	var groups []categoryGroup
	for _, task := range tasks {
		name := noCategory
		if task.CategoryID != nil {
			if label, ok := catNames[*task.CategoryID]; ok && strings.TrimSpace(label) != "" {
				name = strings.TrimSpace(label)
			}
		}
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, categoryGroup{name: name})
		}
		groups[i].tasks = append(groups[i].tasks, task)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].name == noCategory {
			return false
		}
		if groups[j].name == noCategory {
			return true
		}
		return groups[i].name < groups[j].name
	})
	for _, g := range groups {
		sort.SliceStable(g.tasks, func(i, j int) bool {
			a, b := g.tasks[i], g.tasks[j]
			if ad, bd := dueKey(a), dueKey(b); ad != bd {
				return ad < bd
			}
			return a.Priority.Rank() < b.Priority.Rank()
		})
	}
	return groups
}

// dueKey sorts undated tasks last and untimed tasks after timed ones on the same day.
func dueKey(t model.Task) string {
	if t.DueDate == nil {
		return "~"
	}
	clock := "99:99"
	if t.DueTime != nil {
		clock = *t.DueTime
	}
	return t.DueDate.String() + " " + clock
}

func (b *Bot) handleComplete(ctx context.Context, msg *tgbotapi.Message) error {
	taskID := commandArgs(msg)
	if taskID == "" {
		return b.sendText(msg.Chat.ID, "Send the task id: /complete &lt;id&gt;")
	}
	return b.completeTaskAndRefresh(ctx, msg.Chat.ID, msg.From, taskID)
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	taskID := commandArgs(msg)
	if taskID == "" {
		return b.sendText(msg.Chat.ID, "Send the task id: /delete &lt;id&gt;")
	}
	return b.deleteTaskAndRefresh(ctx, msg.Chat.ID, msg.From, taskID)
}

func (b *Bot) handleRestore(ctx context.Context, msg *tgbotapi.Message) error {
	taskID := commandArgs(msg)
	if taskID == "" {
		return b.sendText(msg.Chat.ID, "Send the task id: /restore &lt;id&gt;")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	task, err := b.svc.Tasks.RestoreTask(ctx, user.ID, taskID)
	if err != nil {
		return b.sendText(msg.Chat.ID, describeError(err))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("♻️ Task «%s» restored.", escape(normalizeTitle(task.Name))))
}

func (b *Bot) handleMove(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.Fields(commandArgs(msg))
	if len(args) < 2 || len(args) > 3 {
		return b.sendText(msg.Chat.ID, "Usage: /move &lt;id&gt; &lt;date&gt; [HH:MM]")
	}
	due, err := parseDate(args[1], b.svc.Tasks.Today())
	if err != nil {
		return b.sendText(msg.Chat.ID, "I cannot read that date. Use <code>2025-11-30</code>, today or tomorrow.")
	}
	var dueTime *string
	if len(args) == 3 {
		dueTime = model.StringPtr(args[2])
	}

	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	task, err := b.svc.Tasks.RescheduleTask(ctx, user.ID, args[0], due, dueTime, nil)
	if err != nil && task == nil {
		return b.sendText(msg.Chat.ID, describeError(err))
	}
	text := fmt.Sprintf("📅 «%s» moved to %s.", escape(normalizeTitle(task.Name)), service.FormatDue(*task, b.loc))
	if err != nil {
		text += "\n⚠️ " + describeError(err)
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleOverdue(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	n, err := b.svc.Tasks.RescheduleOverdue(ctx, user.ID)
	if err != nil {
		return b.sendText(msg.Chat.ID, describeError(err))
	}
	if n == 0 {
		return b.sendText(msg.Chat.ID, "Nothing is overdue. 🎉")
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("📅 Moved %d overdue task(s) to today.", n))
}

func (b *Bot) handleRename(ctx context.Context, msg *tgbotapi.Message) error {
	parts := strings.SplitN(commandArgs(msg), " ", 2)
	if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
		return b.sendText(msg.Chat.ID, "Usage: /rename &lt;id&gt; &lt;new name&gt;")
	}
	name := strings.TrimSpace(parts[1])
	return b.requestEdit(ctx, msg.Chat.ID, msg.From, parts[0], service.TaskEdit{Fields: service.SeriesUpdate{Name: &name}})
}

func (b *Bot) handlePriority(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.Fields(commandArgs(msg))
	if len(args) != 2 {
		return b.sendText(msg.Chat.ID, "Usage: /priority &lt;id&gt; &lt;P1|P2|P3&gt;")
	}
	priority, err := parsePriority(args[1])
	if err != nil {
		return b.sendText(msg.Chat.ID, "Priority must be P1, P2 or P3.")
	}
	return b.requestEdit(ctx, msg.Chat.ID, msg.From, args[0], service.TaskEdit{Fields: service.SeriesUpdate{Priority: &priority}})
}

func (b *Bot) handleStop(ctx context.Context, msg *tgbotapi.Message) error {
	taskID := commandArgs(msg)
	if taskID == "" {
		return b.sendText(msg.Chat.ID, "Send the task id: /stop &lt;id&gt;")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	res, err := b.svc.Tasks.StopSeries(ctx, user.ID, taskID)
	if err != nil {
		return b.sendText(msg.Chat.ID, describeError(err))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("⏹ The task no longer repeats. Removed %d upcoming occurrence(s).", res.Deleted))
}

// requestEdit applies edit directly to standalone tasks and asks which
// occurrences to change for series occurrences.
func (b *Bot) requestEdit(ctx context.Context, chatID int64, from *tgbotapi.User, taskID string, edit service.TaskEdit) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}
	task, err := b.svc.Tasks.GetTask(ctx, user.ID, taskID)
	if err != nil {
		return b.sendText(chatID, describeError(err))
	}
	if !service.RequiresEditChoice(*task) {
		return b.runEdit(ctx, chatID, user.ID, taskID, edit, service.EditThis)
	}
	b.setEdit(from.ID, pendingEdit{taskID: taskID, edit: edit})
	text := fmt.Sprintf("♻️ «%s» repeats. Apply the change to:", escape(normalizeTitle(task.Name)))
	return b.sendWithReplyMarkup(chatID, text, seriesChoiceKeyboard(taskID))
}

func (b *Bot) applyPendingEdit(ctx context.Context, chatID int64, from *tgbotapi.User, taskID string, choice service.EditChoice) error {
	pending, ok := b.takeEdit(from.ID)
	if !ok || pending.taskID != taskID {
		return b.sendText(chatID, "That edit has expired. Send the command again.")
	}
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}
	return b.runEdit(ctx, chatID, user.ID, taskID, pending.edit, choice)
}

func (b *Bot) runEdit(ctx context.Context, chatID int64, userID uint, taskID string, edit service.TaskEdit, choice service.EditChoice) error {
	res, err := b.svc.Tasks.EditTask(ctx, userID, taskID, edit, choice)
	if err != nil && (res == nil || res.Task == nil) {
		return b.sendText(chatID, describeError(err))
	}
	b.log.Info("task edited", zap.String("task_id", taskID), zap.String("choice", string(res.Choice)), zap.Int64("updated", res.Updated))

	text := formatEditResult(*res)
	if err != nil {
		text += "\n⚠️ " + describeError(err)
	}
	return b.sendText(chatID, text)
}

func (b *Bot) askConfirmation(ctx context.Context, chatID int64, from *tgbotapi.User, taskID string, action confirmationAction) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}
	task, err := b.svc.Tasks.GetTask(ctx, user.ID, taskID)
	if err != nil {
		return b.sendText(chatID, describeError(err))
	}

	var text string
	switch {
	case action == actionDelete:
		text = fmt.Sprintf("Delete «%s»?", escape(normalizeTitle(task.Name)))
	case task.Status == model.TaskCompleted:
		return b.sendText(chatID, "This task is already done.")
	default:
		text = fmt.Sprintf("Mark «%s» as done?", escape(normalizeTitle(task.Name)))
	}
	b.setConfirmation(from.ID, confirmationRequest{taskID: task.ID, action: action})
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard())
}

func (b *Bot) handleConfirmationResponse(ctx context.Context, msg *tgbotapi.Message, req confirmationRequest) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case isConfirmInput(text):
		b.clearConfirmation(msg.From.ID)
		if req.action == actionDelete {
			return b.deleteTaskAndRefresh(ctx, msg.Chat.ID, msg.From, req.taskID)
		}
		return b.completeTaskAndRefresh(ctx, msg.Chat.ID, msg.From, req.taskID)
	case isCancelInput(text):
		b.clearConfirmation(msg.From.ID)
		return b.sendMenuPlaceholder(msg.Chat.ID)
	default:
		prompt := "Confirm or cancel completing the task."
		if req.action == actionDelete {
			prompt = "Confirm or cancel deleting the task."
		}
		return b.sendWithReplyMarkup(msg.Chat.ID, prompt, confirmKeyboard())
	}
}

func (b *Bot) completeTaskAndRefresh(ctx context.Context, chatID int64, from *tgbotapi.User, taskID string) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	task, err := b.svc.Tasks.GetTask(ctx, user.ID, taskID)
	if err != nil {
		return b.sendTextWithRemove(chatID, describeError(err))
	}
	if task.Status == model.TaskCompleted {
		return b.sendTextWithRemove(chatID, "This task was already done.")
	}

	task, err = b.svc.Tasks.CompleteTask(ctx, user.ID, taskID)
	var partial *service.PartialError
	if err != nil && !errors.As(err, &partial) {
		return b.sendTextWithRemove(chatID, describeError(err))
	}

	info := fmt.Sprintf("✅ «%s» is done.", escape(normalizeTitle(task.Name)))
	if task.IsRecurring() {
		info = fmt.Sprintf("♻️ «%s» is done for %s. The next one stays on the list.", escape(normalizeTitle(task.Name)), service.FormatDue(*task, b.loc))
	}
	if partial != nil {
		info += "\n⚠️ " + describeError(partial)
	}
	b.log.Info("task completed", zap.String("task_id", task.ID), zap.Uint("user_id", user.ID))
	if err := b.sendTextWithRemove(chatID, info); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID, from, viewToday)
}

func (b *Bot) deleteTaskAndRefresh(ctx context.Context, chatID int64, from *tgbotapi.User, taskID string) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	task, err := b.svc.Tasks.DeleteTask(ctx, user.ID, taskID)
	var partial *service.PartialError
	if err != nil && !errors.As(err, &partial) {
		return b.sendTextWithRemove(chatID, describeError(err))
	}

	b.log.Info("task deleted", zap.String("task_id", task.ID), zap.Uint("user_id", user.ID))
	info := fmt.Sprintf("🗑 «%s» deleted. /restore %s brings it back.", escape(normalizeTitle(task.Name)), task.ID)
	if partial != nil {
		info += "\n⚠️ " + describeError(partial)
	}
	if err := b.sendTextWithRemove(chatID, info); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID, from, viewToday)
}
