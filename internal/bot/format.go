package bot

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"daily-planner/internal/model"
	"daily-planner/internal/notify"
	"daily-planner/internal/service"
)

const (
	noCategory    = "📁 No category"
	iconDefault   = "🟢"
	iconDue       = "⏳"
	iconOverdue   = "⚠️"
	iconDone      = "✅"
	iconRecurring = "♻️"

	weekStart = time.Monday
)

func commandArgs(msg *tgbotapi.Message) string {
	return strings.TrimSpace(msg.CommandArguments())
}

func menuAlias(text string) string {
	value := strings.TrimSpace(strings.ToLower(text))
	for _, label := range []string{menuLabelNewTask, menuLabelTasks, menuLabelReminders, menuLabelHelp} {
		if value == strings.ToLower(label) {
			return label
		}
	}
	return ""
}

// parseSeriesCallback splits "series:<choice>:<task id>".
func parseSeriesCallback(data string) (service.EditChoice, string, bool) {
	rest, ok := strings.CutPrefix(data, cbSeriesPrefix)
	if !ok {
		return "", "", false
	}
	raw, taskID, ok := strings.Cut(rest, ":")
	choice := service.EditChoice(raw)
	if !ok || taskID == "" || !choice.Valid() {
		return "", "", false
	}
	return choice, taskID, true
}

func parsePriority(text string) (model.Priority, error) {
	value := strings.ToUpper(strings.TrimSpace(text))
	if len(value) == 1 {
		value = "P" + value
	}
	p := model.Priority(value)
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority %q", text)
	}
	return p, nil
}

// parseDate accepts "today", "tomorrow" or YYYY-MM-DD.
func parseDate(text string, today model.Date) (model.Date, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "today":
		return today, nil
	case "tomorrow":
		return today.AddDays(1), nil
	}
	return model.ParseDate(strings.TrimSpace(text))
}

// parseOffsets reads minute offsets separated by commas or spaces. Duplicates
// are dropped, order is kept.
func parseOffsets(text string) ([]model.ReminderOffset, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool { return r == ',' || unicode.IsSpace(r) })
	if len(fields) == 0 {
		return nil, errors.New("no offsets given")
	}
	seen := make(map[int]bool, len(fields))
	offsets := make([]model.ReminderOffset, 0, len(fields))
	for _, f := range fields {
		minutes, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number of minutes", f)
		}
		if minutes < 0 {
			return nil, fmt.Errorf("offset %d is negative", minutes)
		}
		if seen[minutes] {
			continue
		}
		seen[minutes] = true
		offsets = append(offsets, model.ReminderOffset{OffsetMinutes: minutes, Type: model.ReminderPush})
	}
	return offsets, nil
}

// stripCategoryIcon turns a keyboard label like "💼 Work" into "Work".
func stripCategoryIcon(text string) string {
	trimmed := strings.TrimSpace(text)
	name := strings.TrimSpace(strings.TrimLeftFunc(trimmed, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}))
	if name == "" {
		return trimmed
	}
	return name
}

func formatOffsetHints() string {
	hints := make([]string, 0, len(service.OffsetOptions))
	for _, o := range service.OffsetOptions {
		hints = append(hints, fmt.Sprintf("<code>%d</code> %s", o.Minutes, strings.ToLower(o.Label)))
	}
	return strings.Join(hints, ", ")
}

func formatOffsets(offsets []model.ReminderOffset) string {
	labels := make([]string, 0, len(offsets))
	for _, o := range offsets {
		labels = append(labels, service.FormatOffset(o.OffsetMinutes))
	}
	return strings.Join(labels, ", ")
}

func formatCategories(categories []model.Category) string {
	var builder strings.Builder
	builder.WriteString("📂 <b>Categories</b>\n")
	for _, c := range categories {
		label := strings.TrimSpace(c.Icon + " " + c.Name)
		builder.WriteString(fmt.Sprintf("• %s\n", escape(label)))
	}
	return strings.TrimSpace(builder.String())
}

func formatCreated(task model.Task, offsets []model.ReminderOffset, loc *time.Location) string {
	var summary strings.Builder
	summary.WriteString("✅ <b>Task saved</b>\n")
	summary.WriteString(fmt.Sprintf("• <b>ID:</b> <code>%s</code>\n", task.ID))
	summary.WriteString(fmt.Sprintf("• <b>Name:</b> %s\n", escape(normalizeTitle(task.Name))))
	if task.Description != "" {
		summary.WriteString(fmt.Sprintf("• <b>Description:</b> %s\n", escape(task.Description)))
	}
	summary.WriteString(fmt.Sprintf("• <b>Priority:</b> %s\n", task.Priority))
	if due := service.FormatDue(task, loc); due != "" {
		summary.WriteString(fmt.Sprintf("• <b>Due:</b> %s\n", due))
	}
	if task.IsRecurring() {
		summary.WriteString(fmt.Sprintf("• <b>Repeats:</b> %s\n", task.Repeat))
	}
	if len(offsets) > 0 {
		summary.WriteString(fmt.Sprintf("• <b>Reminders:</b> %s\n", formatOffsets(offsets)))
	}
	return strings.TrimSpace(summary.String())
}

func formatTaskLine(task model.Task, today model.Date, loc *time.Location) string {
	var b strings.Builder

	icon := iconDefault
	switch {
	case task.Status == model.TaskCompleted:
		icon = iconDone
	case task.DueDate != nil && task.DueDate.Before(today):
		icon = iconOverdue
	case task.DueDate != nil && today.DaysUntil(*task.DueDate) <= 1:
		icon = iconDue
	}

	b.WriteString(fmt.Sprintf("%s <b>%s</b> · %s", icon, escape(normalizeTitle(task.Name)), task.Priority))
	if task.IsRecurring() {
		b.WriteString(" " + iconRecurring)
	}
	b.WriteByte('\n')

	b.WriteString(fmt.Sprintf("   <code>%s</code>", task.ID))
	if due := service.FormatDue(task, loc); due != "" {
		b.WriteString(" · " + due)
	}
	b.WriteByte('\n')

	if task.Description != "" {
		b.WriteString(fmt.Sprintf("   📝 %s\n", escape(task.Description)))
	}
	return b.String()
}

func formatEditResult(res service.EditResult) string {
	name := escape(normalizeTitle(res.Task.Name))
	switch res.Choice {
	case service.EditAllFuture:
		return fmt.Sprintf("✏️ «%s» updated in %d occurrence(s).", name, res.Updated)
	case service.EditStopSeries:
		deleted := 0
		if res.Stopped != nil {
			deleted = res.Stopped.Deleted
		}
		return fmt.Sprintf("⏹ «%s» updated and no longer repeats. Removed %d upcoming occurrence(s).", name, deleted)
	default:
		return fmt.Sprintf("✏️ «%s» updated.", name)
	}
}

func formatNotification(n notify.Notification) string {
	return fmt.Sprintf("🔔 <b>%s</b>\n%s", escape(n.Title), escape(n.Body))
}

func formatReminderPanel(reminders []model.Reminder, loc *time.Location) string {
	if len(reminders) == 0 {
		return "🔕 No active reminders."
	}

	var b strings.Builder
	b.WriteString("🔔 <b>Active reminders</b>\n")
	for _, r := range reminders {
		icon := "⏰"
		switch r.Status {
		case model.ReminderSent:
			icon = "📨"
		case model.ReminderSnoozed:
			icon = "💤"
		}
		name := r.TaskName
		if strings.TrimSpace(name) == "" {
			name = "Task"
		}
		b.WriteString(fmt.Sprintf("%s %s · %s · %s", icon, escape(normalizeTitle(name)),
			r.ScheduledAt.In(loc).Format("Mon, Jan 2 15:04"), strings.ToLower(service.FormatOffset(r.OffsetMinutes))))
		if r.SnoozeCount > 0 {
			b.WriteString(fmt.Sprintf(" (snoozed %d×)", r.SnoozeCount))
		}
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	clean = normalizeTitle(clean)
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func escape(s string) string {
	return html.EscapeString(s)
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnSkip) || value == "skip"
}

func isConfirmInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnConfirm) || value == "confirm" || value == "yes"
}

func isCancelInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancel) || value == "cancel" || value == "no"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "cancel input"
}
