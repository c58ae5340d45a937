package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"daily-planner/internal/model"
	"daily-planner/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageName
	stageDescription
	stagePriority
	stageCategory
	stageDate
	stageTime
	stageRepeat
	stageReminders
)

type conversationState struct {
	stage conversationStage
	input service.TaskInput
}

func (b *Bot) startNewTaskConversation(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	b.setConversation(msg.From.ID, &conversationState{stage: stageName})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 New task.\n<b>Step 1:</b> what should it be called?", cancelKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageName:
		if text == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "The name cannot be empty.", cancelKeyboard())
		}
		state.input.Name = text
		state.stage = stageDescription
		return b.sendWithReplyMarkup(msg.Chat.ID, "✏️ Add a short description (or tap Skip).", skipKeyboard())

	case stageDescription:
		if !isSkipInput(text) {
			state.input.Description = text
		}
		state.stage = stagePriority
		return b.sendWithReplyMarkup(msg.Chat.ID, "🎯 Pick a priority. P1 is the most urgent.", priorityKeyboard())

	case stagePriority:
		if !isSkipInput(text) {
			priority, err := parsePriority(text)
			if err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Pick P1, P2 or P3.", priorityKeyboard())
			}
			state.input.Priority = priority
		}
		state.stage = stageCategory
		return b.sendWithReplyMarkup(msg.Chat.ID, "🏷 Pick a category or type your own (or Skip).", categoryKeyboard())

	case stageCategory:
		if !isSkipInput(text) {
			state.input.Category = stripCategoryIcon(text)
		}
		state.stage = stageDate
		return b.sendWithReplyMarkup(msg.Chat.ID, "📅 When is it due? Send <code>today</code>, <code>tomorrow</code> or a date like <code>2025-11-30</code> (or Skip).", dateKeyboard())

	case stageDate:
		if isSkipInput(text) {
			return b.finishConversation(ctx, msg, state.input)
		}
		due, err := parseDate(text, b.svc.Tasks.Today())
		if err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, "I cannot read that date. Use <code>2025-11-30</code>, today or tomorrow.", dateKeyboard())
		}
		state.input.DueDate = model.DatePtr(due)
		state.stage = stageTime
		return b.sendWithReplyMarkup(msg.Chat.ID, "⏰ At what time? Send <code>HH:MM</code> (or Skip).", skipKeyboard())

	case stageTime:
		if !isSkipInput(text) {
			if _, _, err := model.ParseClock(text); err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Use the <code>HH:MM</code> format, for example <code>09:30</code>.", skipKeyboard())
			}
			state.input.DueTime = model.StringPtr(text)
		}
		state.stage = stageRepeat
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔁 Should it repeat?", repeatKeyboard())

	case stageRepeat:
		mode, err := model.ParseRepeatMode(text)
		if isSkipInput(text) {
			mode, err = model.RepeatNone, nil
		}
		if err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Pick none, daily, weekly or monthly.", repeatKeyboard())
		}
		state.input.Repeat = mode
		if state.input.DueTime == nil {
			return b.finishConversation(ctx, msg, state.input)
		}
		state.stage = stageReminders
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔔 Remind you how many minutes before? Send offsets like <code>0, 15, 60</code> (or Skip).\n"+formatOffsetHints(), skipKeyboard())

	case stageReminders:
		if !isSkipInput(text) {
			offsets, err := parseOffsets(text)
			if err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, escape(err.Error())+". Send minutes like <code>0, 15, 60</code>.", skipKeyboard())
			}
			state.input.Reminders = offsets
		}
		return b.finishConversation(ctx, msg, state.input)

	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Input was reset. Try again with /newtask.")
	}
}

func (b *Bot) finishConversation(ctx context.Context, msg *tgbotapi.Message, input service.TaskInput) error {
	b.clearConversation(msg.From.ID)
	return b.finishTaskCreation(ctx, msg.From, input, msg.Chat.ID)
}

func (b *Bot) finishTaskCreation(ctx context.Context, from *tgbotapi.User, input service.TaskInput, chatID int64) error {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return err
	}

	task, err := b.svc.Tasks.CreateTask(ctx, user.ID, input)
	var partial *service.PartialError
	switch {
	case err == nil:
	case errors.As(err, &partial) && task != nil:
		b.log.Warn("task created partially", zap.String("task_id", task.ID), zap.Error(err))
	default:
		return b.sendTextWithRemove(chatID, fmt.Sprintf("Could not save the task: %s", describeError(err)))
	}

	b.log.Info("task created", zap.String("task_id", task.ID), zap.Uint("user_id", user.ID), zap.String("repeat", string(task.Repeat)))

	summary := formatCreated(*task, input.Reminders, b.loc)
	if partial != nil {
		summary += "\n\n⚠️ " + describeError(partial)
	}
	if err := b.sendTextWithRemove(chatID, summary); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID, from, viewToday)
}
