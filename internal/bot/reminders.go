package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"daily-planner/internal/model"
	"daily-planner/internal/notify"
	"daily-planner/internal/service"
)

// Deliver sends a reminder to the user's Telegram chat with snooze and
// dismiss buttons. It implements notify.Channel.
func (b *Bot) Deliver(ctx context.Context, n notify.Notification) error {
	user, err := b.svc.Users.FindByID(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("find recipient: %w", err)
	}

	msg := tgbotapi.NewMessage(user.TelegramID, formatNotification(n))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = reminderKeyboard(n.ReminderID)
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send reminder: %w", err)
	}
	return nil
}

func (b *Bot) snooze(ctx context.Context, cb *tgbotapi.CallbackQuery, reminderID string, duration service.SnoozeDuration) error {
	user, err := b.ensureUser(ctx, cb.From)
	if err != nil {
		b.ack(cb, "")
		return err
	}

	r, err := b.svc.Reminders.SnoozeWithinLimit(ctx, user.ID, reminderID, duration)
	switch {
	case errors.Is(err, service.ErrSnoozeLimitReached):
		b.ack(cb, fmt.Sprintf("Snoozed %d times already", model.MaxSnoozeCount))
		return nil
	case errors.Is(err, service.ErrInvalidInput):
		b.ack(cb, "This reminder is closed")
		return nil
	case err != nil:
		b.ack(cb, "Could not snooze")
		return err
	}

	until := r.ScheduledAt.In(b.loc).Format("Mon 15:04")
	b.ack(cb, "Snoozed until "+until)
	b.log.Debug("reminder snoozed", zap.String("reminder_id", r.ID), zap.Int("snooze_count", r.SnoozeCount))
	return b.closeReminderMessage(cb, fmt.Sprintf("💤 Snoozed until %s", until))
}

func (b *Bot) dismiss(ctx context.Context, cb *tgbotapi.CallbackQuery, reminderID string) error {
	user, err := b.ensureUser(ctx, cb.From)
	if err != nil {
		b.ack(cb, "")
		return err
	}
	// Ownership check before changing state.
	if _, err := b.svc.Reminders.Get(ctx, user.ID, reminderID); err != nil {
		b.ack(cb, "Reminder not found")
		return nil
	}
	if err := b.svc.Reminders.Dismiss(ctx, reminderID); err != nil {
		b.ack(cb, "Could not dismiss")
		return err
	}
	b.ack(cb, "Dismissed")
	return b.closeReminderMessage(cb, "✔️ Dismissed")
}

// closeReminderMessage appends status to the reminder message and drops its buttons.
func (b *Bot) closeReminderMessage(cb *tgbotapi.CallbackQuery, status string) error {
	edit := tgbotapi.NewEditMessageText(cb.Message.Chat.ID, cb.Message.MessageID, escape(cb.Message.Text)+"\n\n"+status)
	edit.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(edit)
	return err
}

func (b *Bot) handleReminders(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	reminders, err := b.svc.Reminders.ListActive(ctx, user.ID)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not load reminders: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, formatReminderPanel(reminders, b.loc))
}

// handlePanel toggles a live reminder panel: one message that is edited
// whenever the user's active reminders change.
func (b *Bot) handlePanel(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	if b.stopPanel(msg.From.ID) {
		return b.sendText(msg.Chat.ID, "Live panel stopped.")
	}

	chatID := msg.Chat.ID
	messageID := 0
	render := func(reminders []model.Reminder) {
		text := formatReminderPanel(reminders, b.loc)
		if messageID == 0 {
			out := tgbotapi.NewMessage(chatID, text)
			out.ParseMode = tgbotapi.ModeHTML
			sent, err := b.api.Send(out)
			if err != nil {
				b.log.Warn("send reminder panel", zap.Int64("chat_id", chatID), zap.Error(err))
				return
			}
			messageID = sent.MessageID
			return
		}
		edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
		edit.ParseMode = tgbotapi.ModeHTML
		if _, err := b.api.Send(edit); err != nil {
			b.log.Warn("update reminder panel", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}

	cancel := b.svc.Feed.Subscribe(ctx, user.ID, render)
	b.mu.Lock()
	b.panels[msg.From.ID] = cancel
	b.mu.Unlock()
	return nil
}

func (b *Bot) stopPanel(telegramID int64) bool {
	b.mu.Lock()
	cancel, ok := b.panels[telegramID]
	delete(b.panels, telegramID)
	b.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (b *Bot) closePanels() {
	b.mu.Lock()
	panels := b.panels
	b.panels = make(map[int64]func())
	b.mu.Unlock()
	for _, cancel := range panels {
		cancel()
	}
}

// SendDailyDigests sends the daily summary to every user who has it enabled.
func (b *Bot) SendDailyDigests(ctx context.Context) error {
	users, err := b.svc.Users.ListAll(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !user.DigestEnabled {
			continue
		}
		text, err := b.svc.Digest.DailySummary(ctx, user.ID)
		if err != nil {
			b.log.Warn("build summary", zap.Uint("user_id", user.ID), zap.Error(err))
			continue
		}
		if err := b.sendText(user.TelegramID, text); err != nil {
			b.log.Warn("send summary", zap.Int64("telegram_id", user.TelegramID), zap.Error(err))
		}
	}
	return nil
}
