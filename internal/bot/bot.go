package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"daily-planner/internal/model"
	"daily-planner/internal/repository"
	"daily-planner/internal/service"
)

const (
	cbCompletePrefix = "complete:"
	cbDeletePrefix   = "delete:"
	cbConfirmPrefix  = "confirm:"
	cbCancelPrefix   = "cancel:"
	cbSnooze15Prefix = "snooze15:"
	cbSnooze60Prefix = "snooze60:"
	cbSnoozeTmPrefix = "snoozetm:"
	cbDismissPrefix  = "dismiss:"
	cbSeriesPrefix   = "series:"
)

type confirmationAction int

const (
	actionComplete confirmationAction = iota
	actionDelete
)

type confirmationRequest struct {
	taskID string
	action confirmationAction
}

// pendingEdit is an edit of a series occurrence waiting for the user to pick
// which occurrences it applies to.
type pendingEdit struct {
	taskID string
	edit   service.TaskEdit
}

// Services groups what the bot calls into.
type Services struct {
	Users      *repository.UserRepository
	Categories *service.CategoryService
	Tasks      *service.TaskService
	Reminders  *service.ReminderService
	Repeat     *service.RepeatService
	Digest     *service.DigestService
	Feed       *service.ReminderFeed
}

// Bot aggregates Telegram API with services. It is also the push delivery
// channel for reminders.
type Bot struct {
	api *tgbotapi.BotAPI
	svc Services
	log *zap.Logger
	loc *time.Location

	conversations map[int64]*conversationState
	confirmations map[int64]confirmationRequest
	edits         map[int64]pendingEdit
	panels        map[int64]func()
	mu            sync.Mutex
}

func New(token string, svc Services, loc *time.Location, log *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log = log.Named("bot")
	log.Info("bot authorized", zap.String("account", api.Self.UserName))

	return &Bot{
		api:           api,
		svc:           svc,
		log:           log,
		loc:           loc,
		conversations: make(map[int64]*conversationState),
		confirmations: make(map[int64]confirmationRequest),
		edits:         make(map[int64]pendingEdit),
		panels:        make(map[int64]func()),
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.log.Error("handle callback", zap.Error(err))
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.log.Error("handle message", zap.Error(err))
			}
		}
	}

	b.closePanels()
	return ctx.Err()
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		b.clearEdit(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Input cancelled. Start again whenever you like.")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		b.log.Debug("command", zap.Int64("from", msg.From.ID), zap.String("command", msg.Command()))
		return b.handleCommand(ctx, msg)
	}

	if pending, ok := b.getConfirmation(msg.From.ID); ok {
		return b.handleConfirmationResponse(ctx, msg, pending)
	}

	if state := b.getConversation(msg.From.ID); state != nil {
		b.log.Debug("conversation step", zap.Int64("from", msg.From.ID), zap.Int("stage", int(state.stage)))
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "I did not get that. Send /newtask to add a task or /help for the command list.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "newtask":
		return b.startNewTaskConversation(ctx, msg)
	case "tasks":
		return b.handleListTasks(ctx, msg)
	case "complete":
		return b.handleComplete(ctx, msg)
	case "delete":
		return b.handleDelete(ctx, msg)
	case "restore":
		return b.handleRestore(ctx, msg)
	case "move":
		return b.handleMove(ctx, msg)
	case "overdue":
		return b.handleOverdue(ctx, msg)
	case "rename":
		return b.handleRename(ctx, msg)
	case "priority":
		return b.handlePriority(ctx, msg)
	case "stop":
		return b.handleStop(ctx, msg)
	case "reminders":
		return b.handleReminders(ctx, msg)
	case "panel":
		return b.handlePanel(ctx, msg)
	case "categories":
		return b.handleCategories(ctx, msg)
	case "digest":
		return b.handleDigest(ctx, msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		b.clearEdit(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Input cancelled.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	// A new session tops up every series window before anything is shown.
	if _, err := b.svc.Repeat.FillWindowForAllSeries(ctx, user.ID); err != nil {
		b.log.Warn("fill series windows", zap.Uint("user_id", user.ID), zap.Error(err))
	}

	name := normalizeTitle(msg.From.FirstName)
	if name == "" {
		name = "there"
	}

	text := fmt.Sprintf("👋 Hi, %s!\n<b>I am your daily planner: tasks, repeats and reminders.</b>\n\n%s", escape(name), commandList)
	return b.sendText(msg.Chat.ID, text)
}

const commandList = "Commands:\n" +
	"• /newtask - add a task step by step\n" +
	"• /tasks [today|week|month|overdue] - show tasks\n" +
	"• /complete &lt;id&gt; - mark a task done\n" +
	"• /delete &lt;id&gt; - delete a task, /restore &lt;id&gt; brings it back\n" +
	"• /move &lt;id&gt; &lt;date&gt; [HH:MM] - reschedule a task\n" +
	"• /overdue - move every overdue task to today\n" +
	"• /rename &lt;id&gt; &lt;name&gt;, /priority &lt;id&gt; &lt;P1|P2|P3&gt; - edit a task\n" +
	"• /stop &lt;id&gt; - stop a task from repeating\n" +
	"• /reminders - active reminders, /panel - live reminder panel\n" +
	"• /categories - your categories\n" +
	"• /digest [on|off|now] - daily summary\n" +
	"• /cancel - cancel the current input"

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	return b.sendText(msg.Chat.ID, "ℹ️ <b>Help</b>\n"+commandList)
}

func (b *Bot) handleCategories(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	categories, err := b.svc.Categories.List(ctx, user.ID)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not load categories: %s", escape(err.Error())))
	}
	if len(categories) == 0 {
		return b.sendText(msg.Chat.ID, "No categories yet. Add one while creating a task.")
	}
	return b.sendText(msg.Chat.ID, formatCategories(categories))
}

func (b *Bot) handleDigest(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	switch arg := strings.ToLower(commandArgs(msg)); arg {
	case "on", "off":
		if err := b.svc.Users.SetDigestEnabled(ctx, user.ID, arg == "on"); err != nil {
			return err
		}
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Daily summary turned %s.", arg))
	case "", "now":
		text, err := b.svc.Digest.DailySummary(ctx, user.ID)
		if err != nil {
			return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not build the summary: %s", escape(err.Error())))
		}
		return b.sendText(msg.Chat.ID, text)
	default:
		return b.sendText(msg.Chat.ID, "Usage: /digest on, /digest off or /digest now")
	}
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	switch menuAlias(msg.Text) {
	case menuLabelNewTask:
		return true, b.startNewTaskConversation(ctx, msg)
	case menuLabelTasks:
		return true, b.sendTaskList(ctx, msg.Chat.ID, msg.From, viewToday)
	case menuLabelReminders:
		return true, b.handleReminders(ctx, msg)
	case menuLabelHelp:
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}

	chatID := cb.Message.Chat.ID
	data := cb.Data
	b.log.Debug("callback", zap.Int64("from", cb.From.ID), zap.String("data", data))

	switch {
	case strings.HasPrefix(data, cbCompletePrefix):
		b.ack(cb, "")
		return b.askConfirmation(ctx, chatID, cb.From, strings.TrimPrefix(data, cbCompletePrefix), actionComplete)
	case strings.HasPrefix(data, cbDeletePrefix):
		b.ack(cb, "")
		return b.askConfirmation(ctx, chatID, cb.From, strings.TrimPrefix(data, cbDeletePrefix), actionDelete)
	case strings.HasPrefix(data, cbConfirmPrefix):
		b.ack(cb, "")
		b.clearConfirmation(cb.From.ID)
		return b.completeTaskAndRefresh(ctx, chatID, cb.From, strings.TrimPrefix(data, cbConfirmPrefix))
	case strings.HasPrefix(data, cbCancelPrefix):
		b.ack(cb, "Cancelled")
		b.clearConfirmation(cb.From.ID)
		return nil
	case strings.HasPrefix(data, cbSnooze15Prefix):
		return b.snooze(ctx, cb, strings.TrimPrefix(data, cbSnooze15Prefix), service.SnoozeFifteenMinutes)
	case strings.HasPrefix(data, cbSnooze60Prefix):
		return b.snooze(ctx, cb, strings.TrimPrefix(data, cbSnooze60Prefix), service.SnoozeOneHour)
	case strings.HasPrefix(data, cbSnoozeTmPrefix):
		return b.snooze(ctx, cb, strings.TrimPrefix(data, cbSnoozeTmPrefix), service.SnoozeTomorrow)
	case strings.HasPrefix(data, cbDismissPrefix):
		return b.dismiss(ctx, cb, strings.TrimPrefix(data, cbDismissPrefix))
	case strings.HasPrefix(data, cbSeriesPrefix):
		choice, taskID, ok := parseSeriesCallback(data)
		if !ok {
			b.ack(cb, "")
			return nil
		}
		b.ack(cb, "")
		return b.applyPendingEdit(ctx, chatID, cb.From, taskID, choice)
	default:
		b.ack(cb, "")
		return nil
	}
}

func (b *Bot) ack(cb *tgbotapi.CallbackQuery, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, text)); err != nil {
		b.log.Warn("callback ack", zap.Error(err))
	}
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	user, created, err := b.svc.Users.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
	if err != nil {
		return nil, err
	}
	if created {
		if _, err := b.svc.Categories.List(ctx, user.ID); err != nil {
			b.log.Warn("create default categories", zap.Uint("user_id", user.ID), zap.Error(err))
		}
		b.log.Info("user registered", zap.Uint("user_id", user.ID))
	}
	return user, nil
}

// describeError turns a service error into a short message for the chat.
func describeError(err error) string {
	var partial *service.PartialError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return "Task not found."
	case errors.Is(err, service.ErrNotRecurring):
		return "This task does not repeat."
	case errors.Is(err, service.ErrSnoozeLimitReached):
		return "This reminder cannot be snoozed any more."
	case errors.As(err, &partial):
		return fmt.Sprintf("Saved, but %s failed. Try again later.", partial.Step)
	case errors.Is(err, service.ErrInvalidInput):
		return escape(err.Error())
	default:
		return "Something went wrong: " + escape(err.Error())
	}
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendTextWithRemove(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	if _, err := b.api.Send(msg); err != nil {
		return err
	}
	return b.sendMenuPlaceholder(chatID)
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendMenuPlaceholder(chatID int64) error {
	msg := tgbotapi.NewMessage(chatID, "🔹 Main menu")
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) getConfirmation(userID int64) (confirmationRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.confirmations[userID]
	return req, ok
}

func (b *Bot) setConfirmation(userID int64, req confirmationRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmations[userID] = req
}

func (b *Bot) clearConfirmation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.confirmations, userID)
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}

func (b *Bot) setEdit(userID int64, edit pendingEdit) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.edits[userID] = edit
}

// takeEdit removes and returns the user's pending edit.
func (b *Bot) takeEdit(userID int64) (pendingEdit, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	edit, ok := b.edits[userID]
	delete(b.edits, userID)
	return edit, ok
}

func (b *Bot) clearEdit(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.edits, userID)
}
