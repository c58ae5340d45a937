// Package notify routes reminder notifications to delivery channels.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"daily-planner/internal/model"
)

// Notification is one reminder ready to be shown to a user.
type Notification struct {
	UserID     uint
	ReminderID string
	TaskID     string
	Title      string
	Body       string
	Type       model.ReminderType
}

// Channel delivers notifications. Implementations may fail on transport or
// permission errors; callers treat a failure as "not delivered".
type Channel interface {
	Deliver(ctx context.Context, n Notification) error
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(ctx context.Context, n Notification) error

func (f ChannelFunc) Deliver(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// ErrNoChannel is returned when a notification type has no configured channel.
var ErrNoChannel = errors.New("no delivery channel configured")

// Router sends push notifications to Push and in-app ones to InApp. Type both
// goes to each channel and fails if any of them fails.
type Router struct {
	Push  Channel
	InApp Channel
}

func (r Router) Deliver(ctx context.Context, n Notification) error {
	switch n.Type {
	case model.ReminderPush, "":
		return deliverVia(ctx, r.Push, "push", n)
	case model.ReminderInApp:
		return deliverVia(ctx, r.InApp, "in_app", n)
	case model.ReminderBoth:
		return errors.Join(
			deliverVia(ctx, r.Push, "push", n),
			deliverVia(ctx, r.InApp, "in_app", n),
		)
	default:
		return fmt.Errorf("unknown reminder type %q", n.Type)
	}
}

func deliverVia(ctx context.Context, ch Channel, name string, n Notification) error {
	if ch == nil {
		return fmt.Errorf("%s: %w", name, ErrNoChannel)
	}
	if err := ch.Deliver(ctx, n); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// LogChannel records notifications in the log. It serves as the in-app
// channel: the reminder panel reads state from the store, so delivery only
// needs to leave a trace.
type LogChannel struct {
	log *zap.Logger
}

func NewLogChannel(log *zap.Logger) *LogChannel {
	return &LogChannel{log: log}
}

func (c *LogChannel) Deliver(_ context.Context, n Notification) error {
	c.log.Info("reminder delivered",
		zap.Uint("user_id", n.UserID),
		zap.String("reminder_id", n.ReminderID),
		zap.String("task_id", n.TaskID),
		zap.String("title", n.Title),
		zap.String("body", n.Body),
	)
	return nil
}
