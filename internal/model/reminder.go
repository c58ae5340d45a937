package model

import "time"

// MaxSnoozeCount bounds how many times one reminder may be snoozed.
const MaxSnoozeCount = 5

type ReminderStatus string

const (
	ReminderScheduled ReminderStatus = "scheduled"
	ReminderSent      ReminderStatus = "sent"
	ReminderSnoozed   ReminderStatus = "snoozed"
	ReminderDismissed ReminderStatus = "dismissed"
	ReminderCancelled ReminderStatus = "cancelled"
)

// Terminal reports whether the reminder can never fire again.
func (s ReminderStatus) Terminal() bool {
	return s == ReminderDismissed || s == ReminderCancelled
}

// ReminderType selects the delivery channel.
type ReminderType string

const (
	ReminderPush  ReminderType = "push"
	ReminderInApp ReminderType = "in_app"
	ReminderBoth  ReminderType = "both"
)

// ReminderOffset asks for a reminder OffsetMinutes before the due date-time.
type ReminderOffset struct {
	OffsetMinutes int
	Type          ReminderType
}

// Reminder is a single scheduled notification for a task occurrence.
type Reminder struct {
	ID            string `gorm:"primaryKey"`
	UserID        uint   `gorm:"index"`
	TaskID        string `gorm:"index"`
	TaskName      string
	ScheduledAt   time.Time `gorm:"index"`
	OffsetMinutes int
	Status        ReminderStatus `gorm:"index"`
	SnoozedUntil  *time.Time
	SnoozeCount   int
	Type          ReminderType
	SentAt        *time.Time
	CreatedAt     time.Time
}
