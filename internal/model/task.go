package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Priority ranks tasks; P1 is the most urgent.
type Priority string

const (
	PriorityHigh   Priority = "P1"
	PriorityMedium Priority = "P2"
	PriorityLow    Priority = "P3"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Rank orders priorities for sorting, lower first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 3
}

// RepeatMode is how often a task recurs.
type RepeatMode string

const (
	RepeatNone    RepeatMode = "none"
	RepeatDaily   RepeatMode = "daily"
	RepeatWeekly  RepeatMode = "weekly"
	RepeatMonthly RepeatMode = "monthly"
)

// RecurringModes lists every mode that produces further occurrences.
var RecurringModes = []RepeatMode{RepeatDaily, RepeatWeekly, RepeatMonthly}

func ParseRepeatMode(s string) (RepeatMode, error) {
	switch mode := RepeatMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case RepeatNone, RepeatDaily, RepeatWeekly, RepeatMonthly:
		return mode, nil
	case "":
		return RepeatNone, nil
	}
	return "", fmt.Errorf("unknown repeat mode %q", s)
}

// TaskStatus of an occurrence. Deleted is a soft-delete tombstone.
type TaskStatus string

const (
	TaskActive    TaskStatus = "active"
	TaskCompleted TaskStatus = "completed"
	TaskDeleted   TaskStatus = "deleted"
)

// Task is one dated occurrence, standalone or part of a repeat series.
type Task struct {
	ID                 string `gorm:"primaryKey"`
	UserID             uint   `gorm:"index"`
	CategoryID         *uint  `gorm:"index"`
	Name               string
	Description        string
	Priority           Priority
	DueDate            *Date `gorm:"index"`
	DueTime            *string
	Repeat             RepeatMode
	RepeatSeriesID     *string `gorm:"index"`
	RepeatOriginalDate *Date
	Status             TaskStatus `gorm:"index"`
	CompletedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (t Task) IsRecurring() bool {
	return t.Repeat != RepeatNone && t.Repeat != ""
}

// SeriesID returns the series this occurrence belongs to. An occurrence without
// a series id is treated as its own anchor.
func (t Task) SeriesID() string {
	if t.RepeatSeriesID != nil && *t.RepeatSeriesID != "" {
		return *t.RepeatSeriesID
	}
	return t.ID
}

func (t Task) IsSeriesAnchor() bool {
	return t.RepeatSeriesID != nil && *t.RepeatSeriesID == t.ID
}

// ParseClock parses a local "HH:MM" time of day.
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

func StringPtr(s string) *string {
	return &s
}
