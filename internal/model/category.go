package model

import "time"

// Category groups tasks by area (work, personal, health, ...).
type Category struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"index:idx_user_category_name,unique"`
	Name      string `gorm:"index:idx_user_category_name,unique"`
	Icon      string
	SortOrder int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultCategories are created for every new user.
var DefaultCategories = []Category{
	{Name: "Work", Icon: "💼", SortOrder: 0},
	{Name: "Personal", Icon: "🏠", SortOrder: 1},
	{Name: "Health", Icon: "💪", SortOrder: 2},
}
