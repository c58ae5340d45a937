package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"daily-planner/internal/model"
)

// CategoryRepository manages task categories.
type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// GetOrCreate resolves a category by name (case-insensitive), creating it when missing.
// An empty name resolves to no category.
func (r *CategoryRepository) GetOrCreate(ctx context.Context, userID uint, name string) (*model.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	var category model.Category
	db := r.db.WithContext(ctx)
	err := db.Where("user_id = ? AND LOWER(name) = ?", userID, strings.ToLower(name)).First(&category).Error
	switch {
	case err == nil:
		return &category, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		var count int64
		if err := db.Model(&model.Category{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("count categories: %w", err)
		}
		category = model.Category{UserID: userID, Name: name, SortOrder: int(count)}
		if err := db.Create(&category).Error; err != nil {
			return nil, fmt.Errorf("create category: %w", err)
		}
		return &category, nil
	default:
		return nil, fmt.Errorf("find category: %w", err)
	}
}

// EnsureDefaults creates the default categories for a user that has none.
func (r *CategoryRepository) EnsureDefaults(ctx context.Context, userID uint) error {
	db := r.db.WithContext(ctx)
	var count int64
	if err := db.Model(&model.Category{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return fmt.Errorf("count categories: %w", err)
	}
	if count > 0 {
		return nil
	}
	defaults := make([]model.Category, len(model.DefaultCategories))
	for i, c := range model.DefaultCategories {
		c.UserID = userID
		defaults[i] = c
	}
	if err := db.Create(&defaults).Error; err != nil {
		return fmt.Errorf("create default categories: %w", err)
	}
	return nil
}

func (r *CategoryRepository) ListByUser(ctx context.Context, userID uint) ([]model.Category, error) {
	var categories []model.Category
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("sort_order ASC, name ASC").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}
