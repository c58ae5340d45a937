package service

import (
	"context"

	"daily-planner/internal/model"
)

// CategoryStore is the category storage. It is satisfied by
// *repository.CategoryRepository.
type CategoryStore interface {
	CategoryResolver
	CategoryLister
	EnsureDefaults(ctx context.Context, userID uint) error
}

// CategoryService provides helpers around categories.
type CategoryService struct {
	repo CategoryStore
}

func NewCategoryService(repo CategoryStore) *CategoryService {
	return &CategoryService{repo: repo}
}

// List returns the user's categories, creating the defaults on first use.
func (s *CategoryService) List(ctx context.Context, userID uint) ([]model.Category, error) {
	if err := s.repo.EnsureDefaults(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.ListByUser(ctx, userID)
}

// Names maps category ids to display names with their icon.
func (s *CategoryService) Names(ctx context.Context, userID uint) (map[uint]string, error) {
	categories, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make(map[uint]string, len(categories))
	for _, c := range categories {
		label := c.Name
		if c.Icon != "" {
			label = c.Icon + " " + c.Name
		}
		names[c.ID] = label
	}
	return names, nil
}
