package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"daily-planner/internal/model"
)

// UserRepository handles CRUD for users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// UpsertFromTelegram finds or creates a user based on TelegramID and updates
// basic profile info. created reports whether the user is new.
func (r *UserRepository) UpsertFromTelegram(ctx context.Context, telegramID int64, firstName, lastName, username string) (user *model.User, created bool, err error) {
	var u model.User
	db := r.db.WithContext(ctx)
	err = db.Where("telegram_id = ?", telegramID).First(&u).Error
	switch {
	case err == nil:
		updates := map[string]any{
			"first_name": firstName,
			"last_name":  lastName,
			"username":   username,
		}
		if err := db.Model(&u).Updates(updates).Error; err != nil {
			return nil, false, fmt.Errorf("update user: %w", err)
		}
		return &u, false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		u = model.User{
			TelegramID:    telegramID,
			FirstName:     firstName,
			LastName:      lastName,
			Username:      username,
			DigestEnabled: true,
		}
		if err := db.Create(&u).Error; err != nil {
			return nil, false, fmt.Errorf("create user: %w", err)
		}
		return &u, true, nil
	default:
		return nil, false, fmt.Errorf("find user: %w", err)
	}
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	switch {
	case err == nil:
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("find user: %w", err)
	}
}

func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (r *UserRepository) SetDigestEnabled(ctx context.Context, id uint, enabled bool) error {
	result := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
		Updates(map[string]any{"digest_enabled": enabled})
	if result.Error != nil {
		return fmt.Errorf("update digest preference: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
