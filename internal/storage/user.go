package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/easeaico/familybot/internal/chat"
	"github.com/easeaico/familybot/internal/types"
)

// userModel maps to the users table.
type userModel struct {
	ID               int64  `gorm:"primaryKey"`
	UserKey          string `gorm:"column:user_key;uniqueIndex;not null"`
	Username         string
	DefaultCharacter string `gorm:"column:default_character"`
	Status           string
	LastActiveAt     time.Time `gorm:"column:last_active_at"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (userModel) TableName() string {
	return "users"
}

// userRepo accesses user data.
type userRepo struct {
	db *gorm.DB
}

// NewUserRepo returns a UserRepo backed by GORM.
func NewUserRepo(db *gorm.DB) chat.UserRepo {
	return &userRepo{db: db}
}

func (r *userRepo) GetByKey(ctx context.Context, userKey string) (*types.User, error) {
	var model userModel
	err := r.db.WithContext(ctx).Where("user_key = ?", userKey).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by key: %w", err)
	}
	result := userFromModel(model)
	return &result, nil
}

func (r *userRepo) Create(ctx context.Context, user *types.User) error {
	if user == nil {
		return fmt.Errorf("user cannot be nil")
	}
	model := userModel{
		UserKey:          user.UserKey,
		Username:         user.Username,
		DefaultCharacter: user.DefaultCharacter,
		Status:           user.Status,
		LastActiveAt:     user.LastActiveAt,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	user.ID = model.ID
	user.CreatedAt = model.CreatedAt
	user.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *userRepo) Touch(ctx context.Context, id int64, at time.Time) error {
	if err := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("id = ?", id).
		Update("last_active_at", at).Error; err != nil {
		return fmt.Errorf("failed to update last active time: %w", err)
	}
	return nil
}

func (r *userRepo) SetDefaultCharacter(ctx context.Context, id int64, characterKey string) error {
	if err := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("id = ?", id).
		Update("default_character", characterKey).Error; err != nil {
		return fmt.Errorf("failed to set default character: %w", err)
	}
	return nil
}

func userFromModel(model userModel) types.User {
	return types.User{
		ID:               model.ID,
		UserKey:          model.UserKey,
		Username:         model.Username,
		DefaultCharacter: model.DefaultCharacter,
		Status:           model.Status,
		LastActiveAt:     model.LastActiveAt,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
}
