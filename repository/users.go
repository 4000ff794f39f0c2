package repository

import (
	"context"
	"fmt"

	"github.com/jmalhotra98/intervue/backend/models"
)

func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *Repository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		return nil, translateGorm(err)
	}
	return &user, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if err != nil {
		return nil, translateGorm(err)
	}
	return &user, nil
}

// UpdateUserProfile sets the optional interview-prep profile fields.
func (r *Repository) UpdateUserProfile(ctx context.Context, id string, targetRole, targetLevel, resumeBlobKey *string) error {
	updates := map[string]any{}
	if targetRole != nil {
		updates["target_role"] = *targetRole
	}
	if targetLevel != nil {
		updates["target_level"] = *targetLevel
	}
	if resumeBlobKey != nil {
		updates["resume_blob_key"] = *resumeBlobKey
	}
	if len(updates) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update profile: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
