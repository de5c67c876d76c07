package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/models"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []models.User
	err := r.db.WithContext(ctx).
		Select("id", "full_name", "avatar_url").
		Where("id IN ?", ids).
		Find(&users).Error
	return users, err
}
