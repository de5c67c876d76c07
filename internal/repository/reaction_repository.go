package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/models"
	"gorm.io/gorm"
)

type ReactionRepository struct {
	db *gorm.DB
}

func NewReactionRepository(db *gorm.DB) *ReactionRepository {
	return &ReactionRepository{db: db}
}

func (r *ReactionRepository) Create(ctx context.Context, reaction *models.Reaction) error {
	err := r.db.WithContext(ctx).Create(reaction).Error
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *ReactionRepository) Delete(ctx context.Context, messageID, userID uuid.UUID, emoji string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&models.Reaction{})
	return res.RowsAffected, res.Error
}

func (r *ReactionRepository) ListByMessages(ctx context.Context, messageIDs []uuid.UUID) ([]models.Reaction, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var reactions []models.Reaction
	err := r.db.WithContext(ctx).
		Where("message_id IN ?", messageIDs).
		Order("created_at ASC").
		Find(&reactions).Error
	return reactions, err
}
