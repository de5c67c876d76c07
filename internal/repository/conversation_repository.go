package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/models"
	"gorm.io/gorm"
)

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) FindByPair(ctx context.Context, communityID, low, high uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Where("community_id = ? AND user_a_id = ? AND user_b_id = ?", communityID, low, high).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *ConversationRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.db.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// Create inserts the conversation; a concurrent insert of the same pair loses to
// the unique index and surfaces as ErrDuplicate.
func (r *ConversationRepository) Create(ctx context.Context, conv *models.Conversation) error {
	err := r.db.WithContext(ctx).Create(conv).Error
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *ConversationRepository) ListForUser(ctx context.Context, communityID, userID uuid.UUID) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.WithContext(ctx).
		Where("community_id = ? AND (user_a_id = ? OR user_b_id = ?)", communityID, userID, userID).
		Order("updated_at DESC").
		Order("id DESC").
		Find(&convs).Error
	return convs, err
}
