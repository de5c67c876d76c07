package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/models"
	"gorm.io/gorm"
)

type MembershipRepository struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

func (r *MembershipRepository) Get(ctx context.Context, roomID, userID uuid.UUID) (*models.Membership, error) {
	var m models.Membership
	err := r.db.WithContext(ctx).
		Where("community_id = ? AND user_id = ?", roomID, userID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MembershipRepository) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Membership, error) {
	var members []models.Membership
	err := r.db.WithContext(ctx).
		Where("community_id = ?", roomID).
		Order("joined_at ASC").
		Find(&members).Error
	return members, err
}

// TouchLastRead overwrites the watermark. Concurrent writers race; the last one wins.
func (r *MembershipRepository) TouchLastRead(ctx context.Context, roomID, userID uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Membership{}).
		Where("community_id = ? AND user_id = ?", roomID, userID).
		UpdateColumn("last_read_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}
