package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PresenceRepository struct {
	db *gorm.DB
}

func NewPresenceRepository(db *gorm.DB) *PresenceRepository {
	return &PresenceRepository{db: db}
}

func (r *PresenceRepository) Upsert(ctx context.Context, rec *models.PresenceRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "community_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "last_seen_at"}),
	}).Create(rec).Error
}

func (r *PresenceRepository) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.PresenceRecord, error) {
	var recs []models.PresenceRecord
	err := r.db.WithContext(ctx).
		Where("community_id = ?", roomID).
		Order("last_seen_at DESC").
		Find(&recs).Error
	return recs, err
}

func (r *PresenceRepository) ListStale(ctx context.Context, status models.PresenceStatus, seenBefore time.Time, limit int) ([]models.PresenceRecord, error) {
	var recs []models.PresenceRecord
	err := r.db.WithContext(ctx).
		Where("status = ? AND last_seen_at < ?", status, seenBefore).
		Order("last_seen_at ASC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}
