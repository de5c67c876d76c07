package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/models"
	"github.com/noteduco342/courtside-chat/internal/pagination"
	"gorm.io/gorm"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

type messageTable struct {
	model       interface{}
	name        string
	scopeColumn string
}

func tableFor(kind models.MessageKind) (messageTable, error) {
	switch kind {
	case models.KindRoom:
		return messageTable{model: &models.RoomMessage{}, name: "community_messages", scopeColumn: "community_id"}, nil
	case models.KindDirect:
		return messageTable{model: &models.DirectMessage{}, name: "dm_messages", scopeColumn: "conversation_id"}, nil
	}
	return messageTable{}, fmt.Errorf("unknown message kind %q", kind)
}

// Create inserts a message. Direct messages also bump the conversation's
// updated_at in the same transaction so conversation ordering never lags.
func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) error {
	switch msg.Kind {
	case models.KindRoom:
		return r.db.WithContext(ctx).Create(models.NewRoomMessage(msg)).Error
	case models.KindDirect:
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(models.NewDirectMessage(msg)).Error; err != nil {
				return err
			}
			return tx.Model(&models.Conversation{}).
				Where("id = ?", msg.ScopeID).
				UpdateColumn("updated_at", msg.CreatedAt).Error
		})
	}
	return fmt.Errorf("unknown message kind %q", msg.Kind)
}

func (r *MessageRepository) FindByID(ctx context.Context, kind models.MessageKind, id uuid.UUID) (*models.Message, error) {
	switch kind {
	case models.KindRoom:
		var row models.RoomMessage
		if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
			return nil, err
		}
		msg := row.ToMessage()
		return &msg, nil
	case models.KindDirect:
		var row models.DirectMessage
		if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
			return nil, err
		}
		msg := row.ToMessage()
		return &msg, nil
	}
	return nil, fmt.Errorf("unknown message kind %q", kind)
}

// UpdateContent rewrites the body of a live message. It returns
// ErrNoRowsAffected when the message is gone or already deleted.
func (r *MessageRepository) UpdateContent(ctx context.Context, kind models.MessageKind, id uuid.UUID, content string, at time.Time) error {
	t, err := tableFor(kind)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Model(t.model).
		Where("id = ? AND deleted_at IS NULL", id).
		UpdateColumns(map[string]interface{}{
			"content":    content,
			"updated_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

// SoftDelete stamps deleted_at once; repeated calls leave the first stamp.
func (r *MessageRepository) SoftDelete(ctx context.Context, kind models.MessageKind, id uuid.UUID, at time.Time) error {
	t, err := tableFor(kind)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(t.model).
		Where("id = ? AND deleted_at IS NULL", id).
		UpdateColumn("deleted_at", at).Error
}

func (r *MessageRepository) Page(ctx context.Context, kind models.MessageKind, scopeID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Message, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	q := r.db.WithContext(ctx).Model(t.model).Where(t.scopeColumn+" = ?", scopeID)
	if cursor != nil {
		if cursor.HasTieBreak() {
			q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
		} else {
			q = q.Where("created_at < ?", cursor.CreatedAt)
		}
	}
	q = q.Order("created_at DESC").Order("id DESC").Limit(limit)

	switch kind {
	case models.KindRoom:
		var rows []models.RoomMessage
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		out := make([]models.Message, len(rows))
		for i := range rows {
			out[i] = rows[i].ToMessage()
		}
		return out, nil
	default:
		var rows []models.DirectMessage
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		out := make([]models.Message, len(rows))
		for i := range rows {
			out[i] = rows[i].ToMessage()
		}
		return out, nil
	}
}

// LatestByScope returns the newest message (deleted or not) of each scope.
func (r *MessageRepository) LatestByScope(ctx context.Context, kind models.MessageKind, scopeIDs []uuid.UUID) (map[uuid.UUID]models.Message, error) {
	out := make(map[uuid.UUID]models.Message, len(scopeIDs))
	if len(scopeIDs) == 0 {
		return out, nil
	}
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT ON (%[1]s) *
		FROM %[2]s
		WHERE %[1]s IN ?
		ORDER BY %[1]s, created_at DESC, id DESC
	`, t.scopeColumn, t.name)

	switch kind {
	case models.KindRoom:
		var rows []models.RoomMessage
		if err := r.db.WithContext(ctx).Raw(query, scopeIDs).Scan(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			out[rows[i].RoomID] = rows[i].ToMessage()
		}
	default:
		var rows []models.DirectMessage
		if err := r.db.WithContext(ctx).Raw(query, scopeIDs).Scan(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			out[rows[i].ConversationID] = rows[i].ToMessage()
		}
	}
	return out, nil
}
