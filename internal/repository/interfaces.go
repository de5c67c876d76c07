package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/models"
	"github.com/noteduco342/courtside-chat/internal/pagination"
)

// MessageRepositoryInterface stores both message kinds behind one contract.
// Page returns up to limit rows newest-first strictly after the cursor.
type MessageRepositoryInterface interface {
	Create(ctx context.Context, msg *models.Message) error
	FindByID(ctx context.Context, kind models.MessageKind, id uuid.UUID) (*models.Message, error)
	UpdateContent(ctx context.Context, kind models.MessageKind, id uuid.UUID, content string, at time.Time) error
	SoftDelete(ctx context.Context, kind models.MessageKind, id uuid.UUID, at time.Time) error
	Page(ctx context.Context, kind models.MessageKind, scopeID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Message, error)
	LatestByScope(ctx context.Context, kind models.MessageKind, scopeIDs []uuid.UUID) (map[uuid.UUID]models.Message, error)
}

// ConversationRepositoryInterface persists DM conversations. Create returns
// ErrDuplicate when the canonical pair already exists.
type ConversationRepositoryInterface interface {
	FindByPair(ctx context.Context, communityID, low, high uuid.UUID) (*models.Conversation, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	Create(ctx context.Context, conv *models.Conversation) error
	ListForUser(ctx context.Context, communityID, userID uuid.UUID) ([]models.Conversation, error)
}

// ReactionRepositoryInterface persists reactions. Create returns ErrDuplicate for
// an existing (message, user, emoji) triple.
type ReactionRepositoryInterface interface {
	Create(ctx context.Context, reaction *models.Reaction) error
	Delete(ctx context.Context, messageID, userID uuid.UUID, emoji string) (int64, error)
	ListByMessages(ctx context.Context, messageIDs []uuid.UUID) ([]models.Reaction, error)
}

// MembershipRepositoryInterface is the Access Gate: membership lookups plus the
// read watermark.
type MembershipRepositoryInterface interface {
	Get(ctx context.Context, roomID, userID uuid.UUID) (*models.Membership, error)
	ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Membership, error)
	TouchLastRead(ctx context.Context, roomID, userID uuid.UUID, at time.Time) error
}

type PresenceRepositoryInterface interface {
	Upsert(ctx context.Context, rec *models.PresenceRecord) error
	ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.PresenceRecord, error)
	ListStale(ctx context.Context, status models.PresenceStatus, seenBefore time.Time, limit int) ([]models.PresenceRecord, error)
}

type UserRepositoryInterface interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error)
}
