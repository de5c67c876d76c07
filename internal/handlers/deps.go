package handlers

import (
	"context"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/httpx"
	"github.com/noteduco342/courtside-chat/internal/models"
	"github.com/noteduco342/courtside-chat/internal/pagination"
	"github.com/noteduco342/courtside-chat/internal/service"
	"github.com/noteduco342/courtside-chat/internal/storage"
)

// The handler-facing views of the services. *service.XService satisfies each.

type RoomMessages interface {
	SendRoomMessage(ctx context.Context, actor, roomID uuid.UUID, in service.SendMessageInput) (*models.MessageView, error)
	GetRoomMessage(ctx context.Context, actor, roomID, messageID uuid.UUID) (*models.MessageView, error)
	EditRoomMessage(ctx context.Context, actor, roomID, messageID uuid.UUID, in service.EditMessageInput) (*models.MessageView, error)
	DeleteRoomMessage(ctx context.Context, actor, roomID, messageID uuid.UUID) (*models.MessageView, error)
	PageRoom(ctx context.Context, actor, roomID uuid.UUID, cursor *pagination.Cursor, limit int) (*service.MessagePage, error)
}

type DirectMessages interface {
	SendDirectMessage(ctx context.Context, actor, conversationID uuid.UUID, in service.SendMessageInput) (*models.MessageView, error)
	SendDirectTo(ctx context.Context, actor, communityID, peerID uuid.UUID, in service.SendMessageInput) (*service.DirectSendResult, error)
	GetDirectMessage(ctx context.Context, actor, conversationID, messageID uuid.UUID) (*models.MessageView, error)
	EditDirectMessage(ctx context.Context, actor, conversationID, messageID uuid.UUID, in service.EditMessageInput) (*models.MessageView, error)
	DeleteDirectMessage(ctx context.Context, actor, conversationID, messageID uuid.UUID) (*models.MessageView, error)
	PageConversation(ctx context.Context, actor, conversationID uuid.UUID, cursor *pagination.Cursor, limit int) (*service.MessagePage, error)
}

type Conversations interface {
	Resolve(ctx context.Context, communityID, actor, peer uuid.UUID) (*models.Conversation, error)
	Get(ctx context.Context, actor, conversationID uuid.UUID) (*models.Conversation, error)
	List(ctx context.Context, actor, communityID uuid.UUID) ([]models.ConversationSummary, error)
}

type Reactions interface {
	Add(ctx context.Context, actor, roomID, messageID uuid.UUID, emoji string) error
	Remove(ctx context.Context, actor, roomID, messageID uuid.UUID, emoji string) error
}

type ReadState interface {
	MarkRead(ctx context.Context, actor, roomID uuid.UUID) (time.Time, error)
	Receipts(ctx context.Context, actor, roomID, messageID uuid.UUID) (*models.Receipts, error)
}

type Presence interface {
	Set(ctx context.Context, actor, roomID uuid.UUID, status models.PresenceStatus) (*models.PresenceRecord, error)
	List(ctx context.Context, actor, roomID uuid.UUID) ([]models.PresenceRecord, error)
	Online(ctx context.Context, actor, roomID uuid.UUID) ([]uuid.UUID, error)
}

type Media interface {
	UploadChatImage(ctx context.Context, actor, roomID uuid.UUID, file io.Reader) (*service.UploadedImage, error)
	OpenChatImage(ctx context.Context, actor uuid.UUID, rawKey string) (io.ReadCloser, storage.ObjectStat, error)
}

var (
	_ RoomMessages   = (*service.MessageService)(nil)
	_ DirectMessages = (*service.MessageService)(nil)
	_ Conversations  = (*service.ConversationService)(nil)
	_ Reactions      = (*service.ReactionService)(nil)
	_ ReadState      = (*service.ReadStateService)(nil)
	_ Presence       = (*service.PresenceService)(nil)
	_ Media          = (*service.MediaService)(nil)
)

func actorID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := httpx.LocalUUID(c, "userID")
	if err != nil {
		return uuid.Nil, service.ErrNotAuthenticated
	}
	return id, nil
}

// pathIDs parses the named uuid route params in order.
func pathIDs(c *fiber.Ctx, names ...string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, len(names))
	for i, name := range names {
		id, err := httpx.ParamUUID(c, name)
		if err != nil {
			return nil, &service.ValidationError{Field: name, Reason: "must be a uuid"}
		}
		out[i] = id
	}
	return out, nil
}

// pageParams reads limit and cursor query parameters. A malformed cursor is a
// validation error; a malformed limit falls back to the default.
func pageParams(c *fiber.Ctx) (*pagination.Cursor, int, error) {
	cursor, err := pagination.Parse(c.Query("cursor"))
	if err != nil {
		return nil, 0, &service.ValidationError{Field: "cursor", Reason: "invalid cursor"}
	}
	return cursor, c.QueryInt("limit", 0), nil
}
