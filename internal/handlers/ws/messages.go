package ws

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/models"
	"github.com/noteduco342/courtside-chat/internal/service"
)

type roomAck struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// MessageSubscribe marks the user online in a room for the lifetime of the
// connection.
type MessageSubscribe struct {
	RoomID uuid.UUID `json:"room_id"`
}

func (msg *MessageSubscribe) GetType() string {
	return "subscribe"
}

func (msg *MessageSubscribe) Process(ctx *MessageContext) error {
	if _, err := ctx.Presence.Set(ctx.Ctx, ctx.UserID, msg.RoomID, models.PresenceOnline); err != nil {
		return err
	}
	ctx.Client.Subscribe(msg.RoomID)
	return ctx.Client.Send(roomAck{Type: "subscribed", Payload: map[string]uuid.UUID{"room_id": msg.RoomID}})
}

// MessageUnsubscribe drops a room. The user goes offline there unless another
// of their connections still holds it.
type MessageUnsubscribe struct {
	RoomID uuid.UUID `json:"room_id"`
}

func (msg *MessageUnsubscribe) GetType() string {
	return "unsubscribe"
}

func (msg *MessageUnsubscribe) Process(ctx *MessageContext) error {
	if ctx.Client.Unsubscribe(msg.RoomID) && !ctx.Hub.SubscribedElsewhere(ctx.UserID, msg.RoomID, ctx.Client) {
		if _, err := ctx.Presence.Set(ctx.Ctx, ctx.UserID, msg.RoomID, models.PresenceOffline); err != nil {
			return err
		}
	}
	return ctx.Client.Send(roomAck{Type: "unsubscribed", Payload: map[string]uuid.UUID{"room_id": msg.RoomID}})
}

// MessagePresence sets an explicit status, e.g. away when the tab is hidden.
type MessagePresence struct {
	RoomID uuid.UUID             `json:"room_id"`
	Status models.PresenceStatus `json:"status"`
}

func (msg *MessagePresence) GetType() string {
	return "presence"
}

func (msg *MessagePresence) Process(ctx *MessageContext) error {
	_, err := ctx.Presence.Set(ctx.Ctx, ctx.UserID, msg.RoomID, msg.Status)
	return err
}

type MessageRead struct {
	RoomID uuid.UUID `json:"room_id"`
}

func (msg *MessageRead) GetType() string {
	return "read"
}

func (msg *MessageRead) Process(ctx *MessageContext) error {
	_, err := ctx.ReadState.MarkRead(ctx.Ctx, ctx.UserID, msg.RoomID)
	return err
}

// MessageTyping targets either a room or a direct conversation.
type MessageTyping struct {
	RoomID         *uuid.UUID `json:"room_id,omitempty"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	Typing         bool       `json:"typing"`
}

func (msg *MessageTyping) GetType() string {
	return "typing"
}

func (msg *MessageTyping) Process(ctx *MessageContext) error {
	switch {
	case msg.ConversationID != nil:
		return ctx.Presence.TypingInConversation(ctx.Ctx, ctx.UserID, *msg.ConversationID, msg.Typing)
	case msg.RoomID != nil:
		return ctx.Presence.Typing(ctx.Ctx, ctx.UserID, *msg.RoomID, msg.Typing)
	default:
		return &service.ValidationError{Field: "room_id", Reason: "room_id or conversation_id is required"}
	}
}

// ReleaseRooms takes the user offline in every room this connection held that
// no other connection of theirs still holds. Called once the socket is closed.
func ReleaseRooms(ctx context.Context, hub *Hub, client *ClientConnection, presence PresenceTracker) []error {
	var errs []error
	for _, roomID := range client.Rooms() {
		client.Unsubscribe(roomID)
		if hub.SubscribedElsewhere(client.UserID, roomID, client) {
			continue
		}
		setCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := presence.Set(setCtx, client.UserID, roomID, models.PresenceOffline)
		cancel()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
