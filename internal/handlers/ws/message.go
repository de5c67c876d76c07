package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/models"
	"github.com/noteduco342/courtside-chat/internal/service"
	"github.com/rs/zerolog"
)

var ErrFrameTooLarge = errors.New("frame too large")

// PresenceTracker is the part of the presence service frames drive.
type PresenceTracker interface {
	Set(ctx context.Context, actor, roomID uuid.UUID, status models.PresenceStatus) (*models.PresenceRecord, error)
	Typing(ctx context.Context, actor, roomID uuid.UUID, typing bool) error
	TypingInConversation(ctx context.Context, actor, conversationID uuid.UUID, typing bool) error
}

type ReadMarker interface {
	MarkRead(ctx context.Context, actor, roomID uuid.UUID) (time.Time, error)
}

// MessageContext provides all dependencies needed for message processing
type MessageContext struct {
	Ctx       context.Context
	UserID    uuid.UUID
	Client    *ClientConnection
	Hub       *Hub
	Presence  PresenceTracker
	ReadState ReadMarker
	Log       zerolog.Logger
}

// Message interface for all WebSocket message types
type Message interface {
	GetType() string
	Process(ctx *MessageContext) error
}

// SerializedMessage is the wire format wrapper
type SerializedMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorResponse is sent when message processing fails
type ErrorResponse struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

func ToJson(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

func FromJson(jsonBytes []byte, msg Message) error {
	return json.Unmarshal(jsonBytes, msg)
}

func CreateMessage(msgType string, typeRegistry map[string]reflect.Type) (Message, error) {
	msgTypeReflect, ok := typeRegistry[msgType]
	if !ok {
		return nil, fmt.Errorf("unknown message type: %s", msgType)
	}

	instance := reflect.New(msgTypeReflect).Interface()
	return instance.(Message), nil
}

// ErrorCode maps a service error onto the code and message sent in an error
// frame. Storage details never reach the client.
func ErrorCode(err error) (code, message string) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		return "validation_failed", ve.Field + ": " + ve.Reason
	case errors.Is(err, service.ErrNotAuthenticated):
		return "not_authenticated", "Authentication required"
	case errors.Is(err, service.ErrNotAMember):
		return "not_a_member", "Not a member"
	case errors.Is(err, service.ErrForbidden):
		return "forbidden", "Not allowed"
	case errors.Is(err, service.ErrNotFound):
		return "not_found", "Not found"
	case errors.Is(err, service.ErrStorage):
		return "operation_failed", "Operation failed, please retry"
	default:
		return "processing_failed", "Failed to process message"
	}
}
