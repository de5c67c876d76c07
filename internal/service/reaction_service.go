package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/metrics"
	"github.com/noteduco342/courtside-chat/internal/models"
	"github.com/noteduco342/courtside-chat/internal/repository"
	"github.com/noteduco342/courtside-chat/internal/validation"
	"github.com/rs/zerolog"
)

// ReactionService keeps the reaction ledger for room messages. Each
// (message, user, emoji) triple exists at most once.
type ReactionService struct {
	reactions repository.ReactionRepositoryInterface
	messages  repository.MessageRepositoryInterface
	gate      accessGate
	notify    notifier
	log       zerolog.Logger
	now       func() time.Time
}

func NewReactionService(stores Stores, publisher EventPublisher, log zerolog.Logger) *ReactionService {
	return &ReactionService{
		reactions: stores.Reactions,
		messages:  stores.Messages,
		gate:      accessGate{members: stores.Memberships, log: log},
		notify:    notifier{publisher: publisher, members: stores.Memberships, log: log},
		log:       log,
		now:       defaultClock,
	}
}

type ReactionEvent struct {
	RoomID    uuid.UUID `json:"room_id"`
	MessageID uuid.UUID `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
}

// Add records a reaction. Adding one that already exists succeeds without change.
func (s *ReactionService) Add(ctx context.Context, actor, roomID, messageID uuid.UUID, emoji string) error {
	emoji, err := s.prepare(ctx, actor, roomID, messageID, emoji)
	if err != nil {
		return err
	}

	err = s.reactions.Create(ctx, &models.Reaction{
		ID:        uuid.New(),
		MessageID: messageID,
		UserID:    actor,
		Emoji:     emoji,
		CreatedAt: s.now(),
	})
	if errors.Is(err, repository.ErrDuplicate) {
		metrics.ConflictsAbsorbed.WithLabelValues("reaction").Inc()
		return nil
	}
	if err != nil {
		return storageFailure(s.log, "reaction.create", err)
	}

	s.notify.toRoom(ctx, roomID, Event{Type: EventReactionAdded, Payload: ReactionEvent{
		RoomID: roomID, MessageID: messageID, UserID: actor, Emoji: emoji,
	}})
	return nil
}

// Remove deletes the actor's reaction. Removing an absent reaction succeeds.
func (s *ReactionService) Remove(ctx context.Context, actor, roomID, messageID uuid.UUID, emoji string) error {
	emoji, err := s.prepare(ctx, actor, roomID, messageID, emoji)
	if err != nil {
		return err
	}

	n, err := s.reactions.Delete(ctx, messageID, actor, emoji)
	if err != nil {
		return storageFailure(s.log, "reaction.delete", err)
	}
	if n > 0 {
		s.notify.toRoom(ctx, roomID, Event{Type: EventReactionRemoved, Payload: ReactionEvent{
			RoomID: roomID, MessageID: messageID, UserID: actor, Emoji: emoji,
		}})
	}
	return nil
}

func (s *ReactionService) prepare(ctx context.Context, actor, roomID, messageID uuid.UUID, emoji string) (string, error) {
	if _, err := s.gate.require(ctx, roomID, actor); err != nil {
		return "", err
	}
	emoji = strings.TrimSpace(emoji)
	if !validation.ValidateEmoji(emoji) {
		return "", invalid("emoji", "not a valid emoji")
	}
	msg, err := s.messages.FindByID(ctx, models.KindRoom, messageID)
	if err != nil {
		if repository.IsNotFound(err) {
			return "", ErrNotFound
		}
		return "", storageFailure(s.log, "message.get", err)
	}
	if msg.ScopeID != roomID {
		return "", ErrNotFound
	}
	return emoji, nil
}
