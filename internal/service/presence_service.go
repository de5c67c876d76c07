package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/models"
	"github.com/noteduco342/courtside-chat/internal/repository"
	"github.com/rs/zerolog"
)

// PresenceMirror is a fast view of who is online. The database stays
// authoritative.
type PresenceMirror interface {
	Enabled() bool
	MarkOnline(ctx context.Context, roomID, userID uuid.UUID) error
	MarkOffline(ctx context.Context, roomID, userID uuid.UUID) error
	OnlineUsers(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error)
}

type PresenceService struct {
	presence      repository.PresenceRepositoryInterface
	conversations repository.ConversationRepositoryInterface
	gate          accessGate
	notify        notifier
	mirror        PresenceMirror
	log           zerolog.Logger
	now           func() time.Time
}

func NewPresenceService(stores Stores, mirror PresenceMirror, publisher EventPublisher, log zerolog.Logger) *PresenceService {
	return &PresenceService{
		presence:      stores.Presence,
		conversations: stores.Conversations,
		gate:          accessGate{members: stores.Memberships, log: log},
		notify:        notifier{publisher: publisher, members: stores.Memberships, log: log},
		mirror:        mirror,
		log:           log,
		now:           defaultClock,
	}
}

// Set records the actor's status in a room, creating the record on first use.
func (s *PresenceService) Set(ctx context.Context, actor, roomID uuid.UUID, status models.PresenceStatus) (*models.PresenceRecord, error) {
	if !status.Valid() {
		return nil, invalid("status", "must be online, away or offline")
	}
	if _, err := s.gate.require(ctx, roomID, actor); err != nil {
		return nil, err
	}
	rec := &models.PresenceRecord{UserID: actor, RoomID: roomID, Status: status, LastSeenAt: s.now()}
	if err := s.write(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Demote moves a stale record to a lower status, keeping its last-seen time.
// Used by the sweeper, which acts on behalf of nobody and skips the membership
// check.
func (s *PresenceService) Demote(ctx context.Context, rec models.PresenceRecord, status models.PresenceStatus) error {
	rec.Status = status
	return s.write(ctx, &rec)
}

func (s *PresenceService) write(ctx context.Context, rec *models.PresenceRecord) error {
	if err := s.presence.Upsert(ctx, rec); err != nil {
		return storageFailure(s.log, "presence.upsert", err)
	}
	s.mirrorStatus(ctx, rec)
	s.notify.toRoom(ctx, rec.RoomID, Event{Type: EventPresence, Payload: *rec})
	return nil
}

func (s *PresenceService) mirrorStatus(ctx context.Context, rec *models.PresenceRecord) {
	if s.mirror == nil || !s.mirror.Enabled() {
		return
	}
	var err error
	if rec.Status == models.PresenceOnline {
		err = s.mirror.MarkOnline(ctx, rec.RoomID, rec.UserID)
	} else {
		err = s.mirror.MarkOffline(ctx, rec.RoomID, rec.UserID)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", rec.UserID.String()).Msg("presence mirror update failed")
	}
}

// List returns every presence record in the room.
func (s *PresenceService) List(ctx context.Context, actor, roomID uuid.UUID) ([]models.PresenceRecord, error) {
	if _, err := s.gate.require(ctx, roomID, actor); err != nil {
		return nil, err
	}
	recs, err := s.presence.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, storageFailure(s.log, "presence.list", err)
	}
	if recs == nil {
		recs = []models.PresenceRecord{}
	}
	return recs, nil
}

// Online returns the ids of members currently online, from the mirror when one
// is attached.
func (s *PresenceService) Online(ctx context.Context, actor, roomID uuid.UUID) ([]uuid.UUID, error) {
	if _, err := s.gate.require(ctx, roomID, actor); err != nil {
		return nil, err
	}
	if s.mirror != nil && s.mirror.Enabled() {
		ids, err := s.mirror.OnlineUsers(ctx, roomID)
		if err == nil {
			if ids == nil {
				ids = []uuid.UUID{}
			}
			return ids, nil
		}
		s.log.Warn().Err(err).Msg("presence mirror read failed, using database")
	}

	recs, err := s.presence.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, storageFailure(s.log, "presence.list", err)
	}
	ids := make([]uuid.UUID, 0, len(recs))
	for i := range recs {
		if recs[i].Status == models.PresenceOnline {
			ids = append(ids, recs[i].UserID)
		}
	}
	return ids, nil
}

// Typing relays a transient typing indicator to the room. Nothing is stored.
func (s *PresenceService) Typing(ctx context.Context, actor, roomID uuid.UUID, typing bool) error {
	if _, err := s.gate.require(ctx, roomID, actor); err != nil {
		return err
	}
	s.notify.toRoom(ctx, roomID, Event{Type: EventTyping, Payload: TypingEvent{
		RoomID: &roomID, UserID: actor, Typing: typing,
	}})
	return nil
}

// TypingInConversation relays a typing indicator to the other participant of a
// direct conversation.
func (s *PresenceService) TypingInConversation(ctx context.Context, actor, conversationID uuid.UUID, typing bool) error {
	if actor == uuid.Nil {
		return ErrNotAuthenticated
	}
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		if repository.IsNotFound(err) {
			return ErrNotFound
		}
		return storageFailure(s.log, "conversation.get", err)
	}
	if !conv.HasParticipant(actor) {
		return ErrNotAMember
	}
	s.notify.toUsers([]uuid.UUID{conv.Peer(actor)}, Event{Type: EventTyping, Payload: TypingEvent{
		ConversationID: &conv.ID, UserID: actor, Typing: typing,
	}})
	return nil
}

type TypingEvent struct {
	RoomID         *uuid.UUID `json:"room_id,omitempty"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	UserID         uuid.UUID  `json:"user_id"`
	Typing         bool       `json:"typing"`
}
