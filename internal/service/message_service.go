package service

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/metrics"
	"github.com/noteduco342/courtside-chat/internal/models"
	"github.com/noteduco342/courtside-chat/internal/pagination"
	"github.com/noteduco342/courtside-chat/internal/repository"
	"github.com/noteduco342/courtside-chat/internal/validation"
	"github.com/rs/zerolog"
)

// PageCache holds the newest page of a room or conversation. Any write to the
// scope invalidates it by advancing the scope's generation; SetHead must drop
// rows read under a generation that is no longer current.
type PageCache interface {
	Generation(ctx context.Context, kind models.MessageKind, scopeID uuid.UUID) (int64, bool)
	GetHead(ctx context.Context, kind models.MessageKind, scopeID uuid.UUID, gen int64, limit int) ([]models.Message, bool)
	SetHead(ctx context.Context, kind models.MessageKind, scopeID uuid.UUID, gen int64, limit int, rows []models.Message) error
	Invalidate(ctx context.Context, kind models.MessageKind, scopeID uuid.UUID) error
}

type MessageLimits struct {
	MaxLength       int
	DefaultPageSize int
	MaxPageSize     int
}

type MessageService struct {
	messages      repository.MessageRepositoryInterface
	reactions     repository.ReactionRepositoryInterface
	users         repository.UserRepositoryInterface
	conversations *ConversationService
	gate          accessGate
	notify        notifier
	cipher        ContentCipher
	cache         PageCache
	limits        MessageLimits
	log           zerolog.Logger
	now           func() time.Time
}

func NewMessageService(
	stores Stores,
	conversations *ConversationService,
	cipher ContentCipher,
	cache PageCache,
	publisher EventPublisher,
	limits MessageLimits,
	log zerolog.Logger,
) *MessageService {
	return &MessageService{
		messages:      stores.Messages,
		reactions:     stores.Reactions,
		users:         stores.Users,
		conversations: conversations,
		gate:          accessGate{members: stores.Memberships, log: log},
		notify:        notifier{publisher: publisher, members: stores.Memberships, log: log},
		cipher:        cipher,
		cache:         cache,
		limits:        limits,
		log:           log,
		now:           defaultClock,
	}
}

type SendMessageInput struct {
	Content  string  `json:"content"`
	ImageURL *string `json:"image_url"`
}

type EditMessageInput struct {
	Content string `json:"content"`
}

type MessagePage struct {
	Messages   []models.MessageView `json:"messages"`
	NextCursor *string              `json:"next_cursor"`
	HasMore    bool                 `json:"has_more"`
}

// DirectSendResult carries the conversation a first-contact send resolved.
type DirectSendResult struct {
	Conversation *models.Conversation `json:"conversation"`
	Message      *models.MessageView  `json:"message"`
}

func (s *MessageService) SendRoomMessage(ctx context.Context, actor, roomID uuid.UUID, in SendMessageInput) (*models.MessageView, error) {
	if _, err := s.gate.require(ctx, roomID, actor); err != nil {
		return nil, err
	}
	content, image, err := s.validateBody(in.Content, in.ImageURL)
	if err != nil {
		return nil, err
	}
	view, err := s.create(ctx, models.KindRoom, roomID, actor, content, image)
	if err != nil {
		return nil, err
	}
	s.notify.toRoom(ctx, roomID, Event{Type: EventMessageCreated, Payload: view})
	return view, nil
}

func (s *MessageService) SendDirectMessage(ctx context.Context, actor, conversationID uuid.UUID, in SendMessageInput) (*models.MessageView, error) {
	conv, err := s.conversations.Get(ctx, actor, conversationID)
	if err != nil {
		return nil, err
	}
	content, image, err := s.validateBody(in.Content, in.ImageURL)
	if err != nil {
		return nil, err
	}
	return s.sendInConversation(ctx, conv, actor, content, image)
}

// SendDirectTo messages a peer without a known conversation id, resolving the
// conversation first. The body is validated before anything is created.
func (s *MessageService) SendDirectTo(ctx context.Context, actor, communityID, peerID uuid.UUID, in SendMessageInput) (*DirectSendResult, error) {
	if actor == uuid.Nil {
		return nil, ErrNotAuthenticated
	}
	content, image, err := s.validateBody(in.Content, in.ImageURL)
	if err != nil {
		return nil, err
	}
	conv, err := s.conversations.Resolve(ctx, communityID, actor, peerID)
	if err != nil {
		return nil, err
	}
	view, err := s.sendInConversation(ctx, conv, actor, content, image)
	if err != nil {
		return nil, err
	}
	return &DirectSendResult{Conversation: conv, Message: view}, nil
}

func (s *MessageService) sendInConversation(ctx context.Context, conv *models.Conversation, actor uuid.UUID, content string, image *string) (*models.MessageView, error) {
	view, err := s.create(ctx, models.KindDirect, conv.ID, actor, content, image)
	if err != nil {
		return nil, err
	}
	conv.UpdatedAt = view.CreatedAt
	s.notify.toUsers(conv.Participants(), Event{Type: EventMessageCreated, Payload: view})
	return view, nil
}

func (s *MessageService) create(ctx context.Context, kind models.MessageKind, scopeID, actor uuid.UUID, content string, image *string) (*models.MessageView, error) {
	stored, err := s.cipher.Encrypt(content)
	if err != nil {
		return nil, storageFailure(s.log, "message.encrypt", err)
	}
	now := s.now()
	msg := &models.Message{
		Kind:      kind,
		ID:        uuid.New(),
		ScopeID:   scopeID,
		AuthorID:  actor,
		Content:   stored,
		ImageURL:  image,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, storageFailure(s.log, "message.create", err)
	}
	metrics.MessageWrites.WithLabelValues(string(kind), "send").Inc()
	s.invalidate(ctx, kind, scopeID)

	view := models.NewMessageView(msg, content)
	view.Author = s.author(ctx, actor)
	return &view, nil
}

func (s *MessageService) GetRoomMessage(ctx context.Context, actor, roomID, messageID uuid.UUID) (*models.MessageView, error) {
	if _, err := s.gate.require(ctx, roomID, actor); err != nil {
		return nil, err
	}
	msg, err := s.load(ctx, models.KindRoom, roomID, messageID)
	if err != nil {
		return nil, err
	}
	return s.hydrateOne(ctx, msg)
}

func (s *MessageService) GetDirectMessage(ctx context.Context, actor, conversationID, messageID uuid.UUID) (*models.MessageView, error) {
	if _, err := s.conversations.Get(ctx, actor, conversationID); err != nil {
		return nil, err
	}
	msg, err := s.load(ctx, models.KindDirect, conversationID, messageID)
	if err != nil {
		return nil, err
	}
	return s.hydrateOne(ctx, msg)
}

func (s *MessageService) EditRoomMessage(ctx context.Context, actor, roomID, messageID uuid.UUID, in EditMessageInput) (*models.MessageView, error) {
	member, err := s.gate.require(ctx, roomID, actor)
	if err != nil {
		return nil, err
	}
	msg, err := s.load(ctx, models.KindRoom, roomID, messageID)
	if err != nil {
		return nil, err
	}
	view, err := s.edit(ctx, actor, member.Role, msg, in.Content)
	if err != nil {
		return nil, err
	}
	s.notify.toRoom(ctx, roomID, Event{Type: EventMessageUpdated, Payload: view})
	return view, nil
}

func (s *MessageService) EditDirectMessage(ctx context.Context, actor, conversationID, messageID uuid.UUID, in EditMessageInput) (*models.MessageView, error) {
	conv, err := s.conversations.Get(ctx, actor, conversationID)
	if err != nil {
		return nil, err
	}
	msg, err := s.load(ctx, models.KindDirect, conversationID, messageID)
	if err != nil {
		return nil, err
	}
	view, err := s.edit(ctx, actor, "", msg, in.Content)
	if err != nil {
		return nil, err
	}
	s.notify.toUsers(conv.Participants(), Event{Type: EventMessageUpdated, Payload: view})
	return view, nil
}

// edit rewrites the body of a live message. Tombstones are frozen.
func (s *MessageService) edit(ctx context.Context, actor uuid.UUID, role models.MemberRole, msg *models.Message, raw string) (*models.MessageView, error) {
	if msg.IsDeleted() {
		return nil, ErrForbidden
	}
	if !PolicyFor(msg.Kind).CanEdit(actor, msg, role) {
		return nil, ErrForbidden
	}

	content := validation.NormalizeContent(raw)
	if !utf8.ValidString(content) {
		return nil, invalid("content", "must be valid UTF-8")
	}
	if content == "" && msg.ImageURL == nil {
		return nil, invalid("content", "must not be empty")
	}
	if validation.ContentTooLong(content, s.limits.MaxLength) {
		return nil, invalid("content", "too long")
	}

	stored, err := s.cipher.Encrypt(content)
	if err != nil {
		return nil, storageFailure(s.log, "message.encrypt", err)
	}
	now := s.now()
	if err := s.messages.UpdateContent(ctx, msg.Kind, msg.ID, stored, now); err != nil {
		if errors.Is(err, repository.ErrNoRowsAffected) {
			// Deleted between load and update.
			return nil, ErrForbidden
		}
		return nil, storageFailure(s.log, "message.update", err)
	}
	metrics.MessageWrites.WithLabelValues(string(msg.Kind), "edit").Inc()
	s.invalidate(ctx, msg.Kind, msg.ScopeID)

	msg.Content = stored
	msg.UpdatedAt = now
	return s.hydrateOne(ctx, msg)
}

func (s *MessageService) DeleteRoomMessage(ctx context.Context, actor, roomID, messageID uuid.UUID) (*models.MessageView, error) {
	member, err := s.gate.require(ctx, roomID, actor)
	if err != nil {
		return nil, err
	}
	msg, err := s.load(ctx, models.KindRoom, roomID, messageID)
	if err != nil {
		return nil, err
	}
	view, changed, err := s.softDelete(ctx, actor, member.Role, msg)
	if err != nil {
		return nil, err
	}
	if changed {
		s.notify.toRoom(ctx, roomID, Event{Type: EventMessageDeleted, Payload: view})
	}
	return view, nil
}

func (s *MessageService) DeleteDirectMessage(ctx context.Context, actor, conversationID, messageID uuid.UUID) (*models.MessageView, error) {
	conv, err := s.conversations.Get(ctx, actor, conversationID)
	if err != nil {
		return nil, err
	}
	msg, err := s.load(ctx, models.KindDirect, conversationID, messageID)
	if err != nil {
		return nil, err
	}
	view, changed, err := s.softDelete(ctx, actor, "", msg)
	if err != nil {
		return nil, err
	}
	if changed {
		s.notify.toUsers(conv.Participants(), Event{Type: EventMessageDeleted, Payload: view})
	}
	return view, nil
}

// softDelete tombstones a message. Deleting a tombstone again is a no-op that
// returns it unchanged.
func (s *MessageService) softDelete(ctx context.Context, actor uuid.UUID, role models.MemberRole, msg *models.Message) (*models.MessageView, bool, error) {
	if !PolicyFor(msg.Kind).CanDelete(actor, msg, role) {
		return nil, false, ErrForbidden
	}
	if msg.IsDeleted() {
		view, err := s.hydrateOne(ctx, msg)
		return view, false, err
	}

	if err := s.messages.SoftDelete(ctx, msg.Kind, msg.ID, s.now()); err != nil {
		return nil, false, storageFailure(s.log, "message.delete", err)
	}
	metrics.MessageWrites.WithLabelValues(string(msg.Kind), "delete").Inc()
	s.invalidate(ctx, msg.Kind, msg.ScopeID)

	// Re-read so a concurrent delete's timestamp wins.
	stored, err := s.messages.FindByID(ctx, msg.Kind, msg.ID)
	if err != nil {
		return nil, false, storageFailure(s.log, "message.reload", err)
	}
	view, err := s.hydrateOne(ctx, stored)
	return view, true, err
}

func (s *MessageService) PageRoom(ctx context.Context, actor, roomID uuid.UUID, cursor *pagination.Cursor, limit int) (*MessagePage, error) {
	if _, err := s.gate.require(ctx, roomID, actor); err != nil {
		return nil, err
	}
	return s.page(ctx, models.KindRoom, roomID, cursor, limit)
}

func (s *MessageService) PageConversation(ctx context.Context, actor, conversationID uuid.UUID, cursor *pagination.Cursor, limit int) (*MessagePage, error) {
	if _, err := s.conversations.Get(ctx, actor, conversationID); err != nil {
		return nil, err
	}
	return s.page(ctx, models.KindDirect, conversationID, cursor, limit)
}

func (s *MessageService) page(ctx context.Context, kind models.MessageKind, scopeID uuid.UUID, cursor *pagination.Cursor, limit int) (*MessagePage, error) {
	limit = pagination.NormalizeLimit(limit, s.limits.DefaultPageSize, s.limits.MaxPageSize)

	var (
		rows     []models.Message
		gen      int64
		useCache bool
		cached   bool
	)
	// The generation is read before the fetch so a write landing in between
	// makes the fill below a no-op.
	if cursor == nil && s.cache != nil {
		gen, useCache = s.cache.Generation(ctx, kind, scopeID)
	}
	if useCache {
		rows, cached = s.cache.GetHead(ctx, kind, scopeID, gen, limit)
	}
	if !cached {
		var err error
		rows, err = s.messages.Page(ctx, kind, scopeID, cursor, limit+1)
		if err != nil {
			return nil, storageFailure(s.log, "message.page", err)
		}
		if useCache {
			if err := s.cache.SetHead(ctx, kind, scopeID, gen, limit, rows); err != nil {
				s.log.Warn().Err(err).Str("scope_id", scopeID.String()).Msg("failed to cache head page")
			}
		}
	}

	p := pagination.Trim(rows, limit, messageCursor)
	views, err := s.hydrate(ctx, p.Items)
	if err != nil {
		return nil, err
	}
	out := &MessagePage{Messages: views, HasMore: p.HasMore}
	if p.NextCursor != nil {
		next := p.NextCursor.String()
		out.NextCursor = &next
	}
	return out, nil
}

func messageCursor(m models.Message) pagination.Cursor {
	return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
}

// load fetches a message and checks it belongs to the addressed scope. A
// mismatch is indistinguishable from a missing message.
func (s *MessageService) load(ctx context.Context, kind models.MessageKind, scopeID, messageID uuid.UUID) (*models.Message, error) {
	msg, err := s.messages.FindByID(ctx, kind, messageID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, storageFailure(s.log, "message.get", err)
	}
	if msg.ScopeID != scopeID {
		return nil, ErrNotFound
	}
	return msg, nil
}

func (s *MessageService) validateBody(raw string, rawImage *string) (string, *string, error) {
	content := validation.NormalizeContent(raw)
	image := validation.NormalizeImageURL(rawImage)
	if !utf8.ValidString(content) {
		return "", nil, invalid("content", "must be valid UTF-8")
	}
	if content == "" && image == nil {
		return "", nil, invalid("content", "message must have text or an image")
	}
	if validation.ContentTooLong(content, s.limits.MaxLength) {
		return "", nil, invalid("content", "too long")
	}
	if image != nil && !validation.ValidateImageURL(*image) {
		return "", nil, invalid("image_url", "invalid url")
	}
	return content, image, nil
}

func (s *MessageService) invalidate(ctx context.Context, kind models.MessageKind, scopeID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, kind, scopeID); err != nil {
		s.log.Warn().Err(err).Str("kind", string(kind)).Str("scope_id", scopeID.String()).Msg("failed to invalidate page cache")
	}
}

func (s *MessageService) author(ctx context.Context, id uuid.UUID) *models.UserSummary {
	users, err := s.users.FindByIDs(ctx, []uuid.UUID{id})
	if err != nil || len(users) == 0 {
		return nil
	}
	summary := users[0].ToSummary()
	return &summary
}

func (s *MessageService) hydrateOne(ctx context.Context, msg *models.Message) (*models.MessageView, error) {
	views, err := s.hydrate(ctx, []models.Message{*msg})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// hydrate decrypts bodies and attaches authors and reactions.
func (s *MessageService) hydrate(ctx context.Context, msgs []models.Message) ([]models.MessageView, error) {
	views := make([]models.MessageView, len(msgs))
	if len(msgs) == 0 {
		return views, nil
	}

	userIDs := make([]uuid.UUID, 0, len(msgs))
	roomIDs := make([]uuid.UUID, 0, len(msgs))
	for i := range msgs {
		userIDs = append(userIDs, msgs[i].AuthorID)
		if msgs[i].Kind == models.KindRoom {
			roomIDs = append(roomIDs, msgs[i].ID)
		}
	}

	var reactions []models.Reaction
	if len(roomIDs) > 0 {
		var err error
		reactions, err = s.reactions.ListByMessages(ctx, roomIDs)
		if err != nil {
			return nil, storageFailure(s.log, "reaction.list", err)
		}
		for i := range reactions {
			userIDs = append(userIDs, reactions[i].UserID)
		}
	}

	users, err := s.users.FindByIDs(ctx, uniqueIDs(userIDs))
	if err != nil {
		return nil, storageFailure(s.log, "user.list", err)
	}
	byID := summariesByID(users)

	byMessage := make(map[uuid.UUID][]models.ReactionView, len(roomIDs))
	for i := range reactions {
		r := &reactions[i]
		byMessage[r.MessageID] = append(byMessage[r.MessageID], models.ReactionView{
			ID:     r.ID,
			Emoji:  r.Emoji,
			UserID: r.UserID,
			User:   byID[r.UserID],
		})
	}

	for i := range msgs {
		m := &msgs[i]
		plaintext := ""
		if !m.IsDeleted() {
			plaintext = s.cipher.Decrypt(m.Content)
		}
		views[i] = models.NewMessageView(m, plaintext)
		views[i].Author = byID[m.AuthorID]
		if rs, ok := byMessage[m.ID]; ok {
			views[i].Reactions = rs
		}
	}
	return views, nil
}
