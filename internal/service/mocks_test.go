package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/models"
	"github.com/noteduco342/courtside-chat/internal/pagination"
	"github.com/noteduco342/courtside-chat/internal/repository"
	"github.com/noteduco342/courtside-chat/internal/security"
	"github.com/noteduco342/courtside-chat/internal/testutil"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var errBoom = errors.New("connection reset")

// MockMessageRepository keeps messages of both kinds in memory and pages them
// the way postgres orders (created_at DESC, id DESC).
type MockMessageRepository struct {
	mu       sync.Mutex
	messages map[uuid.UUID]*models.Message
	pageErr  error
	// afterPage runs once, outside the lock, after the next Page has read
	// its rows.
	afterPage func()
}

func NewMockMessageRepository() *MockMessageRepository {
	return &MockMessageRepository{messages: make(map[uuid.UUID]*models.Message)}
}

func (m *MockMessageRepository) Create(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	m.messages[msg.ID] = &cp
	return nil
}

func (m *MockMessageRepository) FindByID(ctx context.Context, kind models.MessageKind, id uuid.UUID) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.Kind != kind {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *msg
	return &cp, nil
}

func (m *MockMessageRepository) UpdateContent(ctx context.Context, kind models.MessageKind, id uuid.UUID, content string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.Kind != kind || msg.DeletedAt != nil {
		return repository.ErrNoRowsAffected
	}
	msg.Content = content
	msg.UpdatedAt = at
	return nil
}

func (m *MockMessageRepository) SoftDelete(ctx context.Context, kind models.MessageKind, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.Kind != kind || msg.DeletedAt != nil {
		return nil
	}
	t := at
	msg.DeletedAt = &t
	return nil
}

func (m *MockMessageRepository) Page(ctx context.Context, kind models.MessageKind, scopeID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Message, error) {
	rows, err := m.page(kind, scopeID, cursor, limit)
	m.mu.Lock()
	hook := m.afterPage
	m.afterPage = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return rows, err
}

func (m *MockMessageRepository) page(kind models.MessageKind, scopeID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pageErr != nil {
		return nil, m.pageErr
	}
	var rows []models.Message
	for _, msg := range m.messages {
		if msg.Kind != kind || msg.ScopeID != scopeID {
			continue
		}
		if cursor != nil && !pastCursor(*cursor, msg.CreatedAt, msg.ID) {
			continue
		}
		rows = append(rows, *msg)
	}
	sortNewestFirst(rows)
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m *MockMessageRepository) LatestByScope(ctx context.Context, kind models.MessageKind, scopeIDs []uuid.UUID) (map[uuid.UUID]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(scopeIDs))
	for _, id := range scopeIDs {
		want[id] = true
	}
	out := make(map[uuid.UUID]models.Message)
	for _, msg := range m.messages {
		if msg.Kind != kind || !want[msg.ScopeID] {
			continue
		}
		cur, ok := out[msg.ScopeID]
		if !ok || msg.CreatedAt.After(cur.CreatedAt) ||
			(msg.CreatedAt.Equal(cur.CreatedAt) && compareIDs(msg.ID, cur.ID) > 0) {
			out[msg.ScopeID] = *msg
		}
	}
	return out, nil
}

func (m *MockMessageRepository) stored(id uuid.UUID) models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.messages[id]
}

// compareIDs orders ids bytewise, matching postgres uuid ordering.
func compareIDs(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}

// pastCursor reports whether a row keyed (at, id) belongs after the cursor in
// newest-first order, the same predicate the postgres repository applies.
func pastCursor(c pagination.Cursor, at time.Time, id uuid.UUID) bool {
	if at.Before(c.CreatedAt) {
		return true
	}
	if !c.HasTieBreak() || !at.Equal(c.CreatedAt) {
		return false
	}
	return compareIDs(id, c.ID) < 0
}

func sortNewestFirst(rows []models.Message) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return compareIDs(rows[i].ID, rows[j].ID) > 0
	})
}

// MockConversationRepository enforces the canonical-pair uniqueness. When
// createGate is set, Create blocks on it so tests can line up racing callers.
type MockConversationRepository struct {
	mu         sync.Mutex
	byID       map[uuid.UUID]*models.Conversation
	createGate chan struct{}
	creates    int
}

func NewMockConversationRepository() *MockConversationRepository {
	return &MockConversationRepository{byID: make(map[uuid.UUID]*models.Conversation)}
}

func (m *MockConversationRepository) FindByPair(ctx context.Context, communityID, low, high uuid.UUID) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byID {
		if c.CommunityID == communityID && c.UserAID == low && c.UserBID == high {
			cp := *c
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MockConversationRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MockConversationRepository) Create(ctx context.Context, conv *models.Conversation) error {
	if m.createGate != nil {
		<-m.createGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	for _, c := range m.byID {
		if c.CommunityID == conv.CommunityID && c.UserAID == conv.UserAID && c.UserBID == conv.UserBID {
			return repository.ErrDuplicate
		}
	}
	cp := *conv
	m.byID[conv.ID] = &cp
	return nil
}

func (m *MockConversationRepository) ListForUser(ctx context.Context, communityID, userID uuid.UUID) ([]models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Conversation
	for _, c := range m.byID {
		if c.CommunityID == communityID && c.HasParticipant(userID) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *MockConversationRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

type reactionKey struct {
	message uuid.UUID
	user    uuid.UUID
	emoji   string
}

type MockReactionRepository struct {
	mu        sync.Mutex
	reactions map[reactionKey]models.Reaction
}

func NewMockReactionRepository() *MockReactionRepository {
	return &MockReactionRepository{reactions: make(map[reactionKey]models.Reaction)}
}

func (m *MockReactionRepository) Create(ctx context.Context, r *models.Reaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := reactionKey{r.MessageID, r.UserID, r.Emoji}
	if _, ok := m.reactions[k]; ok {
		return repository.ErrDuplicate
	}
	m.reactions[k] = *r
	return nil
}

func (m *MockReactionRepository) Delete(ctx context.Context, messageID, userID uuid.UUID, emoji string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := reactionKey{messageID, userID, emoji}
	if _, ok := m.reactions[k]; !ok {
		return 0, nil
	}
	delete(m.reactions, k)
	return 1, nil
}

func (m *MockReactionRepository) ListByMessages(ctx context.Context, ids []uuid.UUID) ([]models.Reaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []models.Reaction
	for _, r := range m.reactions {
		if want[r.MessageID] {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MockReactionRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reactions)
}

type MockMembershipRepository struct {
	mu      sync.Mutex
	members map[uuid.UUID]map[uuid.UUID]*models.Membership
	getErr  error
}

func NewMockMembershipRepository() *MockMembershipRepository {
	return &MockMembershipRepository{members: make(map[uuid.UUID]map[uuid.UUID]*models.Membership)}
}

func (m *MockMembershipRepository) add(ms *models.Membership) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[ms.RoomID] == nil {
		m.members[ms.RoomID] = make(map[uuid.UUID]*models.Membership)
	}
	m.members[ms.RoomID][ms.UserID] = ms
}

func (m *MockMembershipRepository) remove(roomID, userID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members[roomID], userID)
}

func (m *MockMembershipRepository) Get(ctx context.Context, roomID, userID uuid.UUID) (*models.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	ms, ok := m.members[roomID][userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *ms
	return &cp, nil
}

func (m *MockMembershipRepository) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Membership
	for _, ms := range m.members[roomID] {
		out = append(out, *ms)
	}
	return out, nil
}

func (m *MockMembershipRepository) TouchLastRead(ctx context.Context, roomID, userID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.members[roomID][userID]
	if !ok {
		return repository.ErrNoRowsAffected
	}
	t := at
	ms.LastReadAt = &t
	return nil
}

func (m *MockMembershipRepository) setLastRead(roomID, userID uuid.UUID, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := at
	m.members[roomID][userID].LastReadAt = &t
}

type presenceKey struct {
	user uuid.UUID
	room uuid.UUID
}

type MockPresenceRepository struct {
	mu      sync.Mutex
	records map[presenceKey]models.PresenceRecord
	upserts int
}

func NewMockPresenceRepository() *MockPresenceRepository {
	return &MockPresenceRepository{records: make(map[presenceKey]models.PresenceRecord)}
}

func (m *MockPresenceRepository) Upsert(ctx context.Context, rec *models.PresenceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	m.records[presenceKey{rec.UserID, rec.RoomID}] = *rec
	return nil
}

func (m *MockPresenceRepository) ListByRoom(ctx context.Context, roomID uuid.UUID) ([]models.PresenceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PresenceRecord
	for k, r := range m.records {
		if k.room == roomID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MockPresenceRepository) ListStale(ctx context.Context, status models.PresenceStatus, seenBefore time.Time, limit int) ([]models.PresenceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PresenceRecord
	for _, r := range m.records {
		if r.Status == status && r.LastSeenAt.Before(seenBefore) {
			out = append(out, r)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type MockUserRepository struct {
	mu    sync.Mutex
	users map[uuid.UUID]models.User
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[uuid.UUID]models.User)}
}

func (m *MockUserRepository) add(u *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = *u
}

func (m *MockUserRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	recipients []uuid.UUID
	event      Event
}

func (p *recordingPublisher) Publish(recipients []uuid.UUID, event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{recipients: recipients, event: event})
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.event.Type
	}
	return out
}

func (p *recordingPublisher) last() publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return publishedEvent{}
	}
	return p.events[len(p.events)-1]
}

// fakePageCache is a map-backed head-page cache with per-scope generations.
type fakePageCache struct {
	mu          sync.Mutex
	generations map[string]int64
	entries     map[string][]models.Message
	hits        int
	dropped     int
}

func newFakePageCache() *fakePageCache {
	return &fakePageCache{
		generations: make(map[string]int64),
		entries:     make(map[string][]models.Message),
	}
}

func pageCacheScope(kind models.MessageKind, scopeID uuid.UUID) string {
	return string(kind) + ":" + scopeID.String()
}

func pageCacheKey(kind models.MessageKind, scopeID uuid.UUID, gen int64, limit int) string {
	return fmt.Sprintf("%s:%d:%d", pageCacheScope(kind, scopeID), gen, limit)
}

func (c *fakePageCache) Generation(ctx context.Context, kind models.MessageKind, scopeID uuid.UUID) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[pageCacheScope(kind, scopeID)], true
}

func (c *fakePageCache) GetHead(ctx context.Context, kind models.MessageKind, scopeID uuid.UUID, gen int64, limit int) ([]models.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, ok := c.entries[pageCacheKey(kind, scopeID, gen, limit)]
	if ok {
		c.hits++
	}
	return rows, ok
}

func (c *fakePageCache) SetHead(ctx context.Context, kind models.MessageKind, scopeID uuid.UUID, gen int64, limit int, rows []models.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[pageCacheScope(kind, scopeID)] != gen {
		c.dropped++
		return nil
	}
	c.entries[pageCacheKey(kind, scopeID, gen, limit)] = append([]models.Message(nil), rows...)
	return nil
}

func (c *fakePageCache) Invalidate(ctx context.Context, kind models.MessageKind, scopeID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[pageCacheScope(kind, scopeID)]++
	return nil
}

// fixture wires every service over shared in-memory stores.
type fixture struct {
	t *testing.T

	messages      *MockMessageRepository
	conversations *MockConversationRepository
	reactions     *MockReactionRepository
	memberships   *MockMembershipRepository
	presence      *MockPresenceRepository
	users         *MockUserRepository

	cipher    *security.ContentCipher
	clock     *testutil.Clock
	publisher *recordingPublisher
	helper    *testutil.TestHelper

	conversationSvc *ConversationService
	messageSvc      *MessageService
	reactionSvc     *ReactionService
	readSvc         *ReadStateService
	presenceSvc     *PresenceService

	room uuid.UUID
}

var fixtureStart = time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := security.NewEnvKeyProvider(testutil.TestKey).DataKey(context.Background())
	if err != nil {
		t.Fatalf("DataKey: %v", err)
	}
	cipher, err := security.NewContentCipher(key, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewContentCipher: %v", err)
	}

	f := &fixture{
		t:             t,
		messages:      NewMockMessageRepository(),
		conversations: NewMockConversationRepository(),
		reactions:     NewMockReactionRepository(),
		memberships:   NewMockMembershipRepository(),
		presence:      NewMockPresenceRepository(),
		users:         NewMockUserRepository(),
		cipher:        cipher,
		clock:         testutil.NewClock(fixtureStart),
		publisher:     &recordingPublisher{},
		helper:        testutil.NewTestHelper(t),
		room:          uuid.New(),
	}
	stores := Stores{
		Messages:      f.messages,
		Conversations: f.conversations,
		Reactions:     f.reactions,
		Memberships:   f.memberships,
		Presence:      f.presence,
		Users:         f.users,
	}
	log := zerolog.Nop()

	f.conversationSvc = NewConversationService(stores, cipher, log)
	f.messageSvc = NewMessageService(stores, f.conversationSvc, cipher, nil, f.publisher, MessageLimits{MaxLength: 200}, log)
	f.reactionSvc = NewReactionService(stores, f.publisher, log)
	f.readSvc = NewReadStateService(stores, f.publisher, log)
	f.presenceSvc = NewPresenceService(stores, nil, f.publisher, log)

	f.conversationSvc.now = f.clock.Now
	f.messageSvc.now = f.clock.Now
	f.reactionSvc.now = f.clock.Now
	f.readSvc.now = f.clock.Now
	f.presenceSvc.now = f.clock.Now
	return f
}

// member creates a user and joins them to the fixture room.
func (f *fixture) member(name string, role models.MemberRole) uuid.UUID {
	u := f.helper.CreateTestUser(name)
	f.users.add(u)
	f.memberships.add(f.helper.CreateTestMembership(f.room, u.ID, role))
	return u.ID
}

// outsider creates a user with no membership.
func (f *fixture) outsider(name string) uuid.UUID {
	u := f.helper.CreateTestUser(name)
	f.users.add(u)
	return u.ID
}

func (f *fixture) post(author uuid.UUID, content string) *models.MessageView {
	f.t.Helper()
	v, err := f.messageSvc.SendRoomMessage(context.Background(), author, f.room, SendMessageInput{Content: content})
	if err != nil {
		f.t.Fatalf("SendRoomMessage: %v", err)
	}
	return v
}

// seed stores a room message directly with a fixed timestamp and plaintext body.
func (f *fixture) seed(author uuid.UUID, content string, at time.Time) models.Message {
	f.t.Helper()
	stored, err := f.cipher.Encrypt(content)
	if err != nil {
		f.t.Fatalf("Encrypt: %v", err)
	}
	msg := f.helper.CreateTestMessage(f.room, author, stored, at)
	if err := f.messages.Create(context.Background(), msg); err != nil {
		f.t.Fatalf("Create: %v", err)
	}
	return *msg
}
