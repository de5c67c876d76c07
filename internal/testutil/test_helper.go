package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/models"
)

// TestKey is a base64 32-byte key for cipher-backed tests.
const TestKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="

// TestHelper provides utility functions for tests
type TestHelper struct {
	t *testing.T
}

func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{t: t}
}

// CreateTestUser creates a test user with default values
func (h *TestHelper) CreateTestUser(fullName string) *models.User {
	h.t.Helper()
	if fullName == "" {
		fullName = "Test User"
	}
	avatar := "https://example.com/avatar.jpg"
	return &models.User{
		ID:        uuid.New(),
		FullName:  fullName,
		AvatarURL: &avatar,
	}
}

// CreateTestMembership joins a user to a room with the given role.
func (h *TestHelper) CreateTestMembership(roomID, userID uuid.UUID, role models.MemberRole) *models.Membership {
	h.t.Helper()
	if role == "" {
		role = models.RoleMember
	}
	return &models.Membership{
		ID:       uuid.New(),
		RoomID:   roomID,
		UserID:   userID,
		Role:     role,
		JoinedAt: time.Now().UTC(),
	}
}

// CreateTestMessage creates a stored room message with default values
func (h *TestHelper) CreateTestMessage(roomID, authorID uuid.UUID, content string, at time.Time) *models.Message {
	h.t.Helper()
	if content == "" {
		content = "Test message"
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return &models.Message{
		Kind:      models.KindRoom,
		ID:        uuid.New(),
		ScopeID:   roomID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// Clock is a manual time source. Each Now call advances it by Step.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC(), Step: time.Second}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.Step)
	return t
}
