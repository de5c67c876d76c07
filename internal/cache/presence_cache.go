package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	OnlineTTL = 90 * time.Second // Match pong timeout
)

// PresenceCache mirrors online status per room so hot paths can skip the database.
// The database row stays authoritative.
type PresenceCache struct {
	redis *RedisCache
}

func NewPresenceCache(redis *RedisCache) *PresenceCache {
	return &PresenceCache{redis: redis}
}

func roomOnlineKey(roomID uuid.UUID) string {
	return fmt.Sprintf("presence:room:%s", roomID)
}

func memberOnlineKey(roomID, userID uuid.UUID) string {
	return fmt.Sprintf("presence:%s:%s", roomID, userID)
}

// Enabled reports whether a redis backend is attached.
func (pc *PresenceCache) Enabled() bool {
	return pc != nil && pc.redis != nil
}

func (pc *PresenceCache) MarkOnline(ctx context.Context, roomID, userID uuid.UUID) error {
	if !pc.Enabled() {
		return nil
	}
	if err := pc.redis.SetAdd(ctx, roomOnlineKey(roomID), userID.String()); err != nil {
		return err
	}
	// Per-member key expires on its own if heartbeats stop.
	return pc.redis.Set(ctx, memberOnlineKey(roomID, userID), []byte("1"), OnlineTTL)
}

func (pc *PresenceCache) MarkOffline(ctx context.Context, roomID, userID uuid.UUID) error {
	if !pc.Enabled() {
		return nil
	}
	if err := pc.redis.SetRemove(ctx, roomOnlineKey(roomID), userID.String()); err != nil {
		return err
	}
	return pc.redis.Delete(ctx, memberOnlineKey(roomID, userID))
}

// OnlineUsers returns members whose per-member key is still alive and prunes
// the ones that expired.
func (pc *PresenceCache) OnlineUsers(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error) {
	if !pc.Enabled() {
		return nil, nil
	}
	members, err := pc.redis.SetMembers(ctx, roomOnlineKey(roomID))
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			continue
		}
		if !pc.redis.Exists(ctx, memberOnlineKey(roomID, id)) {
			_ = pc.redis.SetRemove(ctx, roomOnlineKey(roomID), m)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
