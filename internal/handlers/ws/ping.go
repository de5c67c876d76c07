package ws

import (
	"time"

	"github.com/noteduco342/courtside-chat/internal/models"
)

// presenceRefresh is how often client pings re-stamp presence in subscribed
// rooms. It must stay well below the sweeper's stale threshold.
const presenceRefresh = time.Minute

// MessagePing is a keepalive ping from client
type MessagePing struct {
}

func (msg *MessagePing) GetType() string {
	return "ping"
}

func (msg *MessagePing) Process(ctx *MessageContext) error {
	if ctx.Presence != nil && ctx.Client.heartbeatDue(time.Now(), presenceRefresh) {
		for _, roomID := range ctx.Client.Rooms() {
			if _, err := ctx.Presence.Set(ctx.Ctx, ctx.UserID, roomID, models.PresenceOnline); err != nil {
				ctx.Log.Debug().Err(err).Str("room_id", roomID.String()).Msg("presence heartbeat failed")
			}
		}
	}
	return ctx.Client.SendMessage(&MessagePong{})
}

// MessagePong is a pong response (in case client wants to track latency)
type MessagePong struct {
}

func (msg *MessagePong) GetType() string {
	return "pong"
}

func (msg *MessagePong) Process(ctx *MessageContext) error {
	return nil
}
