package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/handlers/ws"
	"github.com/rs/zerolog"
)

const frameTimeout = 10 * time.Second

type WebSocketHandler struct {
	hub       *ws.Hub
	presence  ws.PresenceTracker
	readState ws.ReadMarker
	log       zerolog.Logger
	debug     bool
}

func NewWebSocketHandler(hub *ws.Hub, presence ws.PresenceTracker, readState ws.ReadMarker, log zerolog.Logger, debug bool) *WebSocketHandler {
	return &WebSocketHandler{
		hub:       hub,
		presence:  presence,
		readState: readState,
		log:       log,
		debug:     debug,
	}
}

// GetHub returns the hub instance (useful for sending messages from other handlers)
func (h *WebSocketHandler) GetHub() *ws.Hub {
	return h.hub
}

// Upgrade rejects plain HTTP requests to the websocket route.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (h *WebSocketHandler) HandleWebSocket(c *websocket.Conn) {
	userID, ok := c.Locals("userID").(uuid.UUID)
	if !ok || userID == uuid.Nil {
		_ = c.Close()
		return
	}

	// Check if client supports gzip compression (via query param or header)
	supportsGzip := c.Query("gzip") == "1" || c.Headers("X-Supports-Gzip") == "1"

	client := h.hub.Register(userID, c, supportsGzip)
	log := h.log.With().Str("user_id", userID.String()).Str("conn_id", client.ID.String()).Logger()

	defer func() {
		h.hub.Unregister(client)
		for _, err := range ws.ReleaseRooms(context.Background(), h.hub, client, h.presence) {
			log.Warn().Err(err).Msg("failed to release room presence")
		}
	}()

	base := context.Background()
	for {
		messageType, messageBytes, err := c.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Msg("read loop ended")
			break
		}
		h.hub.Touch(client)

		if h.debug {
			log.Debug().Int("frame_type", messageType).Int("size", len(messageBytes)).Msg("ws_recv")
		}

		// Decompress if binary message (gzip compressed)
		if messageType == websocket.BinaryMessage {
			decompressed, err := ws.DecompressMessage(messageBytes)
			if err != nil {
				_ = client.SendError("decompression_failed", "Failed to decompress message", "")
				continue
			}
			messageBytes = decompressed
		}

		msg, err := ws.Deserialize(messageBytes)
		if err != nil {
			_ = client.SendError("invalid_message", "Invalid message format", err.Error())
			continue
		}

		ctx, cancel := context.WithTimeout(base, frameTimeout)
		err = msg.Process(&ws.MessageContext{
			Ctx:       ctx,
			UserID:    userID,
			Client:    client,
			Hub:       h.hub,
			Presence:  h.presence,
			ReadState: h.readState,
			Log:       log,
		})
		cancel()
		if err != nil {
			code, text := ws.ErrorCode(err)
			log.Debug().Err(err).Str("type", msg.GetType()).Msg("frame rejected")
			_ = client.SendError(code, text, msg.GetType())
		}
	}
}
