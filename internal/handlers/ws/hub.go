package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/noteduco342/courtside-chat/internal/metrics"
	"github.com/noteduco342/courtside-chat/internal/service"
	"github.com/rs/zerolog"
)

const (
	gzipThreshold = 512
	writeWait     = 10 * time.Second
	// Frames a connection may have pending before it is considered too slow
	// and dropped.
	sendQueueSize = 64
)

// Conn is the subset of *websocket.Conn the hub writes through.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// ClientConnection wraps one websocket connection. A user may hold several.
type ClientConnection struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	SupportsGzip bool

	conn      Conn
	writeMu   sync.Mutex
	mu        sync.Mutex
	lastPong  time.Time
	heartbeat time.Time
	rooms     map[uuid.UUID]struct{}
	send      chan frame
	closeOnce sync.Once
	closeChan chan struct{}
}

// Send marshals v and writes it as one frame, gzip-compressed when the client
// opted in and the frame is large enough. It writes on the caller's goroutine
// and is meant for replies from the connection's own read loop; fan-out goes
// through Publish.
func (c *ClientConnection) Send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(encodeFrame(data, c.SupportsGzip))
}

// SendMessage writes a typed frame in the same envelope clients send.
func (c *ClientConnection) SendMessage(msg Message) error {
	data, err := Serialize(msg)
	if err != nil {
		return err
	}
	return c.write(encodeFrame(data, c.SupportsGzip))
}

func (c *ClientConnection) write(f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(f.messageType, f.data)
}

// enqueue hands a frame to the connection's writer without blocking. It
// returns false when the queue is full.
func (c *ClientConnection) enqueue(f frame) bool {
	select {
	case <-c.closeChan:
		return true
	default:
	}
	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

// SendError reports a failed frame to the client.
func (c *ClientConnection) SendError(code, message, details string) error {
	return c.Send(ErrorResponse{Type: "error", Error: message, Code: code, Details: details})
}

// Subscribe records interest in a room and reports whether it is new.
func (c *ClientConnection) Subscribe(roomID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[roomID]; ok {
		return false
	}
	c.rooms[roomID] = struct{}{}
	return true
}

// Unsubscribe drops a room and reports whether it was subscribed.
func (c *ClientConnection) Unsubscribe(roomID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[roomID]; !ok {
		return false
	}
	delete(c.rooms, roomID)
	return true
}

func (c *ClientConnection) Subscribed(roomID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[roomID]
	return ok
}

func (c *ClientConnection) Rooms() []uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uuid.UUID, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	return out
}

// heartbeatDue reports whether presence should be refreshed, and if so marks it
// refreshed as of now.
func (c *ClientConnection) heartbeatDue(now time.Time, every time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.Sub(c.heartbeat) < every {
		return false
	}
	c.heartbeat = now
	return true
}

func (c *ClientConnection) touch(now time.Time) {
	c.mu.Lock()
	c.lastPong = now
	c.mu.Unlock()
}

func (c *ClientConnection) lastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPong
}

// Hub tracks connected clients and fans realtime events out to them. It
// implements service.EventPublisher.
type Hub struct {
	clients      map[uuid.UUID]map[*ClientConnection]struct{}
	clientsMux   sync.RWMutex
	pingInterval time.Duration
	pongTimeout  time.Duration
	log          zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:      make(map[uuid.UUID]map[*ClientConnection]struct{}),
		pingInterval: 30 * time.Second,
		pongTimeout:  90 * time.Second,
		log:          log.With().Str("component", "ws_hub").Logger(),
	}
}

var _ service.EventPublisher = (*Hub)(nil)

// Run removes connections that stopped answering pings until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.reapDead(now)
		}
	}
}

// Register adds a connection and starts its writer and ping routines.
func (h *Hub) Register(userID uuid.UUID, conn Conn, supportsGzip bool) *ClientConnection {
	now := time.Now()
	client := &ClientConnection{
		ID:           uuid.New(),
		UserID:       userID,
		SupportsGzip: supportsGzip,
		conn:         conn,
		lastPong:     now,
		heartbeat:    now,
		rooms:        make(map[uuid.UUID]struct{}),
		send:         make(chan frame, sendQueueSize),
		closeChan:    make(chan struct{}),
	}

	conn.SetPongHandler(func(string) error {
		client.touch(time.Now())
		return conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
	})
	_ = conn.SetReadDeadline(now.Add(h.pongTimeout))

	h.clientsMux.Lock()
	set, ok := h.clients[userID]
	if !ok {
		set = make(map[*ClientConnection]struct{})
		h.clients[userID] = set
	}
	set[client] = struct{}{}
	total := h.countLocked()
	h.clientsMux.Unlock()

	metrics.WebsocketConnections.Inc()
	go h.writePump(client)
	go h.pingRoutine(client)

	h.log.Info().
		Str("user_id", userID.String()).
		Str("conn_id", client.ID.String()).
		Bool("gzip", supportsGzip).
		Int("total", total).
		Msg("client connected")
	return client
}

// Touch records inbound traffic on a connection and extends its read deadline.
func (h *Hub) Touch(client *ClientConnection) {
	now := time.Now()
	client.touch(now)
	_ = client.conn.SetReadDeadline(now.Add(h.pongTimeout))
}

// Unregister removes a connection. It reports false if it was already gone.
func (h *Hub) Unregister(client *ClientConnection) bool {
	h.clientsMux.Lock()
	set, ok := h.clients[client.UserID]
	if ok {
		_, ok = set[client]
		delete(set, client)
		if len(set) == 0 {
			delete(h.clients, client.UserID)
		}
	}
	total := h.countLocked()
	h.clientsMux.Unlock()

	if !ok {
		return false
	}
	client.closeOnce.Do(func() { close(client.closeChan) })
	metrics.WebsocketConnections.Dec()
	h.log.Info().
		Str("user_id", client.UserID.String()).
		Str("conn_id", client.ID.String()).
		Int("total", total).
		Msg("client disconnected")
	return true
}

// drop unregisters a client and closes its socket so the read loop exits.
func (h *Hub) drop(client *ClientConnection) {
	if h.Unregister(client) {
		_ = client.conn.Close()
	}
}

func (h *Hub) IsOnline(userID uuid.UUID) bool {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	return len(h.clients[userID]) > 0
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	return h.countLocked()
}

func (h *Hub) countLocked() int {
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// SubscribedElsewhere reports whether the user has another connection
// subscribed to the room.
func (h *Hub) SubscribedElsewhere(userID, roomID uuid.UUID, except *ClientConnection) bool {
	for _, c := range h.connections(userID) {
		if c != except && c.Subscribed(roomID) {
			return true
		}
	}
	return false
}

func (h *Hub) connections(userID uuid.UUID) []*ClientConnection {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	set := h.clients[userID]
	out := make([]*ClientConnection, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// Publish queues an event on every connection of the listed users and returns
// without waiting for the writes. Offline users are skipped; there is no
// offline queue. A connection whose queue is full is dropped.
func (h *Hub) Publish(recipients []uuid.UUID, event service.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Str("event", event.Type).Msg("marshal event")
		return
	}
	plain := frame{messageType: websocket.TextMessage, data: data}
	var compressed *frame

	for _, userID := range recipients {
		for _, client := range h.connections(userID) {
			f := plain
			if client.SupportsGzip && len(data) > gzipThreshold {
				if compressed == nil {
					c := encodeFrame(data, true)
					compressed = &c
				}
				f = *compressed
			}
			if !client.enqueue(f) {
				h.log.Warn().
					Str("user_id", userID.String()).
					Str("conn_id", client.ID.String()).
					Str("event", event.Type).
					Msg("send queue full, dropping connection")
				h.drop(client)
			}
		}
	}
}

// writePump drains the connection's queue until it is unregistered.
func (h *Hub) writePump(client *ClientConnection) {
	for {
		select {
		case <-client.closeChan:
			return
		case f := <-client.send:
			if err := client.write(f); err != nil {
				h.log.Warn().Err(err).
					Str("user_id", client.UserID.String()).
					Str("conn_id", client.ID.String()).
					Msg("write failed, dropping connection")
				h.drop(client)
				return
			}
		}
	}
}

func (h *Hub) pingRoutine(client *ClientConnection) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Str("user_id", client.UserID.String()).Msg("ping routine recovered")
		}
	}()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-client.closeChan:
			return
		case <-ticker.C:
			client.writeMu.Lock()
			err := client.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait))
			client.writeMu.Unlock()
			if err != nil {
				h.log.Debug().Err(err).Str("user_id", client.UserID.String()).Msg("ping failed")
				h.drop(client)
				return
			}
		}
	}
}

func (h *Hub) reapDead(now time.Time) {
	h.clientsMux.RLock()
	dead := make([]*ClientConnection, 0)
	for _, set := range h.clients {
		for c := range set {
			if now.Sub(c.lastSeen()) > h.pongTimeout {
				dead = append(dead, c)
			}
		}
	}
	h.clientsMux.RUnlock()

	for _, c := range dead {
		h.log.Info().Str("user_id", c.UserID.String()).Msg("removing dead connection (no pong received)")
		h.drop(c)
	}
}
