package realtime

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// Client is one websocket connection. Players are keyed by user id inside
// their room, spectators by a generated id.
type Client struct {
	ID       string
	Hub      *Hub
	Conn     *websocket.Conn
	Send     chan []byte
	Room     string
	UserID   int
	IsClosed bool
	Mu       sync.Mutex
}

func NewClient(hub *Hub, conn *websocket.Conn, room string, userID int) *Client {
	return &Client{
		ID:     uuid.NewString(),
		Hub:    hub,
		Conn:   conn,
		Send:   make(chan []byte, sendBufferSize),
		Room:   room,
		UserID: userID,
	}
}

func (c *Client) key() string {
	if c.UserID > 0 {
		return userKey(c.UserID)
	}
	return c.ID
}

func userKey(userID int) string {
	return "user:" + strconv.Itoa(userID)
}

func (c *Client) enqueue(message []byte) bool {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	if c.IsClosed {
		return false
	}
	select {
	case c.Send <- message:
		return true
	default:
		return false
	}
}

// SendMessage queues msg for this connection only.
func (c *Client) SendMessage(msg Message) bool {
	payload, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	return c.enqueue(payload)
}

// Close stops the write pump, which sends a close frame to the peer.
func (c *Client) Close() {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	if !c.IsClosed {
		close(c.Send)
		c.IsClosed = true
	}
}

// Hub is the connection registry: room -> client key -> client.
type Hub struct {
	rooms  map[string]map[string]*Client
	mu     sync.RWMutex
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[string]*Client),
		logger: logger,
	}
}

// Register adds c to its room. An older connection of the same user is closed.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.Room]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[c.Room] = room
	}
	old := room[c.key()]
	room[c.key()] = c
	size := len(room)
	h.mu.Unlock()

	if old != nil && old != c {
		old.Close()
		h.logger.Info("replaced existing connection", slog.String("room", c.Room), slog.Int("user_id", c.UserID))
	}
	h.logger.Debug("client registered", slog.String("room", c.Room), slog.Int("clients", size))
}

// Unregister removes c unless a newer connection already took its slot.
func (h *Hub) Unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.Room]
	if !ok || room[c.key()] != c {
		return false
	}
	delete(room, c.key())
	if len(room) == 0 {
		delete(h.rooms, c.Room)
	}
	c.Close()
	return true
}

func (h *Hub) SendToUser(roomID string, userID int, msg Message) bool {
	h.mu.RLock()
	c := h.rooms[roomID][userKey(userID)]
	h.mu.RUnlock()
	if c == nil {
		return false
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal message", slog.String("room", roomID), slog.Any("error", err))
		return false
	}
	if !c.enqueue(payload) {
		h.logger.Warn("client send buffer full or closed", slog.String("room", roomID), slog.Int("user_id", userID))
		return false
	}
	return true
}

// BroadcastToRoom отправляет сообщение всем клиентам в комнате и возвращает число получателей.
func (h *Hub) BroadcastToRoom(roomID string, msg Message) int {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal message", slog.String("room", roomID), slog.Any("error", err))
		return 0
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[roomID]))
	for _, c := range h.rooms[roomID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range clients {
		if c.enqueue(payload) {
			delivered++
		}
	}
	return delivered
}

// CloseUser drops the user's connection from the room and closes it.
func (h *Hub) CloseUser(roomID string, userID int) {
	h.mu.Lock()
	c := h.rooms[roomID][userKey(userID)]
	if c != nil {
		delete(h.rooms[roomID], userKey(userID))
		if len(h.rooms[roomID]) == 0 {
			delete(h.rooms, roomID)
		}
	}
	h.mu.Unlock()

	if c != nil {
		c.Close()
	}
}

func (h *Hub) IsConnected(roomID string, userID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[roomID][userKey(userID)]
	return ok
}

func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// ReadPump reads frames until the connection fails and hands each one to
// onMessage. onClose runs once the connection is gone; when it is nil the
// client is simply unregistered.
func (c *Client) ReadPump(onMessage func([]byte), onClose func()) {
	defer func() {
		if onClose != nil {
			onClose()
		} else {
			c.Hub.Unregister(c)
		}
		c.Conn.Close()
		c.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { return c.Conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.Hub.logger.Warn("websocket closed unexpectedly", slog.String("room", c.Room), slog.Any("error", err))
			}
			return
		}
		if onMessage != nil {
			onMessage(message)
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Hub.logger.Warn("websocket write failed", slog.String("room", c.Room), slog.Any("error", err))
				return
			}
		case now := <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			frame, err := heartbeatFrame(now)
			if err != nil {
				c.Hub.logger.Error("failed to encode heartbeat", slog.Any("error", err))
				continue
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
	}
}

// heartbeatFrame is the PING envelope written every pingPeriod.
func heartbeatFrame(now time.Time) ([]byte, error) {
	return json.Marshal(NewMessage(Ping{Timestamp: now.UnixMilli()}))
}
