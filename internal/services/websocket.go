package services

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"chatdesk/internal/models"
	"chatdesk/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Event types pushed to dashboard clients.
const (
	WSNewMessage      = "new_message"
	WSTyping          = "typing"
	WSVisitorActivity = "visitor_activity"
	WSRead            = "read"
)

type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	SessionID string      `json:"session_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type WebSocketClient struct {
	ID        string
	SessionID string // empty = dashboard client receiving every session
	Conn      *websocket.Conn
	Send      chan WebSocketMessage
	Hub       *WebSocketHub
}

// WebSocketHub fans events out to dashboard clients. Widget clients connect
// with a session_id and only see their own session's events; dashboard
// clients connect without one and see everything.
type WebSocketHub struct {
	clients    map[string]*WebSocketClient
	broadcast  chan WebSocketMessage
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	mutex      sync.RWMutex

	// Optional: lets widget connections push typing previews into the inbox.
	inbox *InboxService
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origin allow-listing happens at the CORS layer
	},
}

func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[string]*WebSocketClient),
		broadcast:  make(chan WebSocketMessage, 256),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
	}
}

// SetInbox injects the inbox service so incoming typing frames update the
// session's preview (optional).
func (h *WebSocketHub) SetInbox(inbox *InboxService) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.inbox = inbox
}

// Run starts the hub's event loop. Call in a goroutine.
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client.ID] = client
			h.mutex.Unlock()
			logrus.Infof("ws client %s connected", client.ID)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
				logrus.Infof("ws client %s disconnected", client.ID)
			}
			h.mutex.Unlock()

		case message := <-h.broadcast:
			h.mutex.Lock()
			for id, client := range h.clients {
				if client.SessionID != "" && message.SessionID != "" && client.SessionID != message.SessionID {
					continue
				}
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(h.clients, id)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// BroadcastMessage pushes a new_message event for a session.
func (h *WebSocketHub) BroadcastMessage(sessionID string, msg models.Message) {
	h.broadcast <- WebSocketMessage{
		Type:      WSNewMessage,
		Data:      msg,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}

// BroadcastTyping pushes a live typing preview for a session.
func (h *WebSocketHub) BroadcastTyping(sessionID, preview string) {
	h.broadcast <- WebSocketMessage{
		Type:      WSTyping,
		Data:      map[string]string{"preview": preview},
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}

// BroadcastVisitorActivity pushes a rebuilt visitor snapshot.
func (h *WebSocketHub) BroadcastVisitorActivity(sessionID string, snap *VisitorSnapshot) {
	h.broadcast <- WebSocketMessage{
		Type:      WSVisitorActivity,
		Data:      snap,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}

// BroadcastRead pushes an unread-reset notification.
func (h *WebSocketHub) BroadcastRead(sessionID string) {
	h.broadcast <- WebSocketMessage{
		Type:      WSRead,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}

// GetClientCount reports connected clients.
func (h *WebSocketHub) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades a connection and registers the client. Widget
// connections pass session_id and tenant; dashboard connections pass
// neither.
func (h *WebSocketHub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Errorf("websocket upgrade failed: %v", err)
		return
	}

	client := &WebSocketClient{
		ID:        "client_" + utils.GenerateID()[:12],
		SessionID: c.Query("session_id"),
		Conn:      conn,
		Send:      make(chan WebSocketMessage, 256),
		Hub:       h,
	}
	tenantID := c.Query("tenant")
	if tenantID == "" {
		tenantID = models.DefaultTenantID
	}

	h.register <- client

	go client.writePump()
	go client.readPump(tenantID)
}

// incomingFrame is what widget clients send upstream: typing previews only.
type incomingFrame struct {
	Type    string `json:"type"`
	Preview string `json:"preview"`
}

func (c *WebSocketClient) readPump(tenantID string) {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			break
		}
		if c.SessionID == "" {
			continue // dashboard clients are read-only
		}
		var frame incomingFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			logrus.Warnf("ws frame from %s: %v", c.ID, err)
			continue
		}
		if frame.Type != WSTyping {
			continue
		}
		c.Hub.mutex.RLock()
		inbox := c.Hub.inbox
		c.Hub.mutex.RUnlock()
		if inbox != nil {
			if err := inbox.SetTypingPreview(context.Background(), tenantID, c.SessionID, frame.Preview); err != nil {
				logrus.Debugf("typing preview for %s: %v", c.SessionID, err)
			}
		}
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
