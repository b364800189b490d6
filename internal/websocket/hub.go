package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Dzeddy/study-habits-tracker/internal/activity"
	"github.com/Dzeddy/study-habits-tracker/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Subscriber attaches a user to its activity channel.
type Subscriber interface {
	Subscribe(userID uuid.UUID) *activity.Subscription
	Unsubscribe(sub *activity.Subscription)
}

// TokenParser resolves the user behind a socket's token.
type TokenParser interface {
	ParseUserID(token string) (uuid.UUID, error)
}

// Hub serves the persistent-connection endpoint. Each socket holds its own
// subscription; events arrive as {"type", "payload"} frames.
type Hub struct {
	events   Subscriber
	tokens   TokenParser
	upgrader websocket.Upgrader
	log      *logrus.Entry

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewHub(events Subscriber, tokens TokenParser, checkOrigin func(r *http.Request) bool, log *logrus.Entry) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Hub{
		events: events,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		log:   log,
		conns: make(map[*websocket.Conn]struct{}),
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Authenticate via token query param
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := h.tokens.ParseUserID(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// Attach before upgrading. Subscribe returns once the transport is
	// listening, so nothing emitted after the handshake is missed.
	sub := h.events.Subscribe(userID)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.events.Unsubscribe(sub)
		h.log.WithField("error", err.Error()).Warn("websocket upgrade failed")
		return
	}

	h.track(conn, true)
	h.log.WithField("user_id", userID).Info("websocket connected")

	done := make(chan struct{})
	go h.writePump(conn, sub, done)
	go h.readPump(conn, sub, done)
}

// Close drops every open socket.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
	}
}

func (h *Hub) track(conn *websocket.Conn, add bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if add {
		h.conns[conn] = struct{}{}
	} else {
		delete(h.conns, conn)
	}
}

// readPump only watches for disconnects and pongs; clients send nothing.
func (h *Hub) readPump(conn *websocket.Conn, sub *activity.Subscription, done chan struct{}) {
	defer func() {
		close(done)
		h.events.Unsubscribe(sub)
		h.track(conn, false)
		conn.Close()
		h.log.WithField("user_id", sub.UserID).Info("websocket disconnected")
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, sub *activity.Subscription, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case event, ok := <-sub.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			msg := models.WSMessage{Type: event.Type, Payload: event}
			if err := conn.WriteJSON(msg); err != nil {
				h.log.WithFields(logrus.Fields{
					"user_id": sub.UserID,
					"error":   err.Error(),
				}).Warn("websocket write failed")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
