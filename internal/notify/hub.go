package notify

import (
	"net/http"
	"sync"
	"time"

	"custody-workflow-go/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect from the dashboard origin; auth happens via
	// the session token before the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub tracks websocket connections per recipient and pushes notifications
// to them as they are synthesized.
type Hub struct {
	mu    sync.Mutex
	conns map[string][]*websocket.Conn
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string][]*websocket.Conn)}
}

var _ Pusher = (*Hub)(nil)

// Serve upgrades the request and registers the connection for the user.
// The connection is read-drained so close frames are processed.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userId string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.conns[userId] = append(h.conns[userId], conn)
	h.mu.Unlock()

	zap.L().Info("Notification client connected", zap.String("user_id", userId))

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.remove(userId, conn)
				return
			}
		}
	}()
	return nil
}

// Push writes the notification to every connection the recipient holds.
// Dead connections are dropped.
func (h *Hub) Push(userId string, n *models.Notification) {
	h.mu.Lock()
	conns := append([]*websocket.Conn(nil), h.conns[userId]...)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(n); err != nil {
			zap.L().Warn("Failed to push notification, dropping connection",
				zap.String("user_id", userId),
				zap.Error(err))
			h.remove(userId, conn)
		}
	}
}

// Close closes every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userId, conns := range h.conns {
		for _, conn := range conns {
			conn.Close()
		}
		delete(h.conns, userId)
	}
}

func (h *Hub) remove(userId string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn.Close()
	list := h.conns[userId]
	for i, c := range list {
		if c == conn {
			h.conns[userId] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(h.conns[userId]) == 0 {
		delete(h.conns, userId)
	}
}
