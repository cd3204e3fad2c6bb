package websocket

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"barista-backend/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub streams a session's turn events from Redis pub/sub to every websocket
// watching that session. One subscription is kept per watched session.
type Hub struct {
	mu          sync.RWMutex
	connections map[string][]*websocket.Conn
	redisClient *redis.Client
	cancelFuncs map[string]context.CancelFunc
	ready       map[string]chan struct{}
}

func NewHub(redisClient *redis.Client) *Hub {
	return &Hub{
		connections: make(map[string][]*websocket.Conn),
		redisClient: redisClient,
		cancelFuncs: make(map[string]context.CancelFunc),
		ready:       make(map[string]chan struct{}),
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId"))
	if sessionID == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.registerConnection(sessionID, conn)

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregisterConnection(sessionID, conn)
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				break
			}
		}
	}()
}

// registerConnection returns once the session's subscription is live. The
// wait for Redis happens outside h.mu so other sessions keep flowing.
func (h *Hub) registerConnection(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	h.connections[sessionID] = append(h.connections[sessionID], conn)
	total := len(h.connections[sessionID])

	ready, ok := h.ready[sessionID]
	if !ok {
		// First watcher for this session starts the pub/sub subscription
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[sessionID] = cancel
		ready = make(chan struct{})
		h.ready[sessionID] = ready
		go h.subscribeToPubSub(ctx, sessionID, ready)
	}
	h.mu.Unlock()

	<-ready
	log.Printf("WebSocket connected: session %s (total: %d)", sessionID, total)
}

func (h *Hub) unregisterConnection(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn.Close()

	conns := h.connections[sessionID]
	for i, c := range conns {
		if c == conn {
			h.connections[sessionID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	// If no more connections, cancel pub/sub
	if len(h.connections[sessionID]) == 0 {
		delete(h.connections, sessionID)
		if cancel, ok := h.cancelFuncs[sessionID]; ok {
			cancel()
			delete(h.cancelFuncs, sessionID)
		}
		delete(h.ready, sessionID)
	}

	log.Printf("WebSocket disconnected: session %s", sessionID)
}

// subscribeToPubSub closes ready once the subscription is confirmed, so no
// event published after registration is missed.
func (h *Hub) subscribeToPubSub(ctx context.Context, sessionID string, ready chan<- struct{}) {
	pubsub := h.redisClient.Subscribe(ctx, models.SessionEventsChannel(sessionID))
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("Subscribe to session %s events failed: %v", sessionID, err)
	}
	close(ready)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(sessionID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(sessionID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.connections[sessionID] {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("WebSocket write to session %s failed: %v", sessionID, err)
		}
	}
}

// Watchers reports how many sockets currently watch sessionID.
func (h *Hub) Watchers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[sessionID])
}
