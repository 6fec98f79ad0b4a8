package notify

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"dvfmarket/server/internal/models"
)

// Hub delivers import notifications to websocket clients keyed by actor
// id. Delivery is fire-and-forget: an unreachable actor never fails the
// import that produced the notification.
type Hub struct {
	logger   *logrus.Logger
	queue    *Queue
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string][]*websocket.Conn
}

func NewHub(queueSize int, logger *logrus.Logger) *Hub {
	h := &Hub{
		logger:  logger,
		queue:   NewQueue(queueSize, logger),
		clients: make(map[string][]*websocket.Conn),
		upgrader: websocket.Upgrader{
			// The CORS policy is enforced by the HTTP middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	h.queue.Subscribe(h.deliver)
	h.queue.Start()
	return h
}

// Notify queues a payload for the actor. Never returns an error: a full
// outbox drops the payload with a warning, and run state stays queryable
// through the import history.
func (h *Hub) Notify(actorID string, payload models.ImportNotification) {
	err := h.queue.Push(Notification{ActorID: actorID, Payload: payload})
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"actor_id":   actorID,
			"year":       payload.Year,
			"department": payload.Department,
		}).Warn("Dropped import notification")
	}
}

// Upgrade turns an HTTP request into a registered websocket connection
// for the actor.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, actorID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	h.register(actorID, conn)

	// Drain control frames; unregister when the peer goes away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.unregister(actorID, conn)
				conn.Close()
				return
			}
		}
	}()

	return nil
}

func (h *Hub) register(actorID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[actorID] = append(h.clients[actorID], conn)
	h.logger.WithField("actor_id", actorID).Info("Notification client connected")
}

func (h *Hub) unregister(actorID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.clients[actorID]
	for i, c := range conns {
		if c == conn {
			h.clients[actorID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.clients[actorID]) == 0 {
		delete(h.clients, actorID)
	}
}

// deliver writes the payload to every connection of the target actor.
func (h *Hub) deliver(n Notification) error {
	h.mu.RLock()
	conns := append([]*websocket.Conn(nil), h.clients[n.ActorID]...)
	h.mu.RUnlock()

	if len(conns) == 0 {
		h.logger.WithField("actor_id", n.ActorID).Debug("No connected client for notification")
		return nil
	}

	for _, conn := range conns {
		if err := conn.WriteJSON(n.Payload); err != nil {
			h.logger.WithError(err).WithField("actor_id", n.ActorID).Warn("Failed to write notification")
			h.unregister(n.ActorID, conn)
			conn.Close()
		}
	}
	return nil
}

// Close shuts the outbox down and drops all client connections.
func (h *Hub) Close() error {
	if err := h.queue.Close(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conns := range h.clients {
		for _, conn := range conns {
			conn.Close()
		}
	}
	h.clients = make(map[string][]*websocket.Conn)
	return nil
}
