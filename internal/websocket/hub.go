package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"voice-qa-be/internal/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisChannel carries pushes between API instances so a client connected to
// one instance sees items processed by another.
const RedisChannel = "chat_item_events"

const broadcastTarget = "*"

type Hub struct {
	// session id -> clients watching it (one per tab/device)
	clients map[string][]*Client

	register   chan *Client
	unregister chan *Client

	// closed when Run returns
	done chan struct{}

	mu sync.RWMutex

	// nil runs the hub single-instance
	rdb *redis.Client

	logger logger.ILogger
}

type envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type clusterMessage struct {
	Target  string          `json:"target_session_id"`
	Message json.RawMessage `json:"message"`
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[string][]*Client),
		rdb:        rdb,
		logger:     log,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.SessionID] = append(h.clients[client.SessionID], client)
			h.mu.Unlock()
			h.logger.Info("HUB", "Client registered", map[string]interface{}{"session_id": client.SessionID})

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

// Register adds client to the hub. It reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes client. It is a no-op once the hub has stopped.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.clients[client.SessionID]
	for i, c := range clients {
		if c == client {
			h.clients[client.SessionID] = append(clients[:i], clients[i+1:]...)
			close(client.Send)
			break
		}
	}
	if len(h.clients[client.SessionID]) == 0 {
		delete(h.clients, client.SessionID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, clients := range h.clients {
		for _, c := range clients {
			close(c.Send)
		}
		delete(h.clients, id)
	}
}

// SendToSession pushes a message to every client watching sessionID, here and on other instances.
func (h *Hub) SendToSession(ctx context.Context, sessionID, msgType string, data interface{}) {
	h.dispatch(ctx, sessionID, msgType, data)
}

// Broadcast pushes a message to every connected client.
func (h *Hub) Broadcast(ctx context.Context, msgType string, data interface{}) {
	h.dispatch(ctx, broadcastTarget, msgType, data)
}

func (h *Hub) dispatch(ctx context.Context, target, msgType string, data interface{}) {
	payload, err := json.Marshal(envelope{Type: msgType, Data: data})
	if err != nil {
		h.logger.Error("HUB", "Failed to encode push", map[string]interface{}{"error": err.Error(), "type": msgType})
		return
	}

	if h.rdb == nil {
		h.deliverLocal(target, payload)
		return
	}

	// With redis every instance, this one included, delivers from the subscription.
	msg, _ := json.Marshal(clusterMessage{Target: target, Message: payload})
	if err := h.rdb.Publish(ctx, RedisChannel, msg).Err(); err != nil {
		h.logger.Warn("HUB", "Redis publish failed, delivering locally only", map[string]interface{}{"error": err.Error()})
		h.deliverLocal(target, payload)
	}
}

func (h *Hub) deliverLocal(target string, payload []byte) {
	h.mu.RLock()
	var targets []*Client
	if target == broadcastTarget {
		for _, clients := range h.clients {
			targets = append(targets, clients...)
		}
	} else {
		targets = append(targets, h.clients[target]...)
	}

	var slow []*Client
	for _, client := range targets {
		select {
		case client.Send <- payload:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("HUB", "Client send buffer full, disconnecting", map[string]interface{}{"session_id": client.SessionID})
		go h.Unregister(client)
	}
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, RedisChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var cm clusterMessage
		if err := json.Unmarshal([]byte(msg.Payload), &cm); err != nil {
			h.logger.Warn("HUB", "Redis message parse error", map[string]interface{}{"error": err.Error()})
			continue
		}
		h.deliverLocal(cm.Target, cm.Message)
	}
}

// ClientCount is the number of sockets watching sessionID.
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}
