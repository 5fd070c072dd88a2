package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/policy-oracle/backend/internal/auth"
	"github.com/policy-oracle/backend/internal/events"
	"go.uber.org/zap"
)

const wsReplayLimit = 50

// EventHistory returns the most recent events of a stream, oldest first.
type EventHistory interface {
	Recent(ctx context.Context, stream string, n int64) ([]events.Event, error)
}

type wsClient struct {
	conn     *websocket.Conn
	escrowID string // empty = all escrows
	mu       sync.Mutex
}

func (c *wsClient) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsClient) wants(event events.Event) bool {
	if c.escrowID == "" {
		return true
	}
	id, _ := event.Payload["escrow_id"].(string)
	return id == c.escrowID
}

// WSHub fans escrow events out to authenticated websocket clients.
type WSHub struct {
	jwtSecret  string
	subscriber events.Subscriber
	history    EventHistory
	log        *zap.Logger
	mu         sync.RWMutex
	clients    map[*wsClient]struct{}
}

func NewWSHub(jwtSecret string, subscriber events.Subscriber, history EventHistory, log *zap.Logger) *WSHub {
	return &WSHub{
		jwtSecret:  jwtSecret,
		subscriber: subscriber,
		history:    history,
		log:        log,
		clients:    make(map[*wsClient]struct{}),
	}
}

func (h *WSHub) Start(ctx context.Context) error {
	return h.subscriber.Subscribe(ctx, events.StreamEscrow, h.broadcast)
}

func (h *WSHub) broadcast(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.wants(event) {
			continue
		}
		if err := c.send(data); err != nil {
			h.log.Debug("ws write failed", zap.Error(err))
		}
	}
}

func (h *WSHub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *WSHub) unregister(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// HandleWS authenticates via ?token=, replays recent history and then
// streams live events. ?escrow_id= narrows the feed to one escrow.
func (h *WSHub) HandleWS(conn *websocket.Conn) {
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	claims, err := auth.ParseJWT(h.jwtSecret, tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}

	client := &wsClient{conn: conn, escrowID: conn.Query("escrow_id")}

	// replay under the client lock so live events queue behind history
	client.mu.Lock()
	h.register(client)
	h.replay(client)
	client.mu.Unlock()

	h.log.Debug("ws client connected",
		zap.String("guardian_id", claims.GuardianID.String()),
		zap.String("escrow_id", client.escrowID),
	)

	defer func() {
		h.unregister(client)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// replay writes history directly; the caller holds client.mu.
func (h *WSHub) replay(client *wsClient) {
	if h.history == nil {
		return
	}
	recent, err := h.history.Recent(context.Background(), events.StreamEscrow, wsReplayLimit)
	if err != nil {
		h.log.Warn("ws history replay failed", zap.Error(err))
		return
	}
	for _, event := range recent {
		if !client.wants(event) {
			continue
		}
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}
