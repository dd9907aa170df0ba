package handlers

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/ledger-market/backend/internal/auth"
	"github.com/ledger-market/backend/internal/config"
	"github.com/ledger-market/backend/internal/events"
	"go.uber.org/zap"
)

// WSHub streams committed ledger events to the connected recipients.
type WSHub struct {
	cfg         *config.Config
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.Mutex
	connections map[uuid.UUID][]*websocket.Conn
}

func NewWSHub(cfg *config.Config, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		cfg:         cfg,
		subscriber:  subscriber,
		log:         log,
		connections: make(map[uuid.UUID][]*websocket.Conn),
	}
}

func (h *WSHub) Start(ctx context.Context) error {
	return h.subscriber.Subscribe(ctx, events.StreamLedger, h.dispatch)
}

// dispatch sends the event to every connection of each recipient. Writes are
// serialized under the hub lock, a connection allows one writer.
func (h *WSHub) dispatch(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, r := range event.Recipients {
		id, err := uuid.Parse(r)
		if err != nil {
			continue
		}
		for _, conn := range h.connections[id] {
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.log.Debug("ws write failed", zap.String("account_id", r), zap.Error(err))
			}
		}
	}
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

// HandleWS authenticates the socket with ?token= and streams ledger events
// addressed to its account until the client goes away.
func (h *WSHub) HandleWS(conn *websocket.Conn) {
	defer conn.Close()

	claims, err := auth.ParseJWT(h.cfg.JWTSecret, conn.Query("token"))
	if err != nil {
		_ = conn.WriteJSON(fiber.Map{"error": "invalid or missing token"})
		return
	}
	actor := claims.Actor()
	if actor.IsAdmin() && !h.cfg.IsAdmin(actor.AccountID) {
		_ = conn.WriteJSON(fiber.Map{"error": "admin access required"})
		return
	}

	h.register(actor.AccountID, conn)
	defer h.unregister(actor.AccountID, conn)

	// клиент только держит соединение, входящие сообщения игнорируются
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WSHub) register(accountID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[accountID] = append(h.connections[accountID], conn)
	// hello goes out under the hub lock like every other frame
	_ = conn.WriteJSON(events.Event{Type: events.EventConnected, Recipients: []string{accountID.String()}, Payload: map[string]any{}})
}

func (h *WSHub) unregister(accountID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := slices.DeleteFunc(h.connections[accountID], func(c *websocket.Conn) bool { return c == conn })
	if len(conns) == 0 {
		delete(h.connections, accountID)
		return
	}
	h.connections[accountID] = conns
}
