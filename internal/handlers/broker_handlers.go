package handlers

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/bgift/socket-broker/internal/broker"
	"github.com/bgift/socket-broker/internal/config"
)

type Handlers struct {
	Broker *broker.Broker
	Cfg    config.Config
}

func New(b *broker.Broker, cfg config.Config) *Handlers {
	return &Handlers{Broker: b, Cfg: cfg}
}

// UpgradeGate guards the websocket endpoint: only upgrade requests from the
// configured frontend origin get through. Requests without an Origin header
// (non-browser clients, tests) are allowed.
func (h *Handlers) UpgradeGate(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if origin := c.Get(fiber.HeaderOrigin); origin != "" && origin != h.Cfg.AllowedOrigin {
		return fiber.ErrForbidden
	}
	return c.Next()
}

// AttachHandler GET /ws — one long-lived connection per client.
func (h *Handlers) AttachHandler(c *websocket.Conn) {
	client := &broker.Client{
		Id:           uuid.NewString(),
		Conn:         c,
		Send:         make(chan []byte, 16),
		PingInterval: h.Cfg.PingInterval,
		ReadTimeout:  h.Cfg.PingTimeout,
	}
	h.Broker.Register(client)
	defer h.Broker.Unregister(client)
	go client.WritePump()
	client.ReadPump(h.Broker)
}

// StatusHandler GET /
func (h *Handlers) StatusHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "running",
		"connections": h.Broker.ConnectionCount(),
		"onlineUsers": h.Broker.OnlineUserCount(),
	})
}

// HealthHandler GET /health
func (h *Handlers) HealthHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"uptime":    h.Broker.Uptime().Seconds(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
