package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgift/socket-broker/internal/broker"
	"github.com/bgift/socket-broker/internal/config"
)

func newTestApp() (*fiber.App, *Handlers) {
	b := broker.New(zerolog.Nop())
	h := New(b, config.Config{
		Port:          "3001",
		AllowedOrigin: "http://localhost:3000",
		PingInterval:  25 * time.Second,
		PingTimeout:   60 * time.Second,
	})
	app := fiber.New()
	app.Get("/", h.StatusHandler)
	app.Get("/health", h.HealthHandler)
	app.Use("/ws", h.UpgradeGate)
	return app, h
}

func TestStatusHandler(t *testing.T) {
	app, _ := newTestApp()

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		OnlineUsers int    `json:"onlineUsers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "running", body.Status)
	assert.Equal(t, 0, body.Connections)
	assert.Equal(t, 0, body.OnlineUsers)
}

func TestHealthHandler(t *testing.T) {
	app, _ := newTestApp()

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Status    string  `json:"status"`
		Uptime    float64 `json:"uptime"`
		Timestamp string  `json:"timestamp"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.GreaterOrEqual(t, body.Uptime, 0.0)
	_, err = time.Parse(time.RFC3339, body.Timestamp)
	assert.NoError(t, err)
}

func TestUpgradeGateRejectsPlainRequests(t *testing.T) {
	app, _ := newTestApp()

	resp, err := app.Test(httptest.NewRequest("GET", "/ws", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestUpgradeGateRejectsForeignOrigin(t *testing.T) {
	app, _ := newTestApp()

	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	req.Header.Set("Origin", "http://evil.example")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
