package main

import (
	"context"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog"

	"github.com/bgift/socket-broker/internal/broker"
	"github.com/bgift/socket-broker/internal/config"
	"github.com/bgift/socket-broker/internal/handlers"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg := config.Load()

	b := broker.New(log)
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)

	h := handlers.New(b, cfg)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigin,
		AllowMethods:     "GET,POST",
		AllowCredentials: true,
	}))

	// Operational surface
	app.Get("/", h.StatusHandler)
	app.Get("/health", h.HealthHandler)

	// Event connection
	app.Use("/ws", h.UpgradeGate)
	app.Get("/ws", websocket.New(h.AttachHandler))

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("listen failed")
		}
	}()
	log.Info().Str("port", cfg.Port).Str("origin", cfg.AllowedOrigin).Msg("broker listening")

	// SIGINT/SIGTERM: stop accepting, let the loop drain in-flight events,
	// then close every client connection.
	wait := gfshutdown.GracefulShutdown(context.Background(), shutdownTimeout,
		map[string]gfshutdown.Operation{
			"http": func(ctx context.Context) error {
				return app.ShutdownWithContext(ctx)
			},
			"broker": func(ctx context.Context) error {
				cancel()
				b.Wait()
				return nil
			},
		},
	)
	os.Exit(<-wait)
}
