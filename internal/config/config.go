package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the broker's externally supplied settings. Core routing
// behavior is not configurable; only the listen address, the allowed client
// origin and the transport heartbeat are.
type Config struct {
	Port          string
	AllowedOrigin string
	PingInterval  time.Duration
	PingTimeout   time.Duration
}

func Load() Config {
	_ = godotenv.Load()
	return Config{
		Port:          getEnv("PORT", "3001"),
		AllowedOrigin: getEnv("FRONTEND_URL", "http://localhost:3000"),
		PingInterval:  getDuration("PING_INTERVAL", 25*time.Second),
		PingTimeout:   getDuration("PING_TIMEOUT", 60*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
