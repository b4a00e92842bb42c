// Package config loads process configuration from environment variables,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Default ports for the two processes.
const (
	DefaultHTTPPort = 3847
	DefaultWSPort   = 3849
)

// Server holds the API process configuration.
type Server struct {
	Host string
	Port int

	// WSAuthSecret signs the tokens minted at POST /api/auth/token. Must
	// match the bridge's secret.
	WSAuthSecret string

	// MessageTTL is the default expiry for published messages.
	MessageTTL time.Duration

	// MaxDBRetries bounds internal retries of idempotent database work.
	MaxDBRetries int

	DevMode bool
}

// Bridge holds the bridge process configuration.
type Bridge struct {
	Host string
	Port int

	// WSAuthSecret verifies minted tokens. Must match the API's secret.
	WSAuthSecret string

	// DevMode accepts unsigned {agent_id} auth frames.
	DevMode bool
}

// LoadEnvFile loads an optional .env file. A missing file is not an error.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadServerFromEnv reads the API process configuration.
func LoadServerFromEnv() (*Server, error) {
	port, err := intFromEnv("HTTP_PORT", DefaultHTTPPort)
	if err != nil {
		return nil, err
	}
	ttlSeconds, err := intFromEnv("MESSAGE_TTL_SECONDS", 3600)
	if err != nil {
		return nil, err
	}
	maxRetries, err := intFromEnv("MAX_DB_RETRIES", 3)
	if err != nil {
		return nil, err
	}

	return &Server{
		Host:         getEnv("HTTP_HOST", "127.0.0.1"),
		Port:         port,
		WSAuthSecret: getEnv("WS_AUTH_SECRET", ""),
		MessageTTL:   time.Duration(ttlSeconds) * time.Second,
		MaxDBRetries: maxRetries,
		DevMode:      boolFromEnv("DEV_MODE"),
	}, nil
}

// LoadBridgeFromEnv reads the bridge process configuration.
func LoadBridgeFromEnv() (*Bridge, error) {
	port, err := intFromEnv("WS_PORT", DefaultWSPort)
	if err != nil {
		return nil, err
	}

	cfg := &Bridge{
		Host:         getEnv("WS_HOST", "127.0.0.1"),
		Port:         port,
		WSAuthSecret: getEnv("WS_AUTH_SECRET", ""),
		DevMode:      boolFromEnv("DEV_MODE"),
	}
	if cfg.WSAuthSecret == "" && !cfg.DevMode {
		return nil, fmt.Errorf("WS_AUTH_SECRET is required unless DEV_MODE is set")
	}
	return cfg, nil
}

// Addr returns the listen address.
func (s *Server) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// Addr returns the listen address.
func (b *Bridge) Addr() string { return fmt.Sprintf("%s:%d", b.Host, b.Port) }

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intFromEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func boolFromEnv(key string) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "True", "yes":
		return true
	}
	return false
}
