package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the voice session coordinator.
// Everything is read once at process start; nothing reloads.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	APIKey string

	MaxSessions        int
	SessionTimeout     time.Duration
	HandshakeTimeout   time.Duration
	MaxAudioChunkBytes int

	ContextTTL       time.Duration
	ContextRetention time.Duration
	SweepInterval    time.Duration

	CallbackWebhookURL  string
	CallbackPath        string
	NotifyOnIdleTimeout bool

	ModelName string
	Device    string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:           envOrDefault("APP_BIND_ADDR", ":8998"),
		MetricsNamespace:   envOrDefault("APP_METRICS_NAMESPACE", "personaplex"),
		AllowAnyOrigin:     false,
		APIKey:             trimmedEnv("PERSONAPLEX_API_KEY"),
		MaxSessions:        4,
		SessionTimeout:     5 * time.Minute,
		HandshakeTimeout:   10 * time.Second,
		MaxAudioChunkBytes: 32000, // ~1 second at 16kHz 16-bit
		ContextTTL:         30 * time.Minute,
		ContextRetention:   30 * time.Second,
		SweepInterval:      time.Minute,
		CallbackWebhookURL: trimmedEnv("CALLBACK_WEBHOOK_URL"),
		CallbackPath:       envOrDefault("CALLBACK_PATH", "/webhook/call-ended"),
		ModelName:          envOrDefault("MODEL_NAME", "nvidia/personaplex-7b-v1"),
		Device:             envOrDefault("DEVICE", "cpu"),
		DatabaseURL:        trimmedEnv("DATABASE_URL"),
		ShutdownTimeout:    15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxSessions, err = intFromEnv("MAX_SESSIONS", cfg.MaxSessions)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionTimeout, err = secondsOrDurationFromEnv("SESSION_TIMEOUT", cfg.SessionTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.HandshakeTimeout, err = durationFromEnv("APP_HANDSHAKE_TIMEOUT", cfg.HandshakeTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxAudioChunkBytes, err = intFromEnv("APP_MAX_AUDIO_CHUNK_BYTES", cfg.MaxAudioChunkBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextTTL, err = secondsOrDurationFromEnv("CONTEXT_TTL_SEC", cfg.ContextTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextRetention, err = secondsOrDurationFromEnv("CONTEXT_RETENTION_GRACE", cfg.ContextRetention)
	if err != nil {
		return Config{}, err
	}
	cfg.SweepInterval, err = durationFromEnv("APP_SWEEP_INTERVAL", cfg.SweepInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.NotifyOnIdleTimeout, err = boolFromEnv("APP_NOTIFY_ON_IDLE_TIMEOUT", cfg.NotifyOnIdleTimeout)
	if err != nil {
		return Config{}, err
	}

	if cfg.MaxSessions <= 0 {
		return Config{}, fmt.Errorf("MAX_SESSIONS must be positive")
	}
	if cfg.SessionTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("SESSION_TIMEOUT must be at least 5s")
	}
	if cfg.HandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_HANDSHAKE_TIMEOUT must be positive")
	}
	if cfg.MaxAudioChunkBytes <= 0 {
		return Config{}, fmt.Errorf("APP_MAX_AUDIO_CHUNK_BYTES must be positive")
	}
	if cfg.ContextTTL <= 0 {
		return Config{}, fmt.Errorf("CONTEXT_TTL_SEC must be positive")
	}
	if cfg.ContextRetention < 0 {
		return Config{}, fmt.Errorf("CONTEXT_RETENTION_GRACE must not be negative")
	}
	if cfg.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("APP_SWEEP_INTERVAL must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

// secondsOrDurationFromEnv accepts either a bare integer (seconds, the format
// the n8n deployment templates use) or a Go duration string.
func secondsOrDurationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
