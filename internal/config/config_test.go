package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":8998" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8998")
	}
	if cfg.MaxSessions != 4 {
		t.Fatalf("MaxSessions = %d, want 4", cfg.MaxSessions)
	}
	if cfg.SessionTimeout != 5*time.Minute {
		t.Fatalf("SessionTimeout = %v, want 5m", cfg.SessionTimeout)
	}
	if cfg.ContextTTL != 30*time.Minute {
		t.Fatalf("ContextTTL = %v, want 30m", cfg.ContextTTL)
	}
	if cfg.NotifyOnIdleTimeout {
		t.Fatalf("NotifyOnIdleTimeout = true, want false default")
	}
	if cfg.CallbackWebhookURL != "" {
		t.Fatalf("CallbackWebhookURL = %q, want empty default", cfg.CallbackWebhookURL)
	}
}

func TestLoadSecondsFormat(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("SESSION_TIMEOUT", "300")
	t.Setenv("CONTEXT_TTL_SEC", "1800")
	t.Setenv("CONTEXT_RETENTION_GRACE", "45s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SessionTimeout != 300*time.Second {
		t.Fatalf("SessionTimeout = %v, want 300s", cfg.SessionTimeout)
	}
	if cfg.ContextTTL != 1800*time.Second {
		t.Fatalf("ContextTTL = %v, want 1800s", cfg.ContextTTL)
	}
	if cfg.ContextRetention != 45*time.Second {
		t.Fatalf("ContextRetention = %v, want 45s", cfg.ContextRetention)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"zero max sessions", "MAX_SESSIONS", "0"},
		{"tiny session timeout", "SESSION_TIMEOUT", "1"},
		{"bad bool", "APP_NOTIFY_ON_IDLE_TIMEOUT", "maybe"},
		{"bad duration", "APP_SWEEP_INTERVAL", "soon"},
		{"negative chunk size", "APP_MAX_AUDIO_CHUNK_BYTES", "-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() succeeded with %s=%q, want error", tc.key, tc.value)
			}
		})
	}
}

func TestLoadCallbackEndpoint(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("CALLBACK_WEBHOOK_URL", "http://localhost:5678")
	t.Setenv("CALLBACK_PATH", "/hooks/done")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CallbackWebhookURL != "http://localhost:5678" {
		t.Fatalf("CallbackWebhookURL = %q, want explicit value", cfg.CallbackWebhookURL)
	}
	if cfg.CallbackPath != "/hooks/done" {
		t.Fatalf("CallbackPath = %q, want explicit value", cfg.CallbackPath)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"PERSONAPLEX_API_KEY",
		"MAX_SESSIONS",
		"SESSION_TIMEOUT",
		"APP_HANDSHAKE_TIMEOUT",
		"APP_MAX_AUDIO_CHUNK_BYTES",
		"CONTEXT_TTL_SEC",
		"CONTEXT_RETENTION_GRACE",
		"APP_SWEEP_INTERVAL",
		"CALLBACK_WEBHOOK_URL",
		"CALLBACK_PATH",
		"APP_NOTIFY_ON_IDLE_TIMEOUT",
		"MODEL_NAME",
		"DEVICE",
		"DATABASE_URL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
