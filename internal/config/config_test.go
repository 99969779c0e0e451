package config

import (
	"testing"
	"time"
)

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_ENV",
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOWED_ORIGINS",
		"ASSISTANT_API_BASE_URL",
		"ASSISTANT_HTTP_TIMEOUT",
		"EMAILJS_API_URL",
		"EMAILJS_SERVICE_ID",
		"EMAILJS_TEMPLATE_ID",
		"EMAILJS_PUBLIC_KEY",
		"EMAILJS_PRIVATE_KEY",
		"LEAD_NOTIFY_TIMEOUT",
		"CAPTURE_MAX_DURATION",
		"CAPTURE_STOP_GRACE",
		"CAPTURE_TIMESLICE",
		"CAPTURE_TICK_INTERVAL",
		"CAPTURE_START_TIMEOUT",
		"CHAT_HISTORY_LIMIT",
		"APP_IDLE_TIMEOUT",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("ASSISTANT_API_BASE_URL", "https://bot.test/api")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":8080" {
		t.Errorf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.Capture.MaxDuration != 30*time.Second || cfg.Capture.StopGrace != 2*time.Second {
		t.Errorf("Unexpected capture defaults %+v", cfg.Capture)
	}
	if cfg.Capture.Timeslice != 250*time.Millisecond || cfg.Capture.TickInterval != 500*time.Millisecond {
		t.Errorf("Unexpected capture timing %+v", cfg.Capture)
	}
	if cfg.Conversation.HistoryLimit != 10 {
		t.Errorf("HistoryLimit = %d, want 10", cfg.Conversation.HistoryLimit)
	}
	if cfg.Conversation.LeadTimeout != 10*time.Second || cfg.EmailJS.Timeout != 10*time.Second {
		t.Errorf("Unexpected lead timeout %s / %s", cfg.Conversation.LeadTimeout, cfg.EmailJS.Timeout)
	}
	if cfg.Assistant.Timeout != 0 {
		t.Errorf("Expected no assistant timeout by default, got %s", cfg.Assistant.Timeout)
	}
	if cfg.IdleTimeout != 30*time.Minute {
		t.Errorf("IdleTimeout = %s, want 30m", cfg.IdleTimeout)
	}
	if cfg.IsDevelopment() {
		t.Error("Expected production by default")
	}
	if cfg.EmailJS.Configured() {
		t.Error("Expected EmailJS unconfigured by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_ENV", "development")
	t.Setenv("APP_ALLOWED_ORIGINS", "https://a.test, https://b.test,,")
	t.Setenv("ASSISTANT_API_BASE_URL", "https://bot.test/api")
	t.Setenv("CAPTURE_MAX_DURATION", "45s")
	t.Setenv("CHAT_HISTORY_LIMIT", "6")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.IsDevelopment() {
		t.Error("Expected development mode")
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.test" {
		t.Errorf("Unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.Capture.MaxDuration != 45*time.Second {
		t.Errorf("MaxDuration = %s, want 45s", cfg.Capture.MaxDuration)
	}
	if cfg.Conversation.HistoryLimit != 6 {
		t.Errorf("HistoryLimit = %d, want 6", cfg.Conversation.HistoryLimit)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing assistant URL", map[string]string{}},
		{"bad duration", map[string]string{"ASSISTANT_API_BASE_URL": "https://x.test", "CAPTURE_STOP_GRACE": "soon"}},
		{"bad int", map[string]string{"ASSISTANT_API_BASE_URL": "https://x.test", "CHAT_HISTORY_LIMIT": "ten"}},
		{"zero history", map[string]string{"ASSISTANT_API_BASE_URL": "https://x.test", "CHAT_HISTORY_LIMIT": "0"}},
		{"short max duration", map[string]string{"ASSISTANT_API_BASE_URL": "https://x.test", "CAPTURE_MAX_DURATION": "10ms"}},
		{"negative idle timeout", map[string]string{"ASSISTANT_API_BASE_URL": "https://x.test", "APP_IDLE_TIMEOUT": "-1m"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("Expected Load() to fail")
			}
		})
	}
}
