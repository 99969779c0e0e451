package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/vmkdxailabs/chatwidget/adapters/assistant"
	"github.com/vmkdxailabs/chatwidget/adapters/emailjs"
	"github.com/vmkdxailabs/chatwidget/usecase"
)

// Config contains all runtime settings for the widget host
type Config struct {
	Env              string
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowedOrigins   []string

	Assistant assistant.Config
	EmailJS   emailjs.Config

	Capture             usecase.CaptureOptions
	CaptureStartTimeout time.Duration
	Conversation        usecase.ConversationOptions

	// IdleTimeout closes widget connections without visitor activity.
	// Zero disables the reaper.
	IdleTimeout time.Duration
}

// IsDevelopment reports whether the host runs in development mode
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// LoadDotEnv loads a .env file when present
func LoadDotEnv(logger *zap.Logger) {
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using environment variables")
	}
}

// Load reads environment variables and applies safe defaults
func Load() (Config, error) {
	cfg := Config{
		Env:                 envOrDefault("APP_ENV", "production"),
		BindAddr:            envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:    envOrDefault("APP_METRICS_NAMESPACE", "chatwidget"),
		AllowedOrigins:      listFromEnv("APP_ALLOWED_ORIGINS"),
		Assistant:           assistant.NewConfigFromEnv(),
		EmailJS:             emailjs.NewConfigFromEnv(),
		Capture:             usecase.DefaultCaptureOptions(),
		ShutdownTimeout:     15 * time.Second,
		CaptureStartTimeout: 10 * time.Second,
		IdleTimeout:         30 * time.Minute,
		Conversation: usecase.ConversationOptions{
			HistoryLimit: usecase.DefaultHistoryLimit,
			LeadTimeout:  usecase.DefaultLeadTimeout,
		},
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.Assistant.Timeout, err = durationFromEnv("ASSISTANT_HTTP_TIMEOUT", cfg.Assistant.Timeout)
	if err != nil {
		return Config{}, err
	}
	cfg.Conversation.LeadTimeout, err = durationFromEnv("LEAD_NOTIFY_TIMEOUT", cfg.Conversation.LeadTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.EmailJS.Timeout = cfg.Conversation.LeadTimeout
	cfg.Conversation.HistoryLimit, err = intFromEnv("CHAT_HISTORY_LIMIT", cfg.Conversation.HistoryLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.Capture.MaxDuration, err = durationFromEnv("CAPTURE_MAX_DURATION", cfg.Capture.MaxDuration)
	if err != nil {
		return Config{}, err
	}
	cfg.Capture.StopGrace, err = durationFromEnv("CAPTURE_STOP_GRACE", cfg.Capture.StopGrace)
	if err != nil {
		return Config{}, err
	}
	cfg.Capture.Timeslice, err = durationFromEnv("CAPTURE_TIMESLICE", cfg.Capture.Timeslice)
	if err != nil {
		return Config{}, err
	}
	cfg.Capture.TickInterval, err = durationFromEnv("CAPTURE_TICK_INTERVAL", cfg.Capture.TickInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.CaptureStartTimeout, err = durationFromEnv("CAPTURE_START_TIMEOUT", cfg.CaptureStartTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.IdleTimeout, err = durationFromEnv("APP_IDLE_TIMEOUT", cfg.IdleTimeout)
	if err != nil {
		return Config{}, err
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints
func Validate(cfg Config) error {
	if err := assistant.ValidateConfig(cfg.Assistant); err != nil {
		return fmt.Errorf("ASSISTANT_API_BASE_URL: %w", err)
	}
	if cfg.Conversation.HistoryLimit <= 0 {
		return fmt.Errorf("CHAT_HISTORY_LIMIT must be positive")
	}
	if cfg.Capture.MaxDuration < time.Second {
		return fmt.Errorf("CAPTURE_MAX_DURATION must be at least 1s")
	}
	if cfg.Capture.StopGrace <= 0 || cfg.Capture.Timeslice <= 0 || cfg.Capture.TickInterval <= 0 {
		return fmt.Errorf("capture durations must be positive")
	}
	if cfg.Capture.Timeslice > cfg.Capture.MaxDuration {
		return fmt.Errorf("CAPTURE_TIMESLICE must not exceed CAPTURE_MAX_DURATION")
	}
	if cfg.CaptureStartTimeout <= 0 {
		return fmt.Errorf("CAPTURE_START_TIMEOUT must be positive")
	}
	if cfg.Conversation.LeadTimeout <= 0 {
		return fmt.Errorf("LEAD_NOTIFY_TIMEOUT must be positive")
	}
	if cfg.IdleTimeout < 0 {
		return fmt.Errorf("APP_IDLE_TIMEOUT must not be negative")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func listFromEnv(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
