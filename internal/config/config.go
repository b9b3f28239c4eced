// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Speech backends.
const (
	SpeechRelay = "relay"
	SpeechGRPC  = "grpc"
	SpeechNone  = "none"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	Assistant   AssistantConfig
	Speech      SpeechConfig
	Mail        MailConfig
}

// AssistantConfig controls conversation timing and the response library.
type AssistantConfig struct {
	ThinkMin       time.Duration
	ThinkMax       time.Duration
	CelebrationTTL time.Duration
	LibraryPath    string // optional; the embedded library is used when empty
}

// SpeechConfig selects the recognition backend.
type SpeechConfig struct {
	Backend  string
	GRPCAddr string
	Lang     string
}

// MailConfig identifies the contact form mail account.
type MailConfig struct {
	Endpoint   string
	ServiceID  string
	TemplateID string
	PublicKey  string
	StatusTTL  time.Duration
	RateLimit  int // requests per minute per visitor
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/assistant.db"),
		Assistant: AssistantConfig{
			ThinkMin:       getEnvDuration("ASSISTANT_THINK_MIN", 800*time.Millisecond),
			ThinkMax:       getEnvDuration("ASSISTANT_THINK_MAX", 1500*time.Millisecond),
			CelebrationTTL: getEnvDuration("ASSISTANT_CELEBRATION_TTL", 3*time.Second),
			LibraryPath:    getEnv("ASSISTANT_LIBRARY_PATH", ""),
		},
		Speech: SpeechConfig{
			Backend:  strings.ToLower(getEnv("SPEECH_BACKEND", SpeechRelay)),
			GRPCAddr: getEnv("SPEECH_GRPC_ADDR", "localhost:50052"),
			Lang:     getEnv("SPEECH_LANG", "en-US"),
		},
		Mail: MailConfig{
			Endpoint:   getEnv("MAIL_ENDPOINT", "https://api.emailjs.com/api/v1.0/email/send"),
			ServiceID:  getEnv("MAIL_SERVICE_ID", ""),
			TemplateID: getEnv("MAIL_TEMPLATE_ID", ""),
			PublicKey:  getEnv("MAIL_PUBLIC_KEY", ""),
			StatusTTL:  getEnvDuration("MAIL_STATUS_TTL", 5*time.Second),
			RateLimit:  getEnvInt("MAIL_RATE_LIMIT", 5),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT cannot be empty"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH cannot be empty"))
	}
	if c.Assistant.ThinkMin < 0 {
		errs = append(errs, errors.New("ASSISTANT_THINK_MIN cannot be negative"))
	}
	if c.Assistant.ThinkMax < c.Assistant.ThinkMin {
		errs = append(errs, errors.New("ASSISTANT_THINK_MAX must be >= ASSISTANT_THINK_MIN"))
	}
	if c.Assistant.CelebrationTTL <= 0 {
		errs = append(errs, errors.New("ASSISTANT_CELEBRATION_TTL must be > 0"))
	}
	switch c.Speech.Backend {
	case SpeechRelay, SpeechNone:
	case SpeechGRPC:
		if c.Speech.GRPCAddr == "" {
			errs = append(errs, errors.New("SPEECH_GRPC_ADDR is required for the grpc backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("SPEECH_BACKEND %q must be relay, grpc or none", c.Speech.Backend))
	}
	if c.Mail.StatusTTL <= 0 {
		errs = append(errs, errors.New("MAIL_STATUS_TTL must be > 0"))
	}
	if c.Mail.RateLimit <= 0 {
		errs = append(errs, errors.New("MAIL_RATE_LIMIT must be > 0"))
	}
	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the API.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{strings.TrimRight(c.FrontendURL, "/")}
}

// MailConfigured reports whether contact form delivery is possible.
func (c *Config) MailConfigured() bool {
	return c.Mail.ServiceID != "" && c.Mail.TemplateID != "" && c.Mail.PublicKey != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("1.5s") or bare milliseconds ("1500").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
