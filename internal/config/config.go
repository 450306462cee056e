package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderAuto   = "auto"
	ProviderGemini = "gemini"
	ProviderGroq   = "groq"

	defaultGeminiModel       = "gemini-1.5-flash"
	defaultGroqModel         = "llama-3.3-70b-versatile"
	defaultGenerationTimeout = 45 * time.Second
	defaultDatabasePath      = "data/meal-planner.db"
	defaultPort              = "8080"
)

// Config holds the configuration for the application.
type Config struct {
	GeminiAPIKey string
	GeminiModel  string
	GroqAPIKey   string
	GroqModel    string
	LLMProvider  string

	// Generation tuning
	GenerationTimeout time.Duration
	ChunkConcurrency  int

	DatabasePath string
	JWTSecret    string
	Port         string

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64
	AdminTelegramID        int64
}

// NewFromEnv creates a new Config object from environment variables.
// A .env file in the working directory is loaded first when present.
// No generative backend key is required: without one, plans are built
// from the deterministic catalog only.
func NewFromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        envOr("GEMINI_MODEL", defaultGeminiModel),
		GroqAPIKey:         os.Getenv("GROQ_API_KEY"),
		GroqModel:          envOr("GROQ_MODEL", defaultGroqModel),
		LLMProvider:        strings.ToLower(envOr("LLM_PROVIDER", ProviderAuto)),
		GenerationTimeout:  defaultGenerationTimeout,
		ChunkConcurrency:   1,
		DatabasePath:       envOr("DATABASE_PATH", defaultDatabasePath),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		Port:               envOr("PORT", defaultPort),
		TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL: os.Getenv("TELEGRAM_WEBHOOK_URL"),
	}

	switch cfg.LLMProvider {
	case ProviderAuto, ProviderGemini, ProviderGroq:
	default:
		return nil, fmt.Errorf("LLM_PROVIDER must be one of auto, gemini, groq: got %q", cfg.LLMProvider)
	}

	if v := os.Getenv("GENERATION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("GENERATION_TIMEOUT must be a positive duration: got %q", v)
		}
		cfg.GenerationTimeout = d
	}

	if v := os.Getenv("CHUNK_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 7 {
			return nil, fmt.Errorf("CHUNK_CONCURRENCY must be an integer between 1 and 7: got %q", v)
		}
		cfg.ChunkConcurrency = n
	}

	if v := os.Getenv("TELEGRAM_ALLOWED_USER_IDS"); v != "" {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("TELEGRAM_ALLOWED_USER_IDS contains an invalid id %q", part)
			}
			cfg.TelegramAllowedUserIDs = append(cfg.TelegramAllowedUserIDs, id)
		}
	}

	if v := os.Getenv("ADMIN_TELEGRAM_ID"); v != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ADMIN_TELEGRAM_ID must be a numeric telegram id: got %q", v)
		}
		cfg.AdminTelegramID = id
	}

	return cfg, nil
}

// HasGenerativeBackend reports whether any text-generation key is configured.
func (c *Config) HasGenerativeBackend() bool {
	return c.GeminiAPIKey != "" || c.GroqAPIKey != ""
}

// RequireJWT checks the settings needed by the HTTP API.
func (c *Config) RequireJWT() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable not set")
	}
	return nil
}

// RequireTelegram checks the settings needed by the Telegram bot.
func (c *Config) RequireTelegram() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable not set")
	}
	if c.TelegramWebhookURL == "" {
		return fmt.Errorf("TELEGRAM_WEBHOOK_URL environment variable not set")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
