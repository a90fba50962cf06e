package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Port      string `env:"PORT" env-default:"8000"`
	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `env:"LOG_FORMAT" env-default:"text"`

	DefaultLLM string `env:"DEFAULT_LLM" env-default:"gpt"`
	PromptDir  string `env:"PROMPT_DIR"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIModel   string `env:"OPENAI_MODEL" env-default:"gpt-4o-mini"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" env-default:"https://api.openai.com/v1"`

	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL" env-default:"gemini-2.5-flash"`

	MaxTokens   int     `env:"CAPTION_MAX_TOKENS" env-default:"300"`
	Temperature float64 `env:"CAPTION_TEMPERATURE" env-default:"0.8"`

	DatabaseURL string `env:"DATABASE_URL"`

	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	WebhookURL       string `env:"WEBHOOK_URL"`
}

// Load reads an optional .env file and then the process environment.
// Missing provider keys are not an error here; engines report them per request.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if cfg.MaxTokens <= 0 {
		return nil, fmt.Errorf("CAPTION_MAX_TOKENS must be positive, got %d", cfg.MaxTokens)
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return nil, fmt.Errorf("CAPTION_TEMPERATURE must be within [0, 2], got %g", cfg.Temperature)
	}
	return &cfg, nil
}

// Usage describes every recognised environment variable.
func Usage() string {
	var cfg Config
	desc, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return desc
}
