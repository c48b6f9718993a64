package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderOpenAI LLMProvider = "openai"
)

type BlobBackend string

const (
	BlobFS BlobBackend = "fs"
	BlobS3 BlobBackend = "s3"
)

type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"fleet_copilot.db"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFile     string `env:"LOG_FILE" envDefault:"fleet_copilot.log"`
	JWTSecret   string `env:"JWT_SECRET"`

	// LLM settings
	LLMProvider   LLMProvider `env:"LLM_PROVIDER" envDefault:"gemini"`
	GeminiAPIKey  string      `env:"GEMINI_API_KEY"`
	GeminiModel   string      `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	OpenAIAPIKey  string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string      `env:"OPENAI_BASE_URL"`
	OpenAIModel   string      `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`

	// Telematics upstream
	SamsaraAPIToken  string  `env:"SAMSARA_API_TOKEN"`
	SamsaraBaseURL   string  `env:"SAMSARA_BASE_URL" envDefault:"https://api.samsara.com"`
	SamsaraRateLimit float64 `env:"SAMSARA_RATE_LIMIT" envDefault:"5"`

	// Media storage
	BlobBackend      BlobBackend `env:"BLOB_BACKEND" envDefault:"fs"`
	BlobDir          string      `env:"BLOB_DIR" envDefault:"storage"`
	BlobPublicURL    string      `env:"BLOB_PUBLIC_URL" envDefault:"/storage"`
	S3Bucket         string      `env:"S3_BUCKET"`
	S3Region         string      `env:"S3_REGION"`
	S3Endpoint       string      `env:"S3_ENDPOINT"`
	S3AccessKey      string      `env:"S3_ACCESS_KEY"`
	S3SecretKey      string      `env:"S3_SECRET_KEY"`
	MediaParallelism int         `env:"MEDIA_PARALLELISM" envDefault:"4"`

	// Background sync, standard five field cron spec; empty disables it.
	SyncSchedule string `env:"SYNC_SCHEDULE" envDefault:"*/5 * * * *"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, relying on environment variables")
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET environment variable is required"))
	}
	switch c.LLMProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY environment variable is required"))
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY environment variable is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider))
	}
	if c.SamsaraAPIToken == "" {
		errs = append(errs, errors.New("SAMSARA_API_TOKEN environment variable is required"))
	}
	switch c.BlobBackend {
	case BlobFS:
	case BlobS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required when BLOB_BACKEND=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown BLOB_BACKEND %q", c.BlobBackend))
	}
	return errors.Join(errs...)
}

// Level maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) Level() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
