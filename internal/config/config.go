package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the LabelScan server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	AI        AIConfig
	Analysis  AnalysisConfig
	History   HistoryConfig
	Storage   StorageConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port           int
	Env            string
	LogLevel       string
	MaxUploadBytes int64
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type AIConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	Gemini           GeminiConfig
	Ollama           OllamaConfig
	VLLM             VLLMConfig
	OpenAI           OpenAIConfig
	Anthropic        AnthropicConfig
}

type GeminiConfig struct {
	APIKey  string
	BaseURL string // optional override of the Gemini API endpoint
	Model   string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type VLLMConfig struct {
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// AnalysisConfig selects the risk analyzer design for the whole deployment.
type AnalysisConfig struct {
	Mode        string // "batch" or "hybrid"
	Concurrency int    // hybrid only: max concurrent AI fallbacks
	CacheTTL    time.Duration
}

type HistoryConfig struct {
	Limit int
}

// StorageConfig configures the optional S3-compatible image store.
// Storage is disabled when Bucket is empty.
type StorageConfig struct {
	Bucket        string
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

// Enabled reports whether uploaded images should be persisted.
func (s StorageConfig) Enabled() bool { return s.Bucket != "" }

type RateLimitConfig struct {
	RequestsPerMinute int
}

const minJWTSecretLen = 32

var validProviders = map[string]bool{
	"gemini":    true,
	"ollama":    true,
	"vllm":      true,
	"openai":    true,
	"anthropic": true,
}

var validAnalyzerModes = map[string]bool{
	"batch":  true,
	"hybrid": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env file in the working directory, if present, is applied first without
// overriding variables that are already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("ignoring unreadable .env file", "error", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           envInt("LABELSCAN_PORT", 8080),
			Env:            envString("LABELSCAN_ENV", "development"),
			LogLevel:       envString("LOG_LEVEL", "info"),
			MaxUploadBytes: int64(envInt("MAX_UPLOAD_BYTES", 10<<20)),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			TokenTTL:  envDuration("JWT_TTL", 24*time.Hour),
		},
		AI: loadAIConfig(),
		Analysis: AnalysisConfig{
			Mode:        strings.ToLower(envString("ANALYZER_MODE", "batch")),
			Concurrency: envInt("ANALYZER_CONCURRENCY", 4),
			CacheTTL:    envDuration("ANALYSIS_CACHE_TTL", 24*time.Hour),
		},
		History: HistoryConfig{
			Limit: envInt("HISTORY_LIMIT", 10),
		},
		Storage: StorageConfig{
			Bucket:        os.Getenv("S3_BUCKET"),
			Endpoint:      os.Getenv("S3_ENDPOINT"),
			Region:        envString("S3_REGION", "auto"),
			AccessKey:     os.Getenv("S3_ACCESS_KEY"),
			SecretKey:     os.Getenv("S3_SECRET_KEY"),
			PublicBaseURL: strings.TrimRight(os.Getenv("S3_PUBLIC_BASE_URL"), "/"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: envInt("RATE_LIMIT_PER_MIN", 30),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLen)
	}

	if err := c.AI.Validate(); err != nil {
		return err
	}

	if !validAnalyzerModes[c.Analysis.Mode] {
		return fmt.Errorf("ANALYZER_MODE must be one of batch, hybrid; got %q", c.Analysis.Mode)
	}
	if c.Analysis.Concurrency < 1 {
		return fmt.Errorf("ANALYZER_CONCURRENCY must be positive, got %d", c.Analysis.Concurrency)
	}

	if c.History.Limit < 1 {
		return fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.History.Limit)
	}

	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}

	if c.Storage.Enabled() && c.Storage.PublicBaseURL == "" {
		return fmt.Errorf("S3_PUBLIC_BASE_URL is required when S3_BUCKET is set")
	}

	return nil
}

// Validate checks the provider selection and its credentials. It is exported
// so the CLI can reuse it without the server-only settings.
func (a AIConfig) Validate() error {
	if a.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[a.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of gemini, ollama, vllm, openai, anthropic; got %q", a.Provider)
	}

	if a.Provider == "gemini" && a.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when AI_PROVIDER is gemini")
	}
	if a.Provider == "openai" && a.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if a.Provider == "anthropic" && a.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}
	if a.Provider == "vllm" && a.VLLM.Model == "" {
		return fmt.Errorf("VLLM_MODEL is required when AI_PROVIDER is vllm")
	}
	if a.InferenceTimeout <= 0 {
		return fmt.Errorf("AI_INFERENCE_TIMEOUT_SECS must be positive")
	}

	return nil
}

// LoadAI reads and validates only the AI provider settings. Used by the CLI,
// which needs no database, cache or auth configuration.
func LoadAI() (AIConfig, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("ignoring unreadable .env file", "error", err)
	}
	ai := loadAIConfig()
	if err := ai.Validate(); err != nil {
		return AIConfig{}, err
	}
	return ai, nil
}

func loadAIConfig() AIConfig {
	return AIConfig{
		Provider:         os.Getenv("AI_PROVIDER"),
		InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
		Gemini: GeminiConfig{
			APIKey:  os.Getenv("GEMINI_API_KEY"),
			BaseURL: os.Getenv("GEMINI_BASE_URL"),
			Model:   envString("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		Ollama: OllamaConfig{
			BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
			Model:   envString("OLLAMA_MODEL", "llama3.2-vision"),
		},
		VLLM: VLLMConfig{
			BaseURL: envString("VLLM_BASE_URL", "http://localhost:8000"),
			Model:   envString("VLLM_MODEL", ""),
		},
		OpenAI: OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com"),
			Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
		},
		Anthropic: AnthropicConfig{
			APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
			BaseURL: envString("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
			Model:   envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
		},
	}
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
