package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend kinds
const (
	BackendBedrockAgent = "bedrock-agent"
	BackendBedrockModel = "bedrock-model"
	BackendGemini       = "gemini"
	BackendAssistants   = "assistants"
	BackendScripted     = "scripted"
)

// Store kinds
const (
	StoreMemory   = "memory"
	StoreDynamoDB = "dynamodb"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Dispatcher kinds
const (
	DispatchInProcess   = "inprocess"
	DispatchAsynq       = "asynq"
	DispatchEventBridge = "eventbridge"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string
	ConfigFile    string

	// AWS configuration
	AWSRegion         string
	DynamoDBTable     string
	ConnectionsTable  string
	EventBusName      string
	WebSocketEndpoint string

	// Storage
	StoreKind   string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	// Generation backend
	BackendKind            string
	BedrockAgentID         string
	BedrockAgentAliasID    string
	BedrockModelID         string
	GeminiAPIKey           string
	GeminiModel            string
	OpenAIAPIKey           string
	OpenAIBaseURL          string
	OpenAIAssistantID      string
	AssistantsPollInterval time.Duration
	BackendTimeout         time.Duration
	HistoryWindow          int

	// Profile extraction
	DispatcherKind    string
	ExtractionTimeout time.Duration
	ExtractionWorkers int

	// Speech to text; empty URL disables the endpoint
	TranscriptionURL   string
	TranscriptionModel string

	// Logging
	LogLevel string

	// Authentication
	JWTSecret string
	JWTIssuer string

	// Rate limiting of turns per identity
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Feature flags
	EnableMetrics    bool
	MetricsSink      string
	MetricsNamespace string
	EnableTracing    bool
	TracingEndpoint  string
	EnableCORS       bool
	AllowedOrigins   []string
}

// LoadConfig loads configuration from an optional .env file, environment
// variables and an optional YAML overlay, in increasing precedence
func LoadConfig() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		ConfigFile:    getEnv("CONFIG_FILE", ""),

		AWSRegion:         getEnv("AWS_REGION", "ca-central-1"),
		DynamoDBTable:     getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", "carechat")),
		ConnectionsTable:  getEnv("CONNECTIONS_TABLE", "carechat-connections"),
		EventBusName:      getEnv("EVENT_BUS_NAME", "carechat-events"),
		WebSocketEndpoint: getEnv("WEBSOCKET_ENDPOINT", ""),

		StoreKind:   getEnv("STORE_KIND", StoreMemory),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SQLitePath:  getEnv("SQLITE_PATH", "carechat.db"),
		RedisURL:    getEnv("REDIS_URL", ""),

		BackendKind:            getEnv("BACKEND_KIND", BackendScripted),
		BedrockAgentID:         getEnv("BEDROCK_AGENT_ID", ""),
		BedrockAgentAliasID:    getEnv("BEDROCK_AGENT_ALIAS_ID", ""),
		BedrockModelID:         getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:           getEnv("GEMINI_API_KEY", ""),
		GeminiModel:            getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		OpenAIAPIKey:           getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:          getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIAssistantID:      getEnv("OPENAI_ASSISTANT_ID", ""),
		AssistantsPollInterval: getEnvDuration("ASSISTANTS_POLL_INTERVAL", 500*time.Millisecond),
		BackendTimeout:         getEnvDuration("BACKEND_TIMEOUT", 60*time.Second),
		HistoryWindow:          getEnvInt("HISTORY_WINDOW", -1),

		DispatcherKind:    getEnv("DISPATCHER_KIND", DispatchInProcess),
		ExtractionTimeout: getEnvDuration("EXTRACTION_TIMEOUT", 30*time.Second),
		ExtractionWorkers: getEnvInt("EXTRACTION_WORKERS", 4),

		TranscriptionURL:   getEnv("TRANSCRIPTION_URL", ""),
		TranscriptionModel: getEnv("TRANSCRIPTION_MODEL", "whisper-1"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "carechat"),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 30),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		LogLevel:         getEnv("LOG_LEVEL", "info"),
		EnableMetrics:    getEnvBool("ENABLE_METRICS", true),
		MetricsSink:      getEnv("METRICS_SINK", "prometheus"),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "CareChat"),
		EnableTracing:    getEnvBool("ENABLE_TRACING", false),
		TracingEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		EnableCORS:       getEnvBool("ENABLE_CORS", true),
		AllowedOrigins:   getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}

	if cfg.ConfigFile != "" {
		overlay, err := ReadOverlay(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		overlay.Apply(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.BackendKind {
	case BackendBedrockAgent:
		if c.BedrockAgentID == "" || c.BedrockAgentAliasID == "" {
			return fmt.Errorf("BEDROCK_AGENT_ID and BEDROCK_AGENT_ALIAS_ID are required for %s", c.BackendKind)
		}
	case BackendBedrockModel:
		if c.BedrockModelID == "" {
			return fmt.Errorf("BEDROCK_MODEL_ID is required for %s", c.BackendKind)
		}
	case BackendGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for %s", c.BackendKind)
		}
	case BackendAssistants:
		if c.OpenAIAPIKey == "" || c.OpenAIAssistantID == "" {
			return fmt.Errorf("OPENAI_API_KEY and OPENAI_ASSISTANT_ID are required for %s", c.BackendKind)
		}
	case BackendScripted:
	default:
		return fmt.Errorf("unknown BACKEND_KIND %q", c.BackendKind)
	}

	switch c.StoreKind {
	case StoreMemory, StoreSQLite:
	case StoreDynamoDB:
		if c.DynamoDBTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for %s", c.StoreKind)
		}
	default:
		return fmt.Errorf("unknown STORE_KIND %q", c.StoreKind)
	}

	switch c.DispatcherKind {
	case DispatchInProcess:
	case DispatchAsynq:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for %s", c.DispatcherKind)
		}
	case DispatchEventBridge:
		if c.EventBusName == "" {
			return fmt.Errorf("EVENT_BUS_NAME is required")
		}
	default:
		return fmt.Errorf("unknown DISPATCHER_KIND %q", c.DispatcherKind)
	}

	if c.BackendTimeout <= 0 || c.ExtractionTimeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT and EXTRACTION_TIMEOUT must be positive")
	}

	if c.Environment == "production" && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvDuration accepts Go durations ("30s") or plain seconds ("30")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
