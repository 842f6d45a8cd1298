package common

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Queue     QueueConfig
	Workflow  WorkflowConfig
	Agent     AgentConfig
	LLM       LLMConfig
	Storage   StorageConfig
	Redis     RedisConfig
	Telemetry TelemetryConfig
	Tools     ToolsConfig
}

// DatabaseConfig holds database-related configuration. An empty DSN selects
// the embedded SQLite database at SQLitePath.
type DatabaseConfig struct {
	DSN              string
	SQLitePath       string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
}

// QueueConfig controls admission and message lifetime.
type QueueConfig struct {
	Backend           string // memory | redis
	Name              string
	JobConcurrency    int
	VisibilityTimeout time.Duration
	RetryVisibility   time.Duration
	MaxReceives       int
	DedupWindow       time.Duration
	MaxWait           time.Duration
	PollInterval      time.Duration
}

// WorkflowConfig controls per-job fan-out and the per-item retry policy.
type WorkflowConfig struct {
	FanOutLimit          int
	RetryMaxAttempts     int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

// AgentConfig points at the agent runtime.
type AgentConfig struct {
	RuntimeURL string
	Timeout    time.Duration
	RateLimit  float64 // calls per second, 0 disables
	RateBurst  int
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
}

// StorageConfig selects the document and artifact store. An empty Bucket
// selects the local filesystem rooted at LocalDir.
type StorageConfig struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	LocalDir     string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
	Insecure     bool
	SampleRate   float64
}

type ToolsConfig struct {
	MCPRegistryFile string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			SQLitePath:       getEnv("SQLITE_PATH", "file:review.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		Queue: QueueConfig{
			Backend:           getEnv("QUEUE_BACKEND", "memory"),
			Name:              getEnv("QUEUE_NAME", "review-jobs"),
			JobConcurrency:    getEnvAsInt("JOB_CONCURRENCY", 1),
			VisibilityTimeout: getEnvAsDuration("QUEUE_VISIBILITY_TIMEOUT", 20*time.Minute),
			RetryVisibility:   getEnvAsDuration("QUEUE_RETRY_VISIBILITY", 15*time.Second),
			MaxReceives:       getEnvAsInt("QUEUE_MAX_RECEIVES", 3),
			DedupWindow:       getEnvAsDuration("QUEUE_DEDUP_WINDOW", 5*time.Minute),
			MaxWait:           getEnvAsDuration("QUEUE_MAX_WAIT", 24*time.Hour),
			PollInterval:      getEnvAsDuration("QUEUE_POLL_INTERVAL", time.Second),
		},
		Workflow: WorkflowConfig{
			FanOutLimit:          getEnvAsInt("FAN_OUT_LIMIT", 1),
			RetryMaxAttempts:     getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			RetryInitialInterval: getEnvAsDuration("RETRY_INITIAL_INTERVAL", 2*time.Second),
			RetryMaxInterval:     getEnvAsDuration("RETRY_MAX_INTERVAL", 30*time.Second),
		},
		Agent: AgentConfig{
			RuntimeURL: getEnv("AGENT_RUNTIME_URL", ""),
			Timeout:    getEnvAsDuration("AGENT_TIMEOUT", 15*time.Minute),
			RateLimit:  getEnvAsFloat64("AGENT_RATE_LIMIT", 0),
			RateBurst:  getEnvAsInt("AGENT_RATE_BURST", 1),
		},
		LLM: LLMConfig{
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Temperature: float32(getEnvAsFloat64("OPENAI_TEMPERATURE", 0.0)),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 90*time.Second),
		},
		Storage: StorageConfig{
			Bucket:       getEnv("S3_BUCKET", ""),
			Region:       getEnv("AWS_REGION", "us-east-1"),
			Endpoint:     getEnv("S3_ENDPOINT", ""),
			UsePathStyle: getEnvAsBool("S3_USE_PATH_STYLE", false),
			LocalDir:     getEnv("STORAGE_DIR", "./data"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "review-orchestrator"),
			Insecure:     getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			SampleRate:   getEnvAsFloat64("OTEL_TRACES_SAMPLE_RATE", 1.0),
		},
		Tools: ToolsConfig{
			MCPRegistryFile: getEnv("MCP_REGISTRY_FILE", ""),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks the values the daemon cannot run without.
func (c *Config) Validate() error {
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", ErrInvalidInput)
	}
	if c.Queue.JobConcurrency < 1 {
		return NewAppError("CONFIG_ERROR", "JOB_CONCURRENCY must be >= 1", ErrInvalidInput)
	}
	if c.Workflow.FanOutLimit < 1 {
		return NewAppError("CONFIG_ERROR", "FAN_OUT_LIMIT must be >= 1", ErrInvalidInput)
	}
	if c.Workflow.RetryMaxAttempts < 1 {
		return NewAppError("CONFIG_ERROR", "RETRY_MAX_ATTEMPTS must be >= 1", ErrInvalidInput)
	}
	if c.Queue.MaxReceives < 1 {
		return NewAppError("CONFIG_ERROR", "QUEUE_MAX_RECEIVES must be >= 1", ErrInvalidInput)
	}
	if c.Queue.VisibilityTimeout <= 0 || c.Agent.Timeout <= 0 {
		return NewAppError("CONFIG_ERROR", "QUEUE_VISIBILITY_TIMEOUT and AGENT_TIMEOUT must be positive", ErrInvalidInput)
	}
	switch c.Queue.Backend {
	case "memory", "redis":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown QUEUE_BACKEND %q", c.Queue.Backend), ErrInvalidInput)
	}
	if c.Agent.RuntimeURL == "" {
		return NewAppError("CONFIG_ERROR", "AGENT_RUNTIME_URL is required", ErrInvalidInput)
	}
	return nil
}
