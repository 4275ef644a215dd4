package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"growth_quest/internal/providers"
	"growth_quest/internal/utils"
)

const (
	AppName    = "Shopee Growth Quest"
	AppVersion = "0.1.0"
)

// Config holds configuration for the gateway and its audit trail.
type Config struct {
	App         AppConfig
	Providers   ProvidersConfig
	Gateway     GatewayConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Recorder    RecorderConfig
	LoggingSink LoggingSinkConfig
	LogLevel    string
}

// AppConfig identifies the application
type AppConfig struct {
	Name    string
	Version string
}

// ProviderSettings holds one provider's credentials and default model
type ProviderSettings struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// ProvidersConfig holds credentials for every provider
type ProvidersConfig struct {
	Gemini     ProviderSettings
	OpenRouter ProviderSettings
	Nvidia     ProviderSettings
}

// GatewayConfig holds gateway behaviour settings
type GatewayConfig struct {
	DefaultProvider  providers.Identity
	RequestTimeout   time.Duration // Timeout for a single provider call
	CatalogCacheTTL  time.Duration // How long a discovered model list is reused
	CatalogCacheSize int
}

// DatabaseConfig holds database connection settings. An empty URL disables
// the Postgres record writer.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
}

// RedisConfig holds Redis connection settings. An empty Address selects the
// in-memory queue.
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RecorderConfig holds settings for the generation audit trail
type RecorderConfig struct {
	Enabled         bool
	QueueName       string
	QueueCapacity   int
	BatchSize       int
	BatchTimeout    time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	EnqueueTimeout  time.Duration
	ShutdownTimeout time.Duration

	FileEnabled      bool
	FilePathTemplate string
	MaxSize          int64
	MaxFiles         int

	// EncryptionKey is a base64 AES key; when set, prompts and responses are
	// stored encrypted alongside each record
	EncryptionKey string
}

// LoggingSinkConfig holds configuration for the S3 archive of records
type LoggingSinkConfig struct {
	Enabled     bool   // Whether to archive records to S3
	S3Bucket    string // S3 bucket name
	S3Region    string // AWS region
	S3Prefix    string // Prefix for S3 keys (e.g., "generations/")
	S3Endpoint  string // Custom endpoint, e.g. MinIO
	S3AccessKey string
	S3SecretKey string
	PodName     string // Identifier for multi-instance deployments
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}
	return b
}

// Load reads the .env file named by ENV_FILE (default ".env") if it exists,
// then builds the configuration from the environment. Variables already set
// in the environment win over the file.
func Load() (*Config, error) {
	return LoadFile(getEnvString("ENV_FILE", ".env"))
}

// LoadFile is Load with an explicit .env path. A missing file is not an error.
func LoadFile(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	defaultProvider, err := providers.ParseIdentity(getEnvString("DEFAULT_PROVIDER", string(providers.Primary)))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_PROVIDER: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:    getEnvString("APP_NAME", AppName),
			Version: AppVersion,
		},
		Providers: ProvidersConfig{
			Gemini: ProviderSettings{
				APIKey:       getEnvString("GOOGLE_API_KEY", ""),
				BaseURL:      getEnvString("GEMINI_BASE_URL", ""),
				DefaultModel: getEnvString("GEMINI_MODEL", providers.Gemini.DefaultModel()),
			},
			OpenRouter: ProviderSettings{
				APIKey:       getEnvString("OPENROUTER_API_KEY", ""),
				BaseURL:      getEnvString("OPENROUTER_BASE_URL", providers.OpenRouter.DefaultBaseURL()),
				DefaultModel: getEnvString("OPENROUTER_MODEL", providers.OpenRouter.DefaultModel()),
			},
			Nvidia: ProviderSettings{
				APIKey:       getEnvString("NVIDIA_API_KEY", ""),
				BaseURL:      getEnvString("NVIDIA_BASE_URL", providers.Nvidia.DefaultBaseURL()),
				DefaultModel: getEnvString("NVIDIA_MODEL", providers.Nvidia.DefaultModel()),
			},
		},
		Gateway: GatewayConfig{
			DefaultProvider:  defaultProvider,
			RequestTimeout:   getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 60*time.Second),
			CatalogCacheTTL:  getEnvDuration("CATALOG_CACHE_TTL", 10*time.Minute),
			CatalogCacheSize: getEnvInt("CATALOG_CACHE_SIZE", 16),
		},
		Database: DatabaseConfig{
			URL:             getEnvString("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
			QueryTimeout:    getEnvDuration("DB_QUERY_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDRESS", ""),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Recorder: RecorderConfig{
			Enabled:          getEnvBool("RECORDER_ENABLED", true),
			QueueName:        getEnvString("RECORDER_QUEUE_NAME", "generations"),
			QueueCapacity:    getEnvInt("RECORDER_QUEUE_CAPACITY", 1000),
			BatchSize:        getEnvInt("RECORDER_BATCH_SIZE", 50),
			BatchTimeout:     getEnvDuration("RECORDER_BATCH_TIMEOUT", 2*time.Second),
			MaxRetries:       getEnvInt("RECORDER_MAX_RETRIES", 3),
			RetryBackoff:     getEnvDuration("RECORDER_RETRY_BACKOFF", 500*time.Millisecond),
			EnqueueTimeout:   getEnvDuration("RECORDER_ENQUEUE_TIMEOUT", 100*time.Millisecond),
			ShutdownTimeout:  getEnvDuration("RECORDER_SHUTDOWN_TIMEOUT", 10*time.Second),
			FileEnabled:      getEnvBool("RECORDER_FILE_ENABLED", true),
			FilePathTemplate: getEnvString("RECORDER_FILE_PATH_TEMPLATE", "logs/generations-%s.jsonl"),
			MaxSize:          getEnvInt64("RECORDER_FILE_MAX_SIZE", 10_485_760), // default 10 MB
			MaxFiles:         getEnvInt("RECORDER_FILE_MAX_FILES", 5),
			EncryptionKey:    getEnvString("RECORD_ENCRYPTION_KEY", ""),
		},
		LoggingSink: LoggingSinkConfig{
			Enabled:     getEnvBool("LOGGING_SINK_ENABLED", false),
			S3Bucket:    getEnvString("LOGGING_SINK_S3_BUCKET", ""),
			S3Region:    getEnvString("LOGGING_SINK_S3_REGION", "us-east-1"),
			S3Prefix:    getEnvString("LOGGING_SINK_S3_PREFIX", "generations/"),
			S3Endpoint:  getEnvString("LOGGING_SINK_S3_ENDPOINT", ""),
			S3AccessKey: getEnvString("LOGGING_SINK_S3_ACCESS_KEY", ""),
			S3SecretKey: getEnvString("LOGGING_SINK_S3_SECRET_KEY", ""),
			PodName:     getEnvString("POD_NAME", "growthquest-0"),
		},
		LogLevel: getEnvString("LOG_LEVEL", ""),
	}

	if cfg.LoggingSink.Enabled && cfg.LoggingSink.S3Bucket == "" {
		return nil, fmt.Errorf("LOGGING_SINK_S3_BUCKET is required when LOGGING_SINK_ENABLED is set")
	}

	return cfg, nil
}

// ApplyLogLevel sets the default level of loggers created from now on.
// Unknown or empty names leave the current level.
func (c *Config) ApplyLogLevel() {
	if level, ok := utils.ParseLogLevel(c.LogLevel); ok {
		utils.SetDefaultLogLevel(level)
	}
}

func (c *Config) settings(id providers.Identity) ProviderSettings {
	switch id {
	case providers.Gemini:
		return c.Providers.Gemini
	case providers.OpenRouter:
		return c.Providers.OpenRouter
	case providers.Nvidia:
		return c.Providers.Nvidia
	}
	return ProviderSettings{}
}

// Credentials builds the provider credential set. Providers without an API
// key are left out.
func (c *Config) Credentials() providers.CredentialSet {
	set := providers.CredentialSet{}
	for _, id := range providers.Identities() {
		s := c.settings(id)
		if s.APIKey == "" {
			continue
		}
		set[id] = providers.Credentials{APIKey: s.APIKey, BaseURL: s.BaseURL}
	}
	return set
}

// MissingCredentials lists providers without an API key
func (c *Config) MissingCredentials() []providers.Identity {
	var missing []providers.Identity
	for _, id := range providers.Identities() {
		if c.settings(id).APIKey == "" {
			missing = append(missing, id)
		}
	}
	return missing
}

// GatewayConfig converts the configuration to what providers.NewGateway takes
func (c *Config) GatewayConfig() providers.GatewayConfig {
	models := make(map[providers.Identity]string, len(providers.Identities()))
	for _, id := range providers.Identities() {
		if m := c.settings(id).DefaultModel; m != "" {
			models[id] = m
		}
	}

	return providers.GatewayConfig{
		Credentials:      c.Credentials(),
		DefaultModels:    models,
		DefaultProvider:  c.Gateway.DefaultProvider,
		RequestTimeout:   c.Gateway.RequestTimeout,
		CatalogTTL:       c.Gateway.CatalogCacheTTL,
		CatalogCacheSize: c.Gateway.CatalogCacheSize,
		Transport: providers.Options{
			Timeout: c.Gateway.RequestTimeout,
		},
	}
}
