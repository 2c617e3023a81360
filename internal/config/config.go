package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kode4food/flowrun/internal/store"
	"github.com/kode4food/flowrun/pkg/api"
)

type (
	// Config holds configuration settings for the flowrun server
	Config struct {
		// API Server
		APIHost  string
		APIPort  int
		LogLevel string

		// Run Store & Archiving
		Store            store.RedisConfig
		ArchiveBucketURL string
		ArchivePrefix    string

		// Tasks
		TaskTimeout    int64
		HTTPTasks      map[api.TaskName]string
		ScriptTasksDir string
		SampleTasks    bool

		ShutdownTimeout time.Duration
	}
)

const (
	DefaultTaskTimeout     = 30_000
	DefaultShutdownTimeout = 10 * time.Second

	DefaultAPIPort = 8080
	DefaultAPIHost = "0.0.0.0"
	MaxTCPPort     = 65535
	DefaultRedisDB = 0
	MaxRedisDB     = 15

	DefaultRedisEndpoint = "localhost:6379"
	DefaultRedisPrefix   = "flowrun"
	DefaultArchivePrefix = "flowrun"

	MaxTaskTimeout = 24 * 60 * 60 * 1000 // 1 day in ms
)

var (
	ErrInvalidAPIPort         = errors.New("invalid API port")
	ErrInvalidTaskTimeout     = errors.New("task timeout must be positive")
	ErrInvalidShutdownTimeout = errors.New(
		"shutdown timeout must be positive",
	)
	ErrInvalidRetention   = errors.New("run retention cannot be negative")
	ErrInvalidHTTPTasks   = errors.New("invalid HTTP task list")
	ErrInvalidRedisAddr   = errors.New("redis address is required")
	ErrInvalidDuration    = errors.New("invalid duration")
	ErrInvalidBool        = errors.New("invalid boolean")
	ErrInvalidHTTPTaskURL = errors.New("HTTP task endpoint is required")
)

// NewDefaultConfig creates a configuration with sensible defaults for the
// server, the Run Store, and the task adapters
func NewDefaultConfig() *Config {
	return &Config{
		APIPort: DefaultAPIPort,
		APIHost: DefaultAPIHost,
		Store: store.RedisConfig{
			Addr:     DefaultRedisEndpoint,
			Password: "",
			DB:       DefaultRedisDB,
			Prefix:   DefaultRedisPrefix,
		},
		ArchivePrefix:   DefaultArchivePrefix,
		TaskTimeout:     DefaultTaskTimeout,
		HTTPTasks:       map[api.TaskName]string{},
		SampleTasks:     true,
		ShutdownTimeout: DefaultShutdownTimeout,
		LogLevel:        "info",
	}
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed
func (c *Config) LoadFromEnv() error {
	if apiHost := os.Getenv("API_HOST"); apiHost != "" {
		c.APIHost = apiHost
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.LogLevel = logLevel
	}
	if bucketURL := os.Getenv("ARCHIVE_BUCKET_URL"); bucketURL != "" {
		c.ArchiveBucketURL = bucketURL
	}
	if prefix := os.Getenv("ARCHIVE_PREFIX"); prefix != "" {
		c.ArchivePrefix = prefix
	}
	if dir := os.Getenv("SCRIPT_TASKS_DIR"); dir != "" {
		c.ScriptTasksDir = dir
	}

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}
	if err := loadEnvInt(
		"TASK_TIMEOUT", &c.TaskTimeout, 0, MaxTaskTimeout,
	); err != nil {
		return err
	}
	if err := loadEnvDuration(
		"SHUTDOWN_TIMEOUT", &c.ShutdownTimeout,
	); err != nil {
		return err
	}
	if err := loadEnvBool("SAMPLE_TASKS", &c.SampleTasks); err != nil {
		return err
	}
	if c.HTTPTasks == nil {
		c.HTTPTasks = map[api.TaskName]string{}
	}
	if err := loadHTTPTasks("HTTP_TASKS", c.HTTPTasks); err != nil {
		return err
	}

	return LoadStoreConfigFromEnv(&c.Store)
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}

	if c.TaskTimeout <= 0 {
		return ErrInvalidTaskTimeout
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	if c.Store.Addr == "" {
		return ErrInvalidRedisAddr
	}

	if c.Store.Retention < 0 {
		return ErrInvalidRetention
	}

	for name, endpoint := range c.HTTPTasks {
		if name == "" || name.IsEnd() {
			return fmt.Errorf("%w: task name %q", ErrInvalidHTTPTasks, name)
		}
		if endpoint == "" {
			return fmt.Errorf("%w: %s", ErrInvalidHTTPTaskURL, name)
		}
	}

	return nil
}

// TaskTimeoutDuration returns the task timeout as a time.Duration
func (c *Config) TaskTimeoutDuration() time.Duration {
	return time.Duration(c.TaskTimeout) * time.Millisecond
}

// Address returns the host:port the API server listens on
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}

// LoadStoreConfigFromEnv loads Redis Run Store configuration from the
// REDIS_* and RUN_RETENTION environment variables
func LoadStoreConfigFromEnv(s *store.RedisConfig) error {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		s.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		s.Password = password
	}
	if prefix := os.Getenv("REDIS_PREFIX"); prefix != "" {
		s.Prefix = prefix
	}
	if err := loadEnvInt("REDIS_DB", &s.DB, -1, MaxRedisDB); err != nil {
		return err
	}
	return loadEnvDuration("RUN_RETENTION", &s.Retention)
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max]. Returns an error if
// the value cannot be parsed or falls outside the valid range
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, tv, min+1, max)
	}
	*dst = tv
	return nil
}

func loadEnvDuration(key string, dst *time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%w: %s: %q", ErrInvalidDuration, key, s)
	}
	*dst = d
	return nil
}

func loadEnvBool(key string, dst *bool) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("%w: %s: %q", ErrInvalidBool, key, s)
	}
	*dst = b
	return nil
}

// loadHTTPTasks parses a comma-separated list of name=url pairs
func loadHTTPTasks(key string, dst map[api.TaskName]string) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, endpoint, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		endpoint = strings.TrimSpace(endpoint)
		if !ok || name == "" || endpoint == "" {
			return fmt.Errorf("%w: %s: %q", ErrInvalidHTTPTasks, key, pair)
		}
		dst[api.TaskName(name)] = endpoint
	}
	return nil
}
