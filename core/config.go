package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Memory provider names accepted by MemoryConfig.Provider
const (
	MemoryProviderInMemory = "inmemory"
	MemoryProviderRedis    = "redis"
	MemoryProviderSQLite   = "sqlite"
)

// Config holds all configuration options for the document router.
// It supports layered configuration priority:
//  1. Default values (lowest priority)
//  2. Config file named by DOCROUTER_CONFIG (JSON or YAML)
//  3. Environment variables
//  4. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithName("docrouter"),
//	    WithPort(8000),
//	    WithMemoryProvider("redis"),
//	    WithRedisURL("redis://localhost:6379"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	// Core configuration
	Name    string `json:"name" yaml:"name"`
	ID      string `json:"id" yaml:"id"`
	Port    int    `json:"port" yaml:"port"`
	Address string `json:"address" yaml:"address"`

	HTTP        HTTPConfig        `json:"http" yaml:"http"`
	Memory      MemoryConfig      `json:"memory" yaml:"memory"`
	Telemetry   TelemetryConfig   `json:"telemetry" yaml:"telemetry"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
	Development DevelopmentConfig `json:"development" yaml:"development"`
}

// HTTPConfig contains HTTP server configuration including timeouts, limits, and CORS settings.
type HTTPConfig struct {
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	MaxHeaderBytes  int           `json:"max_header_bytes" yaml:"max_header_bytes"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	HealthCheckPath string        `json:"health_check_path" yaml:"health_check_path"`
	// MaxUploadBytes caps request bodies for /process and /process/file
	MaxUploadBytes int64      `json:"max_upload_bytes" yaml:"max_upload_bytes"`
	CORS           CORSConfig `json:"cors" yaml:"cors"`
}

// CORSConfig contains Cross-Origin Resource Sharing (CORS) configuration.
// Supports wildcard domains (e.g., *.example.com) and wildcard ports (e.g., http://localhost:*).
type CORSConfig struct {
	Enabled          bool     `json:"enabled" yaml:"enabled"`
	AllowedOrigins   []string `json:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers" yaml:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers" yaml:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials" yaml:"allow_credentials"`
	MaxAge           int      `json:"max_age" yaml:"max_age"`
}

// MemoryConfig selects and configures the shared memory backend.
// RedisDB and Namespace only apply to the redis provider, SQLitePath only to sqlite.
type MemoryConfig struct {
	Provider   string `json:"provider" yaml:"provider"`
	RedisURL   string `json:"redis_url" yaml:"redis_url"`
	RedisDB    int    `json:"redis_db" yaml:"redis_db"`
	Namespace  string `json:"namespace" yaml:"namespace"`
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"`
	// ConnectAttempts bounds the retries used when opening the backend
	ConnectAttempts int `json:"connect_attempts" yaml:"connect_attempts"`
}

// TelemetryConfig contains OpenTelemetry tracing configuration.
// Exporter is "otlp" (gRPC, Endpoint required) or "stdout".
type TelemetryConfig struct {
	Enabled      bool    `json:"enabled" yaml:"enabled"`
	Exporter     string  `json:"exporter" yaml:"exporter"`
	Endpoint     string  `json:"endpoint" yaml:"endpoint"`
	ServiceName  string  `json:"service_name" yaml:"service_name"`
	SamplingRate float64 `json:"sampling_rate" yaml:"sampling_rate"`
	Insecure     bool    `json:"insecure" yaml:"insecure"`
}

// LoggingConfig contains logging configuration.
// Supports structured (json) and human-readable (text) formats.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	Output string `json:"output" yaml:"output"`
}

// DevelopmentConfig contains settings for local development.
//
// WARNING: Never enable development mode in production!
type DevelopmentConfig struct {
	Enabled      bool `json:"enabled" yaml:"enabled"`
	DebugLogging bool `json:"debug_logging" yaml:"debug_logging"`
}

// Option is a functional option for configuring the service.
// Options are applied in order and can return an error if the configuration is invalid.
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	cfg := &Config{
		Name:    "docrouter",
		Port:    8000,
		Address: "0.0.0.0",
		HTTP: HTTPConfig{
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 10 * time.Second,
			HealthCheckPath: "/health",
			MaxUploadBytes:  10 << 20, // 10MB
			CORS: CORSConfig{
				Enabled:          true,
				AllowedOrigins:   []string{"*"},
				AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"Content-Type", "Authorization"},
				AllowCredentials: false,
				MaxAge:           86400,
			},
		},
		Memory: MemoryConfig{
			Provider:        MemoryProviderInMemory,
			RedisDB:         RedisDBSharedMemory,
			Namespace:       DefaultMemoryNamespace,
			SQLitePath:      "docrouter.db",
			ConnectAttempts: 3,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			Exporter:     "otlp",
			SamplingRate: 1.0,
			Insecure:     true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}

	cfg.DetectEnvironment()

	return cfg
}

// DetectEnvironment adjusts logging defaults for the detected environment.
//   - Kubernetes (KUBERNETES_SERVICE_HOST set): JSON logs
//   - Local: text logs and development mode unless DOCROUTER_DEV_MODE is set explicitly
func (c *Config) DetectEnvironment() {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		c.Logging.Format = "json"
		return
	}
	if os.Getenv(EnvDevMode) == "" {
		c.Development.Enabled = true
		c.Logging.Format = "text"
	}
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables take precedence over defaults and config files but are
// overridden by functional options.
//
// Variable naming convention:
//   - Service-specific: DOCROUTER_<SETTING>
//   - Standard variables: PORT, REDIS_URL, OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_SERVICE_NAME
//
// Returns an error if environment variables contain invalid values.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("DOCROUTER_NAME"); v != "" {
		c.Name = v
	}
	if v := os.Getenv("DOCROUTER_ID"); v != "" {
		c.ID = v
	}
	if v := firstEnv(EnvPort, "PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", v, ErrInvalidConfiguration)
		}
		c.Port = port
	}
	if v := os.Getenv("DOCROUTER_ADDRESS"); v != "" {
		c.Address = v
	}

	// HTTP settings
	if err := envDuration("DOCROUTER_HTTP_READ_TIMEOUT", &c.HTTP.ReadTimeout); err != nil {
		return err
	}
	if err := envDuration("DOCROUTER_HTTP_WRITE_TIMEOUT", &c.HTTP.WriteTimeout); err != nil {
		return err
	}
	if err := envDuration("DOCROUTER_HTTP_SHUTDOWN_TIMEOUT", &c.HTTP.ShutdownTimeout); err != nil {
		return err
	}
	if v := os.Getenv("DOCROUTER_MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid upload limit %q: %w", v, ErrInvalidConfiguration)
		}
		c.HTTP.MaxUploadBytes = n
	}

	// CORS settings
	if v := os.Getenv("DOCROUTER_CORS_ENABLED"); v != "" {
		c.HTTP.CORS.Enabled = parseBool(v)
	}
	if v := os.Getenv("DOCROUTER_CORS_ORIGINS"); v != "" {
		c.HTTP.CORS.AllowedOrigins = parseStringList(v)
	}
	if v := os.Getenv("DOCROUTER_CORS_CREDENTIALS"); v != "" {
		c.HTTP.CORS.AllowCredentials = parseBool(v)
	}

	// Memory settings
	if v := os.Getenv(EnvMemoryProvider); v != "" {
		c.Memory.Provider = v
	}
	if v := firstEnv("DOCROUTER_REDIS_URL", EnvRedisURL); v != "" {
		c.Memory.RedisURL = v
	}
	if v := os.Getenv("DOCROUTER_REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid redis db %q: %w", v, ErrInvalidConfiguration)
		}
		c.Memory.RedisDB = db
	}
	if v := os.Getenv("DOCROUTER_MEMORY_NAMESPACE"); v != "" {
		c.Memory.Namespace = v
	}
	if v := os.Getenv("DOCROUTER_SQLITE_PATH"); v != "" {
		c.Memory.SQLitePath = v
	}

	// Telemetry settings
	if v := os.Getenv("DOCROUTER_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("DOCROUTER_TELEMETRY_EXPORTER"); v != "" {
		c.Telemetry.Exporter = v
	}
	if v := firstEnv("DOCROUTER_TELEMETRY_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
	if v := firstEnv("DOCROUTER_TELEMETRY_SERVICE_NAME", "OTEL_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	}
	if v := os.Getenv("DOCROUTER_TELEMETRY_SAMPLING_RATE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid sampling rate %q: %w", v, ErrInvalidConfiguration)
		}
		c.Telemetry.SamplingRate = rate
	}

	// Logging settings
	if v := os.Getenv("DOCROUTER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DOCROUTER_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	// Development settings
	if v := os.Getenv(EnvDevMode); v != "" {
		c.Development.Enabled = parseBool(v)
	}
	if v := os.Getenv("DOCROUTER_DEBUG"); v != "" {
		c.Development.DebugLogging = parseBool(v)
	}

	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file.
// Durations in YAML files use Go duration strings ("30s"); JSON files use nanoseconds.
//
// Example YAML:
//
//	name: docrouter
//	port: 8000
//	memory:
//	  provider: sqlite
//	  sqlite_path: /var/lib/docrouter/memory.db
func (c *Config) LoadFromFile(path string) error {
	cleanPath := filepath.Clean(path)

	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %s: %w", ext, ErrInvalidConfiguration)
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 -- operator-supplied path
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse JSON config file: %v: %w", err, ErrInvalidConfiguration)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config file: %v: %w", err, ErrInvalidConfiguration)
		}
	}

	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
//
// Validation rules:
//   - Port must be between 1 and 65535
//   - Service name is required
//   - Memory provider must be inmemory, redis or sqlite, with its connection setting present
//   - Telemetry exporter must be otlp (with endpoint) or stdout when telemetry is enabled
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("invalid port: %d", c.Port),
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.Name == "" {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "service name is required",
			Err:     ErrMissingConfiguration,
		}
	}

	switch c.Memory.Provider {
	case MemoryProviderInMemory:
	case MemoryProviderRedis:
		if c.Memory.RedisURL == "" {
			return &FrameworkError{
				Op:      "Config.Validate",
				Kind:    "config",
				Message: "redis URL is required for the redis memory provider",
				Err:     ErrMissingConfiguration,
			}
		}
	case MemoryProviderSQLite:
		if c.Memory.SQLitePath == "" {
			return &FrameworkError{
				Op:      "Config.Validate",
				Kind:    "config",
				Message: "sqlite path is required for the sqlite memory provider",
				Err:     ErrMissingConfiguration,
			}
		}
	default:
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("unknown memory provider: %s", c.Memory.Provider),
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.Telemetry.Enabled {
		switch c.Telemetry.Exporter {
		case "stdout":
		case "otlp":
			if c.Telemetry.Endpoint == "" {
				return &FrameworkError{
					Op:      "Config.Validate",
					Kind:    "config",
					Message: "telemetry endpoint is required for the otlp exporter",
					Err:     ErrMissingConfiguration,
				}
			}
		default:
			return &FrameworkError{
				Op:      "Config.Validate",
				Kind:    "config",
				Message: fmt.Sprintf("unknown telemetry exporter: %s", c.Telemetry.Exporter),
				Err:     ErrInvalidConfiguration,
			}
		}
	}

	if c.HTTP.MaxUploadBytes <= 0 {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("invalid upload limit: %d", c.HTTP.MaxUploadBytes),
			Err:     ErrInvalidConfiguration,
		}
	}

	return nil
}

// Helper functions

// parseStringList splits a comma-separated string into a slice of strings.
// Whitespace is trimmed from each element, and empty strings are filtered out.
func parseStringList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseBool accepts "true", "1", "yes", "on" (case-insensitive) as true.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

func envDuration(name string, dst *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid duration for %s %q: %w", name, v, ErrInvalidConfiguration)
	}
	*dst = d
	return nil
}

// Functional Options

// WithName sets the service name used in logs, traces and the health endpoint.
func WithName(name string) Option {
	return func(c *Config) error {
		c.Name = name
		return nil
	}
}

// WithPort sets the HTTP server port.
// Returns an error if the port is outside 1-65535.
func WithPort(port int) Option {
	return func(c *Config) error {
		if port < 1 || port > 65535 {
			return &FrameworkError{
				Op:      "WithPort",
				Kind:    "config",
				Message: fmt.Sprintf("invalid port: %d", port),
				Err:     ErrInvalidConfiguration,
			}
		}
		c.Port = port
		return nil
	}
}

// WithAddress sets the bind address
func WithAddress(address string) Option {
	return func(c *Config) error {
		c.Address = address
		return nil
	}
}

// WithCORS enables CORS for the given origins.
func WithCORS(origins []string, credentials bool) Option {
	return func(c *Config) error {
		c.HTTP.CORS.Enabled = len(origins) > 0
		c.HTTP.CORS.AllowedOrigins = origins
		c.HTTP.CORS.AllowCredentials = credentials
		return nil
	}
}

// WithMaxUploadBytes caps request body size
func WithMaxUploadBytes(n int64) Option {
	return func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("upload limit must be positive: %w", ErrInvalidConfiguration)
		}
		c.HTTP.MaxUploadBytes = n
		return nil
	}
}

// WithMemoryProvider selects the shared memory backend ("inmemory", "redis", "sqlite").
func WithMemoryProvider(provider string) Option {
	return func(c *Config) error {
		c.Memory.Provider = provider
		return nil
	}
}

// WithRedisURL sets the Redis URL for the redis memory provider
func WithRedisURL(url string) Option {
	return func(c *Config) error {
		c.Memory.RedisURL = url
		return nil
	}
}

// WithSQLitePath sets the database file for the sqlite memory provider
func WithSQLitePath(path string) Option {
	return func(c *Config) error {
		c.Memory.SQLitePath = path
		return nil
	}
}

// WithTelemetry enables tracing with the given exporter and endpoint.
func WithTelemetry(exporter, endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = true
		c.Telemetry.Exporter = exporter
		c.Telemetry.Endpoint = endpoint
		return nil
	}
}

// WithLogLevel sets the log level (debug, info, warn, error)
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogFormat sets the log format (json, text)
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Logging.Format = format
		return nil
	}
}

// WithConfigFile loads a JSON or YAML file at option time, so it overrides
// environment variables and earlier options.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}

// WithDevelopmentMode toggles development defaults: text logs at debug level.
//
// WARNING: Never enable in production!
func WithDevelopmentMode(enabled bool) Option {
	return func(c *Config) error {
		c.Development.Enabled = enabled
		if enabled {
			c.Logging.Format = "text"
			c.Logging.Level = "debug"
		}
		return nil
	}
}

// NewConfig creates a new configuration with the provided options.
// Configuration is applied in the following order:
//  1. Default values from DefaultConfig()
//  2. The file named by DOCROUTER_CONFIG, if set
//  3. Environment variables via LoadFromEnv()
//  4. Functional options (highest priority)
//  5. Validation via Validate()
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
