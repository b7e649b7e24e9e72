package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers
const (
	DriverMemory   = "memory"
	DriverSupabase = "supabase"
	DriverDynamoDB = "dynamodb"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress   string        `yaml:"server_address"`
	Environment     string        `yaml:"environment"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Editor core
	Autosave AutosaveConfig `yaml:"autosave"`
	History  HistoryConfig  `yaml:"history"`
	Session  SessionConfig  `yaml:"session"`
	Graph    GraphConfig    `yaml:"graph"`

	// Persistence
	Store    StoreConfig    `yaml:"store"`
	Supabase SupabaseConfig `yaml:"supabase"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`

	// Save events
	Events EventsConfig `yaml:"events"`

	// Authentication
	Auth AuthConfig `yaml:"auth"`

	// HTTP
	CORS CORSConfig `yaml:"cors"`

	// Observability
	EnableMetrics bool          `yaml:"enable_metrics"`
	Tracing       TracingConfig `yaml:"tracing"`

	// ConfigFile is the YAML overlay this configuration was read from.
	ConfigFile string `yaml:"-"`
}

// AutosaveConfig controls the debounced save.
type AutosaveConfig struct {
	Delay time.Duration `yaml:"delay"`
}

// HistoryConfig controls undo history.
type HistoryConfig struct {
	Limit int `yaml:"limit"`
}

// SessionConfig controls editor session lifetime.
type SessionConfig struct {
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
	MaxSockets      int           `yaml:"max_sockets"`
}

// GraphConfig controls request validation of graph payloads.
type GraphConfig struct {
	StrictValidation bool `yaml:"strict_validation"`
}

// StoreConfig selects the project store.
type StoreConfig struct {
	Driver         string        `yaml:"driver"`
	CircuitBreaker bool          `yaml:"circuit_breaker"`
	Timeout        time.Duration `yaml:"timeout"`
	// SeedFile is a JSON array of projects loaded into the memory store.
	SeedFile string `yaml:"seed_file"`
}

// SupabaseConfig points at a Supabase project.
type SupabaseConfig struct {
	URL            string `yaml:"url"`
	ServiceRoleKey string `yaml:"service_role_key"`
	ProjectsTable  string `yaml:"projects_table"`
}

// DynamoDBConfig points at a DynamoDB table.
type DynamoDBConfig struct {
	Region   string `yaml:"region"`
	Table    string `yaml:"table"`
	Endpoint string `yaml:"endpoint"`
}

// EventsConfig controls publishing save events to EventBridge.
type EventsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BusName  string `yaml:"bus_name"`
	Source   string `yaml:"source"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
	Buffer   int    `yaml:"buffer"`
}

// AuthConfig controls bearer token verification.
type AuthConfig struct {
	Enabled            bool   `yaml:"enabled"`
	JWTSecret          string `yaml:"jwt_secret"`
	Issuer             string `yaml:"issuer"`
	Audience           string `yaml:"audience"`
	VerifyWithSupabase bool   `yaml:"verify_with_supabase"`
}

// CORSConfig lists allowed browser origins.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`
	Insecure   bool    `yaml:"insecure"`
	SampleRate float64 `yaml:"sample_rate"`
}

// Default returns the configuration used before any file or environment
// overrides are applied.
func Default() *Config {
	return &Config{
		ServerAddress:   ":8080",
		Environment:     "development",
		ShutdownTimeout: 30 * time.Second,
		LogLevel:        "info",
		Autosave:        AutosaveConfig{Delay: time.Second},
		History:         HistoryConfig{Limit: 50},
		Session: SessionConfig{
			IdleTimeout:     30 * time.Minute,
			JanitorInterval: time.Minute,
			MaxSockets:      10,
		},
		Graph: GraphConfig{StrictValidation: true},
		Store: StoreConfig{
			Driver:  DriverMemory,
			Timeout: 10 * time.Second,
		},
		Supabase:      SupabaseConfig{ProjectsTable: "projects"},
		DynamoDB:      DynamoDBConfig{Region: "us-west-2", Table: "mindmap-projects"},
		Events:        EventsConfig{BusName: "default", Source: "mindmap.editor", Buffer: 256},
		Auth:          AuthConfig{Audience: "authenticated"},
		CORS:          CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		EnableMetrics: true,
		Tracing: TracingConfig{
			Endpoint:   "localhost:4317",
			Insecure:   true,
			SampleRate: 1.0,
		},
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by CONFIG_FILE, and environment variables, in that order.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		cfg.ConfigFile = path
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is an alias for LoadConfig
func Load() (*Config, error) {
	return LoadConfig()
}

func applyEnv(cfg *Config) {
	cfg.ServerAddress = getEnv("SERVER_ADDRESS", cfg.ServerAddress)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.Autosave.Delay = getEnvDuration("AUTOSAVE_DELAY", cfg.Autosave.Delay)
	cfg.History.Limit = getEnvInt("HISTORY_LIMIT", cfg.History.Limit)
	cfg.Session.IdleTimeout = getEnvDuration("SESSION_IDLE_TIMEOUT", cfg.Session.IdleTimeout)
	cfg.Session.JanitorInterval = getEnvDuration("SESSION_JANITOR_INTERVAL", cfg.Session.JanitorInterval)
	cfg.Session.MaxSockets = getEnvInt("SESSION_MAX_SOCKETS", cfg.Session.MaxSockets)
	cfg.Graph.StrictValidation = getEnvBool("GRAPH_STRICT_VALIDATION", cfg.Graph.StrictValidation)

	cfg.Store.Driver = strings.ToLower(getEnv("STORE_DRIVER", cfg.Store.Driver))
	cfg.Store.CircuitBreaker = getEnvBool("STORE_CIRCUIT_BREAKER", cfg.Store.CircuitBreaker)
	cfg.Store.Timeout = getEnvDuration("STORE_TIMEOUT", cfg.Store.Timeout)
	cfg.Store.SeedFile = getEnv("STORE_SEED_FILE", cfg.Store.SeedFile)

	cfg.Supabase.URL = getEnv("SUPABASE_URL", cfg.Supabase.URL)
	cfg.Supabase.ServiceRoleKey = getEnv("SUPABASE_SERVICE_ROLE_KEY", cfg.Supabase.ServiceRoleKey)
	cfg.Supabase.ProjectsTable = getEnv("PROJECTS_TABLE", cfg.Supabase.ProjectsTable)

	cfg.DynamoDB.Region = getEnv("AWS_REGION", cfg.DynamoDB.Region)
	cfg.DynamoDB.Table = getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", cfg.DynamoDB.Table))
	cfg.DynamoDB.Endpoint = getEnv("DYNAMODB_ENDPOINT", cfg.DynamoDB.Endpoint)

	cfg.Events.Enabled = getEnvBool("ENABLE_EVENTS", cfg.Events.Enabled)
	cfg.Events.BusName = getEnv("EVENT_BUS_NAME", cfg.Events.BusName)
	cfg.Events.Source = getEnv("EVENT_SOURCE", cfg.Events.Source)
	cfg.Events.Region = getEnv("EVENTS_REGION", getEnv("AWS_REGION", cfg.Events.Region))
	cfg.Events.Endpoint = getEnv("EVENTBRIDGE_ENDPOINT", cfg.Events.Endpoint)
	cfg.Events.Buffer = getEnvInt("EVENT_BUFFER", cfg.Events.Buffer)

	cfg.Auth.Enabled = getEnvBool("ENABLE_AUTH", cfg.Auth.Enabled)
	cfg.Auth.JWTSecret = getEnv("SUPABASE_JWT_SECRET", getEnv("JWT_SECRET", cfg.Auth.JWTSecret))
	cfg.Auth.Issuer = getEnv("JWT_ISSUER", cfg.Auth.Issuer)
	cfg.Auth.Audience = getEnv("JWT_AUDIENCE", cfg.Auth.Audience)
	cfg.Auth.VerifyWithSupabase = getEnvBool("AUTH_VERIFY_WITH_SUPABASE", cfg.Auth.VerifyWithSupabase)

	cfg.CORS.AllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", cfg.CORS.AllowedOrigins)

	cfg.EnableMetrics = getEnvBool("ENABLE_METRICS", cfg.EnableMetrics)
	cfg.Tracing.Enabled = getEnvBool("ENABLE_TRACING", cfg.Tracing.Enabled)
	cfg.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.Insecure = getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Tracing.Insecure)
	cfg.Tracing.SampleRate = getEnvFloat("TRACE_SAMPLE_RATE", cfg.Tracing.SampleRate)
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	var errs []error

	if c.Autosave.Delay <= 0 {
		errs = append(errs, fmt.Errorf("autosave delay must be positive, got %s", c.Autosave.Delay))
	}
	if c.History.Limit <= 0 {
		errs = append(errs, fmt.Errorf("history limit must be positive, got %d", c.History.Limit))
	}
	if c.Session.IdleTimeout <= 0 {
		errs = append(errs, errors.New("session idle timeout must be positive"))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("trace sample rate must be within [0,1], got %v", c.Tracing.SampleRate))
	}

	switch c.Store.Driver {
	case DriverMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("memory store is not allowed in production"))
		}
	case DriverSupabase:
		if c.Supabase.URL == "" || c.Supabase.ServiceRoleKey == "" {
			errs = append(errs, errors.New("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required for the supabase store"))
		}
	case DriverDynamoDB:
		if c.DynamoDB.Table == "" {
			errs = append(errs, errors.New("DYNAMODB_TABLE is required for the dynamodb store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}

	if c.Events.Enabled && (c.Events.BusName == "" || c.Events.Source == "") {
		errs = append(errs, errors.New("EVENT_BUS_NAME and EVENT_SOURCE are required when events are enabled"))
	}

	if c.IsProduction() && !c.Auth.Enabled {
		errs = append(errs, errors.New("ENABLE_AUTH is required in production"))
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" && !c.Auth.VerifyWithSupabase {
		errs = append(errs, errors.New("JWT_SECRET or AUTH_VERIFY_WITH_SUPABASE is required when auth is enabled"))
	}
	if c.Auth.VerifyWithSupabase && (c.Supabase.URL == "" || c.Supabase.ServiceRoleKey == "") {
		errs = append(errs, errors.New("supabase credentials are required for AUTH_VERIFY_WITH_SUPABASE"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
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
	switch value {
	case "":
		return defaultValue
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
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

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("1.5s") or bare milliseconds ("1500").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}

// getEnvList splits a comma separated variable.
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
