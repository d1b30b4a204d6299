// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Store backend and fan-out selectors.
const (
	BackendSQL   = "sql"
	BackendNeo4j = "neo4j"
	BackendMongo = "mongo"

	FanoutAddressed = "addressed"
	FanoutBroadcast = "broadcast"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret string        `mapstructure:"JWT_SECRET"`
	JWTTTL    time.Duration `mapstructure:"JWT_TTL"`
	Port      string        `mapstructure:"PORT"`
	Env       string        `mapstructure:"APP_ENV"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
	LogFile   string `mapstructure:"LOG_FILE"`

	DBDriver   string `mapstructure:"DB_DRIVER"`
	DBDSN      string `mapstructure:"DB_DSN"`
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`

	DBMaxOpenConns           int `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns           int `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes int `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`

	RedisURL string `mapstructure:"REDIS_URL"`

	MongoURI      string `mapstructure:"MONGO_URI"`
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`

	Neo4jURI      string `mapstructure:"NEO4J_URI"`
	Neo4jUser     string `mapstructure:"NEO4J_USER"`
	Neo4jPassword string `mapstructure:"NEO4J_PASSWORD"`
	Neo4jDatabase string `mapstructure:"NEO4J_DATABASE"`

	// GraphBackend selects the relationship store: "sql" or "neo4j".
	GraphBackend string `mapstructure:"GRAPH_BACKEND"`
	// MessageBackend selects the message store: "sql" or "mongo".
	MessageBackend string `mapstructure:"MESSAGE_BACKEND"`
	// EventFanout selects broker topic keying: "addressed" or "broadcast".
	EventFanout string `mapstructure:"EVENT_FANOUT"`

	AllowedOrigins   string        `mapstructure:"ALLOWED_ORIGINS"`
	FrontendURL      string        `mapstructure:"FRONTEND_URL"`
	ResetTokenTTL    time.Duration `mapstructure:"RESET_TOKEN_TTL"`
	FeatureFlags     string        `mapstructure:"FEATURE_FLAGS"`
	RateLimitEnabled bool          `mapstructure:"RATE_LIMIT_ENABLED"`

	TracingEnabled bool   `mapstructure:"TRACING_ENABLED"`
	OTelExporter   string `mapstructure:"OTEL_EXPORTER"`
	OTelEndpoint   string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

var configKeys = []string{
	"JWT_SECRET", "JWT_TTL", "PORT", "APP_ENV", "LOG_LEVEL", "LOG_FORMAT", "LOG_FILE",
	"DB_DRIVER", "DB_DSN", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
	"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME_MINUTES",
	"REDIS_URL", "MONGO_URI", "MONGO_DATABASE",
	"NEO4J_URI", "NEO4J_USER", "NEO4J_PASSWORD", "NEO4J_DATABASE",
	"GRAPH_BACKEND", "MESSAGE_BACKEND", "EVENT_FANOUT",
	"ALLOWED_ORIGINS", "FRONTEND_URL", "RESET_TOKEN_TTL", "FEATURE_FLAGS", "RATE_LIMIT_ENABLED",
	"TRACING_ENABLED", "OTEL_EXPORTER", "OTEL_EXPORTER_OTLP_ENDPOINT",
}

// LoadConfig loads application configuration from .env, config files and environment variables.
func LoadConfig() (*Config, error) {
	// .env is optional and never overrides variables already set.
	_ = godotenv.Load()

	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("/app")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()
	for _, key := range configKeys {
		_ = viper.BindEnv(key)
	}

	// The base file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		slog.Info("loaded profile-specific configuration", slog.String("file", "config."+env+".yml"))
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8375")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("JWT_SECRET", defaultJWTSecret)
	viper.SetDefault("JWT_TTL", 7*24*time.Hour)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "")
	viper.SetDefault("DB_DRIVER", "postgres")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "chatgraph")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 10)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30)
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	viper.SetDefault("MONGO_DATABASE", "chatgraph")
	viper.SetDefault("NEO4J_URI", "neo4j://localhost:7687")
	viper.SetDefault("NEO4J_USER", "neo4j")
	viper.SetDefault("NEO4J_PASSWORD", "")
	viper.SetDefault("NEO4J_DATABASE", "neo4j")
	viper.SetDefault("GRAPH_BACKEND", BackendSQL)
	viper.SetDefault("MESSAGE_BACKEND", BackendSQL)
	viper.SetDefault("EVENT_FANOUT", FanoutAddressed)
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")
	viper.SetDefault("FRONTEND_URL", "http://localhost:3000")
	viper.SetDefault("RESET_TOKEN_TTL", 10*time.Minute)
	viper.SetDefault("FEATURE_FLAGS", "friend_suggestions=on")
	viper.SetDefault("RATE_LIMIT_ENABLED", true)
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("OTEL_EXPORTER", "stdout")
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.GraphBackend = strings.ToLower(strings.TrimSpace(c.GraphBackend))
	c.MessageBackend = strings.ToLower(strings.TrimSpace(c.MessageBackend))
	c.EventFanout = strings.ToLower(strings.TrimSpace(c.EventFanout))
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// IsDevOrTest reports whether relaxed development behavior applies.
func (c *Config) IsDevOrTest() bool {
	return c.Env == "development" || c.Env == "test" || c.Env == ""
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	switch c.DBDriver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER %q is not supported", c.DBDriver)
	}
	switch c.GraphBackend {
	case BackendSQL, BackendNeo4j:
	default:
		return fmt.Errorf("GRAPH_BACKEND %q is not supported", c.GraphBackend)
	}
	switch c.MessageBackend {
	case BackendSQL, BackendMongo:
	default:
		return fmt.Errorf("MESSAGE_BACKEND %q is not supported", c.MessageBackend)
	}
	switch c.EventFanout {
	case FanoutAddressed, FanoutBroadcast:
	default:
		return fmt.Errorf("EVENT_FANOUT %q is not supported", c.EventFanout)
	}
	if c.GraphBackend == BackendNeo4j && c.Neo4jURI == "" {
		return errors.New("NEO4J_URI is required when GRAPH_BACKEND=neo4j")
	}
	if c.MessageBackend == BackendMongo && (c.MongoURI == "" || c.MongoDatabase == "") {
		return errors.New("MONGO_URI and MONGO_DATABASE are required when MESSAGE_BACKEND=mongo")
	}

	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBDriver != "sqlite" && (c.DBPassword == "password" || c.DBPassword == "") {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBDriver == "postgres" && (c.DBSSLMode == "disable" || c.DBSSLMode == "") {
			return errors.New("DB_SSLMODE must not be 'disable' in production")
		}
		if c.AllowedOrigins == "*" {
			slog.Warn("ALLOWED_ORIGINS is set to '*' in production")
		}
	} else if len(c.JWTSecret) < 32 {
		slog.Warn("JWT_SECRET is shorter than 32 characters")
	}

	return nil
}
