package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:            "development",
		Port:           "8080",
		JWTSecret:      "secure-secret-at-least-32-chars-long",
		DBDriver:       "postgres",
		DBPassword:     "secure-password",
		DBSSLMode:      "require",
		GraphBackend:   BackendSQL,
		MessageBackend: BackendSQL,
		EventFanout:    FanoutAddressed,
	}
}

func TestConfig_ValidateSSLMode(t *testing.T) {
	tests := []struct {
		name        string
		env         string
		sslMode     string
		expectError bool
	}{
		{"Production with empty SSL mode", "production", "", true},
		{"Production with disable SSL mode", "production", "disable", true},
		{"Production with require SSL mode", "production", "require", false},
		{"Prod with verify-full SSL mode", "prod", "verify-full", false},
		{"Development with disable SSL mode", "development", "disable", false},
		{"Test with empty SSL mode", "test", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			c.Env = tt.env
			c.DBSSLMode = tt.sslMode

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateBackends(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"neo4j graph", func(c *Config) { c.GraphBackend = BackendNeo4j; c.Neo4jURI = "neo4j://db:7687" }, true},
		{"neo4j without uri", func(c *Config) { c.GraphBackend = BackendNeo4j }, false},
		{"unknown graph", func(c *Config) { c.GraphBackend = "dgraph" }, false},
		{"mongo messages", func(c *Config) {
			c.MessageBackend = BackendMongo
			c.MongoURI = "mongodb://db:27017"
			c.MongoDatabase = "chat"
		}, true},
		{"mongo without database", func(c *Config) { c.MessageBackend = BackendMongo; c.MongoURI = "mongodb://db" }, false},
		{"broadcast fanout", func(c *Config) { c.EventFanout = FanoutBroadcast }, true},
		{"unknown fanout", func(c *Config) { c.EventFanout = "gossip" }, false},
		{"mysql driver", func(c *Config) { c.DBDriver = "mysql" }, true},
		{"unknown driver", func(c *Config) { c.DBDriver = "oracle" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestConfig_ProductionRejectsDefaultSecret(t *testing.T) {
	c := validConfig()
	c.Env = "production"
	c.JWTSecret = defaultJWTSecret
	assert.Error(t, c.Validate())
}

func TestLoadConfig_EnvOverridesAndNormalization(t *testing.T) {
	defer viper.Reset()

	t.Setenv("APP_ENV", "test")
	t.Setenv("GRAPH_BACKEND", "  SQL ")
	t.Setenv("EVENT_FANOUT", "Broadcast")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("RESET_TOKEN_TTL", "90s")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "test", c.Env)
	assert.Equal(t, BackendSQL, c.GraphBackend)
	assert.Equal(t, FanoutBroadcast, c.EventFanout)
	assert.Equal(t, "sqlite", c.DBDriver)
	assert.Equal(t, 90*time.Second, c.ResetTokenTTL)
	assert.Equal(t, BackendSQL, c.MessageBackend)
	assert.True(t, c.IsDevOrTest())
}
