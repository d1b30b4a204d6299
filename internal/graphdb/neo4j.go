// Package graphdb connects to the Neo4j relationship store.
package graphdb

import (
	"context"
	"fmt"
	"time"

	"chatgraph/internal/config"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Client owns the driver and the database name every session targets.
type Client struct {
	Driver   neo4j.DriverWithContext
	Database string
}

// constraints are applied idempotently at startup.
var constraints = []string{
	"CREATE CONSTRAINT user_id IF NOT EXISTS FOR (u:User) REQUIRE u.userId IS UNIQUE",
	"CREATE CONSTRAINT chatroom_id IF NOT EXISTS FOR (r:ChatRoom) REQUIRE r.id IS UNIQUE",
	"CREATE CONSTRAINT chatroom_private_key IF NOT EXISTS FOR (r:ChatRoom) REQUIRE r.privateKey IS UNIQUE",
	"CREATE CONSTRAINT question_id IF NOT EXISTS FOR (q:Question) REQUIRE q.id IS UNIQUE",
	"CREATE CONSTRAINT option_id IF NOT EXISTS FOR (o:Option) REQUIRE o.id IS UNIQUE",
}

// Connect opens the driver, verifies connectivity and ensures constraints.
func Connect(ctx context.Context, cfg *config.Config) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to reach neo4j: %w", err)
	}

	c := &Client{Driver: driver, Database: cfg.Neo4jDatabase}
	if err := c.ensureConstraints(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	return c, nil
}

func (c *Client) ensureConstraints(ctx context.Context) error {
	session := c.Session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, stmt := range constraints {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("failed to apply neo4j constraint: %w", err)
		}
	}
	return nil
}

// Session opens a session on the configured database. Callers must Close it.
func (c *Client) Session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return c.Driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: c.Database})
}

// Ping verifies the driver can still reach the server.
func (c *Client) Ping(ctx context.Context) error {
	return c.Driver.VerifyConnectivity(ctx)
}

// Close releases the driver.
func (c *Client) Close(ctx context.Context) error {
	return c.Driver.Close(ctx)
}
