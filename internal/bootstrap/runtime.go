// Package bootstrap connects the stores selected by configuration and builds
// the repositories the server runs on.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"chatgraph/internal/cache"
	"chatgraph/internal/config"
	"chatgraph/internal/database"
	"chatgraph/internal/docstore"
	"chatgraph/internal/graphdb"
	"chatgraph/internal/repository"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Runtime holds the live store connections and the repositories built on
// them. Graph and Mongo are nil unless their backend is selected.
type Runtime struct {
	DB    *gorm.DB
	Redis *redis.Client
	Graph *graphdb.Client
	Mongo *docstore.MongoClient

	Users         repository.UserRepository
	Relationships repository.RelationshipRepository
	Messages      repository.MessageRepository
	ResetTokens   repository.ResetTokenStore
}

// Check is a named readiness probe.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// InitRuntime connects SQL and Redis, then the graph and document stores when
// configuration selects them. Everything opened so far is closed on failure.
func InitRuntime(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	rt := &Runtime{}
	ok := false
	defer func() {
		if !ok {
			_ = rt.Close(context.WithoutCancel(ctx))
		}
	}()

	var err error

	if rt.DB, err = database.Connect(cfg); err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if rt.Redis, err = cache.InitRedis(cfg.RedisURL); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	rt.Users = repository.NewUserRepository(rt.DB)
	rt.ResetTokens = repository.NewResetTokenStore(rt.Redis)

	switch cfg.GraphBackend {
	case config.BackendNeo4j:
		if rt.Graph, err = graphdb.Connect(ctx, cfg); err != nil {
			return nil, err
		}
		rt.Relationships = repository.NewNeo4jRelationshipRepository(rt.Graph)
	default:
		rt.Relationships = repository.NewSQLRelationshipRepository(rt.DB)
	}

	switch cfg.MessageBackend {
	case config.BackendMongo:
		if rt.Mongo, err = docstore.NewMongoConnection(cfg); err != nil {
			return nil, err
		}
		if err = rt.Mongo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo index creation failed: %w", err)
		}
		rt.Messages = repository.NewMongoMessageRepository(rt.Mongo.Messages())
	default:
		rt.Messages = repository.NewSQLMessageRepository(rt.DB)
	}

	slog.Info("runtime initialized",
		slog.String("graph_backend", backendName(cfg.GraphBackend)),
		slog.String("message_backend", backendName(cfg.MessageBackend)),
		slog.String("event_fanout", cfg.EventFanout),
	)
	ok = true
	return rt, nil
}

func backendName(b string) string {
	if b == "" {
		return config.BackendSQL
	}
	return b
}

// Checks returns a readiness probe for every connected store.
func (rt *Runtime) Checks() []Check {
	var checks []Check
	if rt.DB != nil {
		checks = append(checks, Check{Name: "database", Ping: func(ctx context.Context) error {
			return database.Ping(ctx, rt.DB)
		}})
	}
	if rt.Redis != nil {
		checks = append(checks, Check{Name: "redis", Ping: func(ctx context.Context) error {
			return rt.Redis.Ping(ctx).Err()
		}})
	}
	if rt.Graph != nil {
		checks = append(checks, Check{Name: "neo4j", Ping: rt.Graph.Ping})
	}
	if rt.Mongo != nil {
		checks = append(checks, Check{Name: "mongo", Ping: rt.Mongo.Ping})
	}
	return checks
}

// Close releases every connection that was opened.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Mongo != nil {
		errs = append(errs, rt.Mongo.Close(ctx))
	}
	if rt.Graph != nil {
		errs = append(errs, rt.Graph.Close(ctx))
	}
	if rt.Redis != nil {
		errs = append(errs, rt.Redis.Close())
	}
	if rt.DB != nil {
		if sqlDB, err := rt.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
