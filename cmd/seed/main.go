// Command seed populates the configured stores with a demo social graph.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"chatgraph/internal/bootstrap"
	"chatgraph/internal/config"
	"chatgraph/internal/database"
	"chatgraph/internal/middleware"
	"chatgraph/internal/observability"
	"chatgraph/internal/seed"
)

func main() {
	opts := seed.DefaultOptions
	flag.IntVar(&opts.Users, "users", opts.Users, "number of users to create")
	flag.IntVar(&opts.FriendsPerUser, "friends", opts.FriendsPerUser, "friendships started per user")
	flag.IntVar(&opts.PendingRequests, "requests", opts.PendingRequests, "pending friend requests")
	flag.IntVar(&opts.Groups, "groups", opts.Groups, "group chats to create")
	flag.IntVar(&opts.MessagesPerRoom, "messages", opts.MessagesPerRoom, "messages per room")
	flag.Int64Var(&opts.Seed, "seed", 0, "random seed; 0 picks one")
	questionsOnly := flag.Bool("questions-only", false, "only upsert the question catalog")
	clean := flag.Bool("clean", false, "drop and recreate the relational schema first")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := middleware.InitLogger(observability.LogOptions{Level: cfg.LogLevel, Format: cfg.LogFormat, Env: cfg.Env})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	rt, err := bootstrap.InitRuntime(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize stores: %v", err)
	}
	defer func() { _ = rt.Close(context.Background()) }()

	if *clean {
		if err := database.DropSchema(ctx, rt.DB, cfg, false); err != nil {
			log.Fatalf("Clean failed: %v", err)
		}
		if err := database.Migrate(rt.DB); err != nil {
			log.Fatalf("Migrate failed: %v", err)
		}
	}

	stores := seed.Stores{Users: rt.Users, Relationships: rt.Relationships, Messages: rt.Messages}

	if *questionsOnly {
		questions, err := seed.Questions(ctx, rt.Relationships)
		if err != nil {
			log.Fatalf("Question seeding failed: %v", err)
		}
		logger.Info("questions seeded", "count", len(questions))
		return
	}

	seeder, err := seed.NewSeeder(stores, opts, logger)
	if err != nil {
		log.Fatalf("Invalid options: %v", err)
	}
	if _, err := seeder.Run(ctx); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	logger.Info("all seeded accounts share one password", "password", seed.DefaultPassword)
}
