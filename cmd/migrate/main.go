// Command migrate runs schema operations for the relational store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"chatgraph/internal/config"
	"chatgraph/internal/database"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func usage() error {
	return fmt.Errorf("usage: go run ./cmd/migrate [-force] <up|status|drop>")
}

func run() error {
	force := flag.Bool("force", false, "allow drop in production-like environments")
	flag.Parse()
	if flag.NArg() < 1 {
		return usage()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(flag.Arg(0))) {
	case "up":
		if err := database.Migrate(db); err != nil {
			return err
		}
		log.Println("schema applied")
	case "status":
		status, err := database.GetSchemaStatus(ctx, db, cfg)
		if err != nil {
			return fmt.Errorf("schema status failed: %w", err)
		}
		log.Printf("driver=%s env=%s tables=%d missing=%d", status.Driver, status.Environment, len(status.Tables), len(status.Missing()))
		for _, name := range status.Missing() {
			log.Printf("missing: %s", name)
		}
	case "drop":
		if err := database.DropSchema(ctx, db, cfg, *force); err != nil {
			return err
		}
		log.Println("schema dropped")
	default:
		return usage()
	}

	return nil
}
