package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"chatgraph/internal/config"
	"chatgraph/internal/middleware"

	"gorm.io/gorm"
)

// TableStatus reports whether one model's table exists.
type TableStatus struct {
	Table   string
	Present bool
}

// SchemaStatus summarizes the relational schema for cmd/migrate.
type SchemaStatus struct {
	Driver      string
	Environment string
	Tables      []TableStatus
}

// Missing lists the tables that have not been created yet.
func (s *SchemaStatus) Missing() []string {
	var out []string
	for _, t := range s.Tables {
		if !t.Present {
			out = append(out, t.Table)
		}
	}
	return out
}

func isProdLikeEnv(env string) bool {
	e := strings.ToLower(strings.TrimSpace(env))
	return e == "production" || e == "prod" || e == "staging" || e == "stage"
}

func tableName(db *gorm.DB, model interface{}) (string, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(model); err != nil {
		return "", err
	}
	return stmt.Schema.Table, nil
}

// GetSchemaStatus checks every persistent model against the live database.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	status := &SchemaStatus{Driver: db.Dialector.Name(), Environment: cfg.Env}
	migrator := db.WithContext(ctx).Migrator()
	for _, model := range PersistentModels() {
		name, err := tableName(db, model)
		if err != nil {
			return nil, fmt.Errorf("parse model %T: %w", model, err)
		}
		status.Tables = append(status.Tables, TableStatus{Table: name, Present: migrator.HasTable(model)})
	}
	return status, nil
}

// DropSchema drops every persistent table. Production-like environments are
// refused unless force is set.
func DropSchema(ctx context.Context, db *gorm.DB, cfg *config.Config, force bool) error {
	if isProdLikeEnv(cfg.Env) && !force {
		return fmt.Errorf("refusing to drop schema in %q without -force", cfg.Env)
	}

	models := PersistentModels()
	// Reverse registration order drops dependents first.
	for i := len(models) - 1; i >= 0; i-- {
		if err := db.WithContext(ctx).Migrator().DropTable(models[i]); err != nil {
			return fmt.Errorf("drop %T: %w", models[i], err)
		}
	}
	middleware.Logger.Warn("Database schema dropped", slog.String("env", cfg.Env))
	return nil
}
