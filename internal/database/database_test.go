package database

import (
	"context"
	"testing"

	"chatgraph/internal/config"
	"chatgraph/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestConfigurePool(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	cfg := &config.Config{
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           5,
		DBConnMaxLifetimeMinutes: 15,
	}
	require.NoError(t, configurePool(db, cfg))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)
}

func TestDialector(t *testing.T) {
	tests := []struct {
		driver string
		name   string
		ok     bool
	}{
		{"postgres", "postgres", true},
		{"mysql", "mysql", true},
		{"sqlite", "sqlite", true},
		{"oracle", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := Dialector(&config.Config{DBDriver: tt.driver, DBName: "x"})
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, d.Name())
		})
	}
}

func TestConnectSQLiteMigratesSchema(t *testing.T) {
	db, err := Connect(&config.Config{Env: "test", DBDriver: "sqlite", DBDSN: "file::memory:?cache=shared"})
	require.NoError(t, err)
	require.NoError(t, Ping(context.Background(), db))

	for _, model := range []interface{}{&models.User{}, &models.Friendship{}, &models.RoomMember{}, &models.Message{}} {
		assert.True(t, db.Migrator().HasTable(model))
	}
	assert.True(t, db.Migrator().HasIndex(&models.Message{}, "idx_messages_room_created"))
}

func TestPersistentModels_IncludesRelationshipTables(t *testing.T) {
	var hasMember, hasFriendship bool
	for _, model := range PersistentModels() {
		switch model.(type) {
		case *models.RoomMember:
			hasMember = true
		case *models.Friendship:
			hasFriendship = true
		}
	}
	assert.True(t, hasMember)
	assert.True(t, hasFriendship)
}

func TestSchemaStatusAndDrop(t *testing.T) {
	ctx := context.Background()
	db, err := gorm.Open(sqlite.Open("file:schema_status?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	cfg := &config.Config{Env: "test"}

	status, err := GetSchemaStatus(ctx, db, cfg)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", status.Driver)
	assert.Len(t, status.Missing(), len(PersistentModels()))

	require.NoError(t, Migrate(db))
	status, err = GetSchemaStatus(ctx, db, cfg)
	require.NoError(t, err)
	assert.Empty(t, status.Missing())

	assert.Error(t, DropSchema(ctx, db, &config.Config{Env: "production"}, false))
	require.NoError(t, DropSchema(ctx, db, cfg, false))
	status, err = GetSchemaStatus(ctx, db, cfg)
	require.NoError(t, err)
	assert.Contains(t, status.Missing(), "users")
}
