package repository

import (
	"fmt"
	"testing"

	"chatgraph/internal/database"
	"chatgraph/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens a private in-memory sqlite database with the full schema.
// A single connection keeps concurrent transactions serialized.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// setupMockDB creates a GORM *gorm.DB backed by sqlmock for unit tests.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return gormDB, mock
}

func createUsers(t *testing.T, db *gorm.DB, names ...string) []*models.User {
	t.Helper()
	users := make([]*models.User, len(names))
	for i, name := range names {
		u := &models.User{
			Username: name,
			Email:    name + "@example.com",
			Name:     name,
			Password: "hash",
		}
		require.NoError(t, db.Create(u).Error)
		users[i] = u
	}
	return users
}

func makeFriends(t *testing.T, db *gorm.DB, a, b string) {
	t.Helper()
	lo, hi := models.OrderedPair(a, b)
	require.NoError(t, db.Create(&models.Friendship{
		UserLow:     lo,
		UserHigh:    hi,
		RequesterID: a,
		Status:      models.FriendshipStatusAccepted,
	}).Error)
}
