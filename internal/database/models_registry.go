package database

import "chatgraph/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
// The relationship tables are migrated even when the graph lives in Neo4j so
// that switching GRAPH_BACKEND never finds a missing table.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Friendship{},
		&models.ChatRoom{},
		&models.RoomMember{},
		&models.Question{},
		&models.Option{},
		&models.UserAnswer{},
		&models.Message{},
		&models.ReadReceipt{},
	}
}
