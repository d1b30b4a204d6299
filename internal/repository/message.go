package repository

import (
	"context"
	"time"

	"chatgraph/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MessageRepository persists chat messages and their delivery state.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id string) (*models.Message, error)
	// Delete removes one message and returns it as it was.
	Delete(ctx context.Context, id string) (*models.Message, error)
	DeleteByRoom(ctx context.Context, roomID string) (int64, error)
	// ListByRoom returns newest first, ties broken by id descending.
	ListByRoom(ctx context.Context, roomID string, limit, skip int) ([]models.Message, error)
	// AdvanceStatus moves the status forward to target and never backwards.
	// The bool reports whether anything changed.
	AdvanceStatus(ctx context.Context, id string, target models.MessageStatus) (*models.Message, bool, error)
	// MarkRead adds a receipt for reader unless one exists and sets the
	// status to read. The bool reports whether anything changed.
	MarkRead(ctx context.Context, id, readerID string, at time.Time) (*models.Message, bool, error)
	LatestByRooms(ctx context.Context, roomIDs []string) (map[string]*models.Message, error)
}

// NewMessageID returns a 24 character hex id. Ids minted by one process sort
// in creation order.
func NewMessageID() string {
	return primitive.NewObjectID().Hex()
}

func prepareMessage(msg *models.Message) {
	if msg.ID == "" {
		msg.ID = NewMessageID()
	}
	if msg.Status == "" {
		msg.Status = models.MessageStatusSent
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now()
	}
	msg.UpdatedAt = msg.CreatedAt
	if msg.ReadBy == nil {
		msg.ReadBy = []models.ReadReceipt{}
	}
}
