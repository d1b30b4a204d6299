package repository

import (
	"context"
	"testing"
	"time"

	"chatgraph/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func messageDoc(id primitive.ObjectID, status string, readers ...string) bson.D {
	readBy := bson.A{}
	for _, r := range readers {
		readBy = append(readBy, bson.D{{Key: "userId", Value: r}, {Key: "readAt", Value: time.Unix(1700000000, 0)}})
	}
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "roomId", Value: "room-1"},
		{Key: "senderId", Value: "sender"},
		{Key: "content", Value: "hello"},
		{Key: "status", Value: status},
		{Key: "readBy", Value: readBy},
		{Key: "createdAt", Value: time.Unix(1700000000, 0)},
		{Key: "updatedAt", Value: time.Unix(1700000000, 0)},
	}
}

func TestMongoMessages(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("create assigns id and status", func(mt *mtest.T) {
		repo := NewMongoMessageRepository(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		msg := &models.Message{RoomID: "room-1", SenderID: "sender", Content: "hello"}
		require.NoError(mt, repo.Create(ctx, msg))
		assert.Len(mt, msg.ID, 24)
		assert.Equal(mt, models.MessageStatusSent, msg.Status)
	})

	mt.Run("get by id decodes receipts", func(mt *mtest.T) {
		repo := NewMongoMessageRepository(mt.Coll)
		id := primitive.NewObjectID()
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(1, ns, mtest.FirstBatch, messageDoc(id, "read", "r1")))

		msg, err := repo.GetByID(ctx, id.Hex())
		require.NoError(mt, err)
		assert.Equal(mt, id.Hex(), msg.ID)
		assert.Equal(mt, models.MessageStatusRead, msg.Status)
		require.Len(mt, msg.ReadBy, 1)
		assert.Equal(mt, "r1", msg.ReadBy[0].UserID)
	})

	mt.Run("invalid id is not found", func(mt *mtest.T) {
		repo := NewMongoMessageRepository(mt.Coll)
		_, err := repo.GetByID(ctx, "not-an-object-id")
		assert.True(mt, models.HasCode(err, models.CodeNotFound))
	})

	mt.Run("missing document is not found", func(mt *mtest.T) {
		repo := NewMongoMessageRepository(mt.Coll)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := repo.GetByID(ctx, primitive.NewObjectID().Hex())
		assert.True(mt, models.HasCode(err, models.CodeNotFound))
	})

	mt.Run("advance status reports change", func(mt *mtest.T) {
		repo := NewMongoMessageRepository(mt.Coll)
		id := primitive.NewObjectID()
		mt.AddMockResponses(bson.D{
			{Key: "ok", Value: 1},
			{Key: "value", Value: messageDoc(id, "delivered")},
		})

		msg, changed, err := repo.AdvanceStatus(ctx, id.Hex(), models.MessageStatusDelivered)
		require.NoError(mt, err)
		assert.True(mt, changed)
		assert.Equal(mt, models.MessageStatusDelivered, msg.Status)
	})

	mt.Run("delete by room returns count", func(mt *mtest.T) {
		repo := NewMongoMessageRepository(mt.Coll)
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 4}})

		n, err := repo.DeleteByRoom(ctx, "room-1")
		require.NoError(mt, err)
		assert.EqualValues(mt, 4, n)
	})

	mt.Run("delete by room failure is internal", func(mt *mtest.T) {
		repo := NewMongoMessageRepository(mt.Coll)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Message: "bad value",
			Name:    "BadValue",
		}))

		_, err := repo.DeleteByRoom(ctx, "room-1")
		assert.True(mt, models.HasCode(err, models.CodeInternal))
	})
}
