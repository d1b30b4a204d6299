package repository

import (
	"context"
	"errors"
	"time"

	"chatgraph/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoStore = "mongo"

type readReceiptDocument struct {
	UserID string    `bson:"userId"`
	ReadAt time.Time `bson:"readAt"`
}

type messageDocument struct {
	ID        primitive.ObjectID    `bson:"_id"`
	RoomID    string                `bson:"roomId"`
	SenderID  string                `bson:"senderId"`
	Content   string                `bson:"content"`
	Status    string                `bson:"status"`
	ReadBy    []readReceiptDocument `bson:"readBy"`
	CreatedAt time.Time             `bson:"createdAt"`
	UpdatedAt time.Time             `bson:"updatedAt"`
}

func (d *messageDocument) toModel() *models.Message {
	msg := &models.Message{
		ID:        d.ID.Hex(),
		RoomID:    d.RoomID,
		SenderID:  d.SenderID,
		Content:   d.Content,
		Status:    models.MessageStatus(d.Status),
		ReadBy:    make([]models.ReadReceipt, len(d.ReadBy)),
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	for i, r := range d.ReadBy {
		msg.ReadBy[i] = models.ReadReceipt{MessageID: msg.ID, UserID: r.UserID, ReadAt: r.ReadAt.UTC()}
	}
	return msg
}

type mongoMessageRepository struct {
	coll *mongo.Collection
}

// NewMongoMessageRepository returns a MessageRepository over coll.
func NewMongoMessageRepository(coll *mongo.Collection) MessageRepository {
	return &mongoMessageRepository{coll: coll}
}

func (r *mongoMessageRepository) Create(ctx context.Context, msg *models.Message) error {
	ctx, done := track(ctx, mongoStore, "message_create")
	defer done()

	prepareMessage(msg)
	oid, err := primitive.ObjectIDFromHex(msg.ID)
	if err != nil {
		return models.NewValidationError("Invalid message id")
	}
	doc := messageDocument{
		ID:        oid,
		RoomID:    msg.RoomID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		Status:    string(msg.Status),
		ReadBy:    []readReceiptDocument{},
		CreatedAt: msg.CreatedAt,
		UpdatedAt: msg.UpdatedAt,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *mongoMessageRepository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.NewNotFoundError("Message", id)
	}
	var doc messageDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, mongoError(err, id)
	}
	return doc.toModel(), nil
}

func (r *mongoMessageRepository) Delete(ctx context.Context, id string) (*models.Message, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.NewNotFoundError("Message", id)
	}
	var doc messageDocument
	if err := r.coll.FindOneAndDelete(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, mongoError(err, id)
	}
	return doc.toModel(), nil
}

func (r *mongoMessageRepository) DeleteByRoom(ctx context.Context, roomID string) (int64, error) {
	ctx, done := track(ctx, mongoStore, "message_delete_by_room")
	defer done()

	res, err := r.coll.DeleteMany(ctx, bson.M{"roomId": roomID})
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return res.DeletedCount, nil
}

func (r *mongoMessageRepository) ListByRoom(ctx context.Context, roomID string, limit, skip int) ([]models.Message, error) {
	ctx, done := track(ctx, mongoStore, "message_list")
	defer done()

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))

	cursor, err := r.coll.Find(ctx, bson.M{"roomId": roomID}, opts)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	defer cursor.Close(ctx)

	var docs []messageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, models.NewInternalError(err)
	}
	msgs := make([]models.Message, len(docs))
	for i := range docs {
		msgs[i] = *docs[i].toModel()
	}
	return msgs, nil
}

func (r *mongoMessageRepository) AdvanceStatus(ctx context.Context, id string, target models.MessageStatus) (*models.Message, bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, false, models.NewNotFoundError("Message", id)
	}
	below := target.Below()
	if len(below) == 0 {
		msg, err := r.GetByID(ctx, id)
		return msg, false, err
	}

	var doc messageDocument
	err = r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": oid, "status": bson.M{"$in": below}},
		bson.M{"$set": bson.M{"status": string(target), "updatedAt": now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		msg, err := r.GetByID(ctx, id)
		return msg, false, err
	}
	if err != nil {
		return nil, false, models.NewInternalError(err)
	}
	return doc.toModel(), true, nil
}

// MarkRead pushes the receipt only when the reader is absent, so repeated
// reads leave a single entry.
func (r *mongoMessageRepository) MarkRead(ctx context.Context, id, readerID string, at time.Time) (*models.Message, bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, false, models.NewNotFoundError("Message", id)
	}

	var doc messageDocument
	err = r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": oid, "readBy.userId": bson.M{"$ne": readerID}},
		bson.M{
			"$push": bson.M{"readBy": readReceiptDocument{UserID: readerID, ReadAt: at}},
			"$set":  bson.M{"status": string(models.MessageStatusRead), "updatedAt": now()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.toModel(), true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, models.NewInternalError(err)
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": oid, "status": bson.M{"$ne": string(models.MessageStatusRead)}},
		bson.M{"$set": bson.M{"status": string(models.MessageStatusRead), "updatedAt": now()}},
	)
	if err != nil {
		return nil, false, models.NewInternalError(err)
	}
	msg, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return msg, res.ModifiedCount > 0, nil
}

func (r *mongoMessageRepository) LatestByRooms(ctx context.Context, roomIDs []string) (map[string]*models.Message, error) {
	out := make(map[string]*models.Message, len(roomIDs))
	if len(roomIDs) == 0 {
		return out, nil
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"roomId": bson.M{"$in": roomIDs}}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$group", Value: bson.M{"_id": "$roomId", "doc": bson.M{"$first": "$$ROOT"}}}},
	}
	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Doc messageDocument `bson:"doc"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, models.NewInternalError(err)
	}
	for i := range rows {
		msg := rows[i].Doc.toModel()
		out[msg.RoomID] = msg
	}
	return out, nil
}

func mongoError(err error, id string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.NewNotFoundError("Message", id)
	}
	return models.NewInternalError(err)
}
