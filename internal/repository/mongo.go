package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/realtime-service/internal/apperrors"
	"github.com/fathima-sithara/realtime-service/internal/models"
)

// Mongo bundles the three collections this service touches.
type Mongo struct {
	Users         *mongo.Collection
	Conversations *mongo.Collection
	Messages      *mongo.Collection
}

// Connect dials Mongo and ensures the indexes the resolver and ledger rely on.
func Connect(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	db := client.Database(database)
	m := &Mongo{
		Users:         db.Collection("users"),
		Conversations: db.Collection("conversations"),
		Messages:      db.Collection("messages"),
	}
	if err := m.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	// The unique pair-key index is what makes Resolve race-free.
	_, err := m.Conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "participants_key", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("participants_key_uniq"),
	})
	if err != nil {
		return err
	}
	_, err = m.Messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "conversation_id", Value: 1},
			{Key: "created_at", Value: 1},
			{Key: "_id", Value: 1},
		},
		Options: options.Index().SetName("conversation_created_idx"),
	})
	return err
}

func (m *Mongo) Disconnect(ctx context.Context) error {
	return m.Users.Database().Client().Disconnect(ctx)
}

// MongoConversationRepo implements ConversationRepository on the
// conversations collection.
type MongoConversationRepo struct {
	coll *mongo.Collection
}

func NewMongoConversationRepo(m *Mongo) *MongoConversationRepo {
	return &MongoConversationRepo{coll: m.Conversations}
}

// Resolve performs an atomic find-or-create on the normalized pair key. The
// upsert against the unique index guarantees concurrent callers land on the
// same document.
func (r *MongoConversationRepo) Resolve(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	key := PairKey(userA, userB)
	filter := bson.M{"participants_key": key}
	update := bson.M{"$setOnInsert": bson.M{
		"_id":          primitive.NewObjectID().Hex(),
		"participants": []string{userA, userB},
		"created_at":   time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var conv models.Conversation
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&conv)
	if err != nil {
		// A concurrent upsert can still surface a duplicate-key error; the
		// document exists by then, so re-fetch it.
		if mongo.IsDuplicateKeyError(err) {
			err = r.coll.FindOne(ctx, filter).Decode(&conv)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: resolve conversation: %v", apperrors.ErrPersistence, err)
		}
	}
	return &conv, nil
}

func (r *MongoConversationRepo) FindByParticipants(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.coll.FindOne(ctx, bson.M{"participants_key": PairKey(userA, userB)}).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("%w: find conversation: %v", apperrors.ErrPersistence, err)
	}
	return &conv, nil
}

func (r *MongoConversationRepo) UpdateLastMessage(ctx context.Context, conversationID, text string, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$set": bson.M{"last_message": text, "last_message_at": at}},
	)
	if err != nil {
		return fmt.Errorf("%w: update last message: %v", apperrors.ErrPersistence, err)
	}
	return nil
}

// MongoMessageRepo implements MessageRepository on the messages collection.
type MongoMessageRepo struct {
	coll *mongo.Collection
}

func NewMongoMessageRepo(m *Mongo) *MongoMessageRepo {
	return &MongoMessageRepo{coll: m.Messages}
}

func (r *MongoMessageRepo) Insert(ctx context.Context, msg *models.Message) (*models.Message, error) {
	if msg.ID == "" {
		msg.ID = primitive.NewObjectID().Hex()
	}
	msg.CreatedAt = time.Now().UTC()
	if _, err := r.coll.InsertOne(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: insert message: %v", apperrors.ErrPersistence, err)
	}
	return msg, nil
}

func (r *MongoMessageRepo) FindByID(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("%w: find message: %v", apperrors.ErrPersistence, err)
	}
	return &msg, nil
}

func (r *MongoMessageRepo) MarkRead(ctx context.Context, id, receiverID string, at time.Time) (*models.Message, error) {
	filter := bson.M{"_id": id, "receiver_id": receiverID, "is_read": false}
	update := bson.M{"$set": bson.M{"is_read": true, "read_at": at}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var msg models.Message
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: mark read: %v", apperrors.ErrPersistence, err)
	}
	return &msg, nil
}

func (r *MongoMessageRepo) MarkAllRead(ctx context.Context, conversationID, receiverID string, at time.Time) (int64, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"conversation_id": conversationID, "receiver_id": receiverID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": at}},
	)
	if err != nil {
		return 0, fmt.Errorf("%w: mark all read: %v", apperrors.ErrPersistence, err)
	}
	return res.ModifiedCount, nil
}

func (r *MongoMessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]*models.Message, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	})
	cur, err := r.coll.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: list messages: %v", apperrors.ErrPersistence, err)
	}
	defer cur.Close(ctx)

	var out []*models.Message
	for cur.Next(ctx) {
		var msg models.Message
		if err := cur.Decode(&msg); err != nil {
			return nil, fmt.Errorf("%w: decode message: %v", apperrors.ErrPersistence, err)
		}
		out = append(out, &msg)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%w: message cursor: %v", apperrors.ErrPersistence, err)
	}
	return out, nil
}

// MongoUserRepo implements UserRepository on the users collection.
type MongoUserRepo struct {
	coll *mongo.Collection
}

func NewMongoUserRepo(m *Mongo) *MongoUserRepo {
	return &MongoUserRepo{coll: m.Users}
}

func (r *MongoUserRepo) SetOnline(ctx context.Context, userID string) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"is_online": true, "last_seen": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("%w: set online: %v", apperrors.ErrPersistence, err)
	}
	return nil
}

func (r *MongoUserRepo) SetOffline(ctx context.Context, userID string, lastSeen time.Time) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"is_online": false, "last_seen": lastSeen}},
	)
	if err != nil {
		return fmt.Errorf("%w: set offline: %v", apperrors.ErrPersistence, err)
	}
	return nil
}

func (r *MongoUserRepo) ListOthers(ctx context.Context, userID string) ([]*models.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "username", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$ne": userID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: list users: %v", apperrors.ErrPersistence, err)
	}
	defer cur.Close(ctx)

	var out []*models.User
	for cur.Next(ctx) {
		var u models.User
		if err := cur.Decode(&u); err != nil {
			return nil, fmt.Errorf("%w: decode user: %v", apperrors.ErrPersistence, err)
		}
		out = append(out, &u)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%w: user cursor: %v", apperrors.ErrPersistence, err)
	}
	return out, nil
}
