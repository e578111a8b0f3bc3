package repository

import (
	"context"
	"errors"
	"time"

	"direct_chat_service/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageRepository definition message store access
type MessageRepository interface {
	EnsureIndexes(ctx context.Context) error
	// Insert keyed by (request_id, sender_id); duplicate 回報 DUPLICATE_REQUEST_ID
	Insert(ctx context.Context, msg *domain.Message) error
	FindByID(ctx context.Context, id string) (*domain.Message, error)
	// ExistsBetween check the message was exchanged between exactly this pair
	ExistsBetween(ctx context.Context, messageID, userA, userB string) (bool, error)
	SetDeletedForEveryone(ctx context.Context, messageID, by string, at time.Time) error
	AddDeletedFor(ctx context.Context, messageID, userID string) error
	ClearBetween(ctx context.Context, userID, withUserID string) (int64, error)
	FindPage(ctx context.Context, conversationID, viewerID string, skip, limit int64) ([]domain.Message, error)
	CountVisible(ctx context.Context, conversationID, viewerID string) (int64, error)
}

type messageRepository struct {
	coll *mongo.Collection
}

// NewMongoMessageRepository create a MessageRepository
func NewMongoMessageRepository(db *mongo.Database) MessageRepository {
	return &messageRepository{coll: db.Collection("messages")}
}

func (r *messageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "request_id", Value: 1}, {Key: "sender_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "deleted_for", Value: 1}},
		},
	})
	return err
}

func (r *messageRepository) Insert(ctx context.Context, msg *domain.Message) error {
	if msg.CreatedAt.IsZero() {
		now := time.Now()
		msg.CreatedAt = now
		msg.UpdatedAt = now
	}
	_, err := r.coll.InsertOne(ctx, msg)
	if mongo.IsDuplicateKeyError(err) {
		return domain.NewChatError(domain.CodeDuplicateRequestID, "message already processed for this request id")
	}
	return err
}

func (r *messageRepository) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) ExistsBetween(ctx context.Context, messageID, userA, userB string) (bool, error) {
	filter := bson.M{
		"_id": messageID,
		"$or": []bson.M{
			{"sender_id": userA, "recipient_id": userB},
			{"sender_id": userB, "recipient_id": userA},
		},
	}
	err := r.coll.FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetDeletedForEveryone tombstone 只設一次, 已刪除的訊息不再改動
func (r *messageRepository) SetDeletedForEveryone(ctx context.Context, messageID, by string, at time.Time) error {
	filter := bson.M{"_id": messageID, "is_deleted": false}
	update := bson.M{
		"$set": bson.M{
			"is_deleted": true,
			"deleted_at": at,
			"deleted_by": by,
			"updated_at": at,
		},
	}
	_, err := r.coll.UpdateOne(ctx, filter, update)
	return err
}

// AddDeletedFor $addToSet 天然冪等
func (r *messageRepository) AddDeletedFor(ctx context.Context, messageID, userID string) error {
	update := bson.M{
		"$addToSet": bson.M{"deleted_for": userID},
		"$set":      bson.M{"updated_at": time.Now()},
	}
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": messageID}, update)
	return err
}

// ClearBetween bulk hide, 已隱藏的不重複加
func (r *messageRepository) ClearBetween(ctx context.Context, userID, withUserID string) (int64, error) {
	filter := bson.M{
		"$or": []bson.M{
			{"sender_id": userID, "recipient_id": withUserID},
			{"sender_id": withUserID, "recipient_id": userID},
		},
		"deleted_for": bson.M{"$ne": userID},
	}
	update := bson.M{
		"$addToSet": bson.M{"deleted_for": userID},
		"$set":      bson.M{"updated_at": time.Now()},
	}
	res, err := r.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func visibleFilter(conversationID, viewerID string) bson.M {
	return bson.M{
		"conversation_id": conversationID,
		"is_deleted":      bson.M{"$ne": true},
		"deleted_for":     bson.M{"$ne": viewerID},
	}
}

// FindPage newest-first window for skip/limit pagination
func (r *messageRepository) FindPage(ctx context.Context, conversationID, viewerID string, skip, limit int64) ([]domain.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)
	cur, err := r.coll.Find(ctx, visibleFilter(conversationID, viewerID), opts)
	if err != nil {
		return nil, err
	}
	var msgs []domain.Message
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *messageRepository) CountVisible(ctx context.Context, conversationID, viewerID string) (int64, error) {
	return r.coll.CountDocuments(ctx, visibleFilter(conversationID, viewerID))
}
