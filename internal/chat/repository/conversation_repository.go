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

// ConversationRepository definition conversation store access
type ConversationRepository interface {
	EnsureIndexes(ctx context.Context) error
	Create(ctx context.Context, conv *domain.Conversation) error
	FindByID(ctx context.Context, id string) (*domain.Conversation, error)
	FindByMembersHash(ctx context.Context, hash string) (*domain.Conversation, error)
	FindByMember(ctx context.Context, userID string) ([]domain.Conversation, error)
	UpdateLastMessageIfNewer(ctx context.Context, conversationID string, lm domain.LastMessage) error
}

type conversationRepository struct {
	coll *mongo.Collection
}

// NewMongoConversationRepository create a ConversationRepository
func NewMongoConversationRepository(db *mongo.Database) ConversationRepository {
	return &conversationRepository{coll: db.Collection("conversations")}
}

// EnsureIndexes uniqueness of members_hash 必須壓在 store 層,
// application 的 check-then-act 擋不住兩邊同時首發的 race
func (r *conversationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "members_hash", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"type":     domain.ConversationTypeDirect,
					"archived": false,
				}),
		},
		{
			Keys: bson.D{{Key: "member_ids", Value: 1}, {Key: "last_message.created_at", Value: -1}},
		},
	})
	return err
}

// Create unique-index 衝突回報成 control-flow signal, caller 重查一次
func (r *conversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	_, err := r.coll.InsertOne(ctx, conv)
	if mongo.IsDuplicateKeyError(err) {
		return domain.NewChatError(domain.CodeConversationExists, "conversation already exists for this pair")
	}
	return err
}

func (r *conversationRepository) FindByID(ctx context.Context, id string) (*domain.Conversation, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *conversationRepository) FindByMembersHash(ctx context.Context, hash string) (*domain.Conversation, error) {
	return r.findOne(ctx, bson.M{
		"type":         domain.ConversationTypeDirect,
		"members_hash": hash,
		"archived":     false,
		"members":      bson.M{"$size": 2},
	})
}

func (r *conversationRepository) findOne(ctx context.Context, filter bson.M) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := r.coll.FindOne(ctx, filter).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindByMember non-archived conversations of the user, most recent activity first
func (r *conversationRepository) FindByMember(ctx context.Context, userID string) ([]domain.Conversation, error) {
	filter := bson.M{
		"member_ids": userID,
		"archived":   false,
	}
	opts := options.Find().SetSort(bson.D{{Key: "last_message.created_at", Value: -1}})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var convs []domain.Conversation
	if err := cur.All(ctx, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// UpdateLastMessageIfNewer monotonic guard: 只有比快照新的訊息能覆蓋,
// 亂序 retry 或並發 send 不會讓快照倒退
func (r *conversationRepository) UpdateLastMessageIfNewer(ctx context.Context, conversationID string, lm domain.LastMessage) error {
	filter := bson.M{
		"_id": conversationID,
		"$or": []bson.M{
			{"last_message": bson.M{"$exists": false}},
			{"last_message.created_at": bson.M{"$lt": lm.CreatedAt}},
		},
	}
	update := bson.M{
		"$set": bson.M{
			"last_message": lm,
			"updated_at":   time.Now(),
		},
	}
	_, err := r.coll.UpdateOne(ctx, filter, update)
	return err
}
