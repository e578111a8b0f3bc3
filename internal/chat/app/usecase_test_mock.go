package app

import (
	"context"
	"sync"
	"time"

	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/internal/chat/repository"

	"github.com/stretchr/testify/mock"
)

// MockUserRepo Mock UserRepository
type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) EnsureIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUserRepo) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepo) FindAllExcept(ctx context.Context, excludeID string) ([]domain.User, error) {
	args := m.Called(ctx, excludeID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepo) UpdateStatus(ctx context.Context, id string, online bool, lastSeen *time.Time) error {
	args := m.Called(ctx, id, online, lastSeen)
	return args.Error(0)
}

func (m *MockUserRepo) UpdateProfile(ctx context.Context, id string, upd domain.ProfileUpdate) (*domain.User, error) {
	args := m.Called(ctx, id, upd)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.User), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockConversationRepo Mock ConversationRepository
type MockConversationRepo struct {
	mock.Mock
}

func (m *MockConversationRepo) EnsureIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockConversationRepo) Create(ctx context.Context, conv *domain.Conversation) error {
	args := m.Called(ctx, conv)
	return args.Error(0)
}

func (m *MockConversationRepo) FindByID(ctx context.Context, id string) (*domain.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockConversationRepo) FindByMembersHash(ctx context.Context, hash string) (*domain.Conversation, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockConversationRepo) FindByMember(ctx context.Context, userID string) ([]domain.Conversation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockConversationRepo) UpdateLastMessageIfNewer(ctx context.Context, conversationID string, lm domain.LastMessage) error {
	args := m.Called(ctx, conversationID, lm)
	return args.Error(0)
}

// MockMessageRepo Mock MessageRepository
type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) EnsureIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockMessageRepo) Insert(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageRepo) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMessageRepo) ExistsBetween(ctx context.Context, messageID, userA, userB string) (bool, error) {
	args := m.Called(ctx, messageID, userA, userB)
	return args.Bool(0), args.Error(1)
}

func (m *MockMessageRepo) SetDeletedForEveryone(ctx context.Context, messageID, by string, at time.Time) error {
	args := m.Called(ctx, messageID, by, at)
	return args.Error(0)
}

func (m *MockMessageRepo) AddDeletedFor(ctx context.Context, messageID, userID string) error {
	args := m.Called(ctx, messageID, userID)
	return args.Error(0)
}

func (m *MockMessageRepo) ClearBetween(ctx context.Context, userID, withUserID string) (int64, error) {
	args := m.Called(ctx, userID, withUserID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageRepo) FindPage(ctx context.Context, conversationID, viewerID string, skip, limit int64) ([]domain.Message, error) {
	args := m.Called(ctx, conversationID, viewerID, skip, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMessageRepo) CountVisible(ctx context.Context, conversationID, viewerID string) (int64, error) {
	args := m.Called(ctx, conversationID, viewerID)
	return args.Get(0).(int64), args.Error(1)
}

// MockEventBridge Mock 跨節點 pub/sub
type MockEventBridge struct {
	mock.Mock
}

func (m *MockEventBridge) Publish(ctx context.Context, env repository.Envelope) error {
	args := m.Called(ctx, env)
	return args.Error(0)
}

// MockAckCache Mock ack cache (RedisRepository[domain.SendResult])
type MockAckCache struct {
	mock.Mock
}

func (m *MockAckCache) Set(ctx context.Context, key string, value domain.SendResult, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockAckCache) Get(ctx context.Context, key string) (domain.SendResult, error) {
	args := m.Called(ctx, key)
	if args.Get(0) != nil {
		return args.Get(0).(domain.SendResult), args.Error(1)
	}
	return domain.SendResult{}, args.Error(1)
}

func (m *MockAckCache) Del(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockAckCache) GetTTL(ctx context.Context, key string) (int, error) {
	args := m.Called(ctx, key)
	return args.Int(0), args.Error(1)
}

func (m *MockAckCache) ExtendTTL(ctx context.Context, key string, ttl time.Duration) error {
	args := m.Called(ctx, key, ttl)
	return args.Error(0)
}

// fakeConn 記錄寫出的 response, 模擬一條 websocket 連線
type fakeConn struct {
	mu    sync.Mutex
	sent  []domain.WSResponse
	errFn func() error
}

func (c *fakeConn) WriteResponse(resp domain.WSResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.errFn != nil {
		if err := c.errFn(); err != nil {
			return err
		}
	}
	c.sent = append(c.sent, resp)
	return nil
}

func (c *fakeConn) responses() []domain.WSResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.WSResponse, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) received(event domain.Event) int {
	n := 0
	for _, r := range c.responses() {
		if r.Event == event {
			n++
		}
	}
	return n
}
