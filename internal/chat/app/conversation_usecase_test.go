package app

import (
	"context"
	"testing"
	"time"

	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newConversationFixture() (*MockConversationRepo, *MockMessageRepo, *MockUserRepo, *RoomManager, *ConversationUseCase) {
	convRepo := new(MockConversationRepo)
	msgRepo := new(MockMessageRepo)
	userRepo := new(MockUserRepo)
	rooms := NewRoomManager(NewConnectionRegistry())
	uc := NewConversationUseCase(convRepo, msgRepo, userRepo, rooms)
	return convRepo, msgRepo, userRepo, rooms, uc
}

func testUser(username string) *domain.User {
	return &domain.User{
		ID:       uuid.New().String(),
		Username: username,
		Email:    username + "@example.com",
	}
}

func TestConversationUseCase_ResolveDirect(t *testing.T) {
	ctx := context.Background()
	logger.SetNewNop()

	alice := testUser("alice")
	bob := testUser("bob")
	hash := domain.MembersHashOf(alice.ID, bob.ID)

	// **情境 1: 已存在就直接回傳**
	t.Run("已存在的對話直接回傳", func(t *testing.T) {
		convRepo, _, _, _, uc := newConversationFixture()
		existing := &domain.Conversation{ID: uuid.New().String(), MembersHash: hash}
		convRepo.On("FindByMembersHash", ctx, hash).Return(existing, nil).Once()

		conv, created, err := uc.ResolveDirect(ctx, alice, bob)

		assert.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, existing.ID, conv.ID)
		convRepo.AssertExpectations(t)
	})

	// **情境 2: 不存在就建立, 雙方入房**
	t.Run("首發建立對話並加入房間", func(t *testing.T) {
		convRepo, _, _, rooms, uc := newConversationFixture()
		convRepo.On("FindByMembersHash", ctx, hash).Return(nil, nil).Once()
		convRepo.On("Create", ctx, mock.AnythingOfType("*domain.Conversation")).Return(nil).Once()

		conv, created, err := uc.ResolveDirect(ctx, alice, bob)

		assert.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, hash, conv.MembersHash)
		assert.ElementsMatch(t, []string{alice.ID, bob.ID}, conv.MemberIDs)
		assert.Contains(t, rooms.RoomsOf(alice.ID), domain.ConversationRoom(conv.ID))
		assert.Contains(t, rooms.RoomsOf(bob.ID), domain.ConversationRoom(conv.ID))
		convRepo.AssertExpectations(t)
	})

	// **情境 3: create 撞 unique index 改用對方那筆**
	t.Run("同時首發撞 index 後重查", func(t *testing.T) {
		convRepo, _, _, _, uc := newConversationFixture()
		winner := &domain.Conversation{ID: uuid.New().String(), MembersHash: hash}

		convRepo.On("FindByMembersHash", ctx, hash).Return(nil, nil).Once()
		convRepo.On("Create", ctx, mock.AnythingOfType("*domain.Conversation")).
			Return(domain.NewChatError(domain.CodeConversationExists, "conversation exists")).Once()
		convRepo.On("FindByMembersHash", ctx, hash).Return(winner, nil).Once()

		conv, created, err := uc.ResolveDirect(ctx, alice, bob)

		assert.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, winner.ID, conv.ID)
		convRepo.AssertExpectations(t)
	})

	// **情境 4: 參數順序不影響 hash**
	t.Run("hash 與參數順序無關", func(t *testing.T) {
		assert.Equal(t,
			domain.MembersHashOf(alice.ID, bob.ID),
			domain.MembersHashOf(bob.ID, alice.ID))
	})
}

func TestConversationUseCase_JoinRoom(t *testing.T) {
	ctx := context.Background()
	logger.SetNewNop()

	alice := testUser("alice")
	bob := testUser("bob")
	convID := uuid.New().String()
	conv := &domain.Conversation{
		ID: convID,
		Members: []domain.ConversationMember{
			{UserID: alice.ID}, {UserID: bob.ID},
		},
		MemberIDs: []string{alice.ID, bob.ID},
	}

	// **情境 1: 成員加入房間**
	t.Run("成員加入對話房間", func(t *testing.T) {
		convRepo, _, _, rooms, uc := newConversationFixture()
		convRepo.On("FindByID", ctx, convID).Return(conv, nil).Once()

		err := uc.JoinRoom(ctx, alice.ID, convID)

		assert.NoError(t, err)
		assert.Contains(t, rooms.RoomsOf(alice.ID), domain.ConversationRoom(convID))
		convRepo.AssertExpectations(t)
	})

	// **情境 2: 非成員被拒**
	t.Run("非成員回 NOT_FOUND", func(t *testing.T) {
		convRepo, _, _, rooms, uc := newConversationFixture()
		outsider := testUser("mallory")
		convRepo.On("FindByID", ctx, convID).Return(conv, nil).Once()

		err := uc.JoinRoom(ctx, outsider.ID, convID)

		assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
		assert.Empty(t, rooms.RoomsOf(outsider.ID))
	})

	// **情境 3: 查無對話**
	t.Run("查無對話回 NOT_FOUND", func(t *testing.T) {
		convRepo, _, _, _, uc := newConversationFixture()
		convRepo.On("FindByID", ctx, convID).Return(nil, nil).Once()

		err := uc.JoinRoom(ctx, alice.ID, convID)

		assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
	})

	t.Run("缺 conversation id 回 INVALID_ARGUMENT", func(t *testing.T) {
		_, _, _, _, uc := newConversationFixture()
		err := uc.JoinRoom(ctx, alice.ID, "")
		assert.Equal(t, domain.CodeInvalidArgument, domain.CodeOf(err))
	})
}

func TestConversationUseCase_ListForUser(t *testing.T) {
	ctx := context.Background()
	logger.SetNewNop()

	alice := testUser("alice")
	bob := testUser("bob")

	t.Run("解析對方 profile", func(t *testing.T) {
		convRepo, _, userRepo, _, uc := newConversationFixture()
		conv := domain.Conversation{
			ID:        uuid.New().String(),
			MemberIDs: []string{alice.ID, bob.ID},
		}
		convRepo.On("FindByMember", ctx, alice.ID).Return([]domain.Conversation{conv}, nil).Once()
		userRepo.On("FindByID", ctx, bob.ID).Return(bob, nil).Once()

		views, err := uc.ListForUser(ctx, alice.ID)

		assert.NoError(t, err)
		assert.Len(t, views, 1)
		assert.NotNil(t, views[0].OtherUser)
		assert.Equal(t, bob.ID, views[0].OtherUser.ID)
		convRepo.AssertExpectations(t)
		userRepo.AssertExpectations(t)
	})

	t.Run("缺 user id 回 INVALID_ARGUMENT", func(t *testing.T) {
		_, _, _, _, uc := newConversationFixture()
		_, err := uc.ListForUser(ctx, "")
		assert.Equal(t, domain.CodeInvalidArgument, domain.CodeOf(err))
	})
}

func TestConversationUseCase_Messages(t *testing.T) {
	ctx := context.Background()
	logger.SetNewNop()

	alice := testUser("alice")
	bob := testUser("bob")
	convID := uuid.New().String()
	conv := &domain.Conversation{ID: convID, MemberIDs: []string{alice.ID, bob.ID}}

	makeMessages := func(n int) []domain.Message {
		msgs := make([]domain.Message, 0, n)
		base := time.Now()
		for i := 0; i < n; i++ {
			// newest-first, 跟 repo 排序一致
			msgs = append(msgs, domain.Message{
				ID:        uuid.New().String(),
				SenderID:  alice.ID,
				CreatedAt: base.Add(-time.Duration(i) * time.Minute),
			})
		}
		return msgs
	}

	expectProfiles := func(userRepo *MockUserRepo) {
		userRepo.On("FindByID", ctx, alice.ID).Return(alice, nil).Once()
		userRepo.On("FindByID", ctx, bob.ID).Return(bob, nil).Once()
	}

	// **情境 1: 45 則 limit 20 的分頁數學**
	t.Run("總數 45 limit 20 共 3 頁", func(t *testing.T) {
		convRepo, msgRepo, userRepo, _, uc := newConversationFixture()
		convRepo.On("FindByID", ctx, convID).Return(conv, nil).Once()
		msgRepo.On("CountVisible", ctx, convID, alice.ID).Return(int64(45), nil).Once()
		msgRepo.On("FindPage", ctx, convID, alice.ID, int64(20), int64(20)).
			Return(makeMessages(20), nil).Once()
		expectProfiles(userRepo)

		page, err := uc.Messages(ctx, alice.ID, convID, 2, 20)

		assert.NoError(t, err)
		assert.Equal(t, int64(45), page.Total)
		assert.Equal(t, 2, page.Page)
		assert.Equal(t, 3, page.TotalPages)
		assert.True(t, page.HasNextPage)
		assert.True(t, page.HasPreviousPage)
		assert.Len(t, page.Messages, 20)
		msgRepo.AssertExpectations(t)
	})

	// **情境 2: window 重排為 oldest-first**
	t.Run("頁內由舊到新排序", func(t *testing.T) {
		convRepo, msgRepo, userRepo, _, uc := newConversationFixture()
		convRepo.On("FindByID", ctx, convID).Return(conv, nil).Once()
		msgRepo.On("CountVisible", ctx, convID, alice.ID).Return(int64(3), nil).Once()
		msgRepo.On("FindPage", ctx, convID, alice.ID, int64(0), int64(20)).
			Return(makeMessages(3), nil).Once()
		expectProfiles(userRepo)

		page, err := uc.Messages(ctx, alice.ID, convID, 1, 0)

		assert.NoError(t, err)
		assert.Len(t, page.Messages, 3)
		assert.True(t, page.Messages[0].CreatedAt.Before(page.Messages[1].CreatedAt))
		assert.True(t, page.Messages[1].CreatedAt.Before(page.Messages[2].CreatedAt))
	})

	// **情境 3: limit 夾在 1..50, page 至少 1**
	t.Run("limit 超過上限被夾到 50", func(t *testing.T) {
		convRepo, msgRepo, userRepo, _, uc := newConversationFixture()
		convRepo.On("FindByID", ctx, convID).Return(conv, nil).Once()
		msgRepo.On("CountVisible", ctx, convID, alice.ID).Return(int64(0), nil).Once()
		msgRepo.On("FindPage", ctx, convID, alice.ID, int64(0), int64(50)).
			Return([]domain.Message{}, nil).Once()
		expectProfiles(userRepo)

		page, err := uc.Messages(ctx, alice.ID, convID, -3, 500)

		assert.NoError(t, err)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, 1, page.TotalPages)
		assert.False(t, page.HasNextPage)
		assert.False(t, page.HasPreviousPage)
	})

	// **情境 4: 非成員回 NOT_FOUND**
	t.Run("非成員看不到對話", func(t *testing.T) {
		convRepo, _, _, _, uc := newConversationFixture()
		stranger := uuid.New().String()
		convRepo.On("FindByID", ctx, convID).Return(conv, nil).Once()

		_, err := uc.Messages(ctx, stranger, convID, 1, 20)

		assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
	})

	// **情境 5: 對話不存在回 NOT_FOUND**
	t.Run("對話不存在", func(t *testing.T) {
		convRepo, _, _, _, uc := newConversationFixture()
		convRepo.On("FindByID", ctx, convID).Return(nil, nil).Once()

		_, err := uc.Messages(ctx, alice.ID, convID, 1, 20)

		assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
	})
}
