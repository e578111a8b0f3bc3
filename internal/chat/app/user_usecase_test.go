package app

import (
	"context"
	"testing"

	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/pkg/encrypt"
	"direct_chat_service/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newUserFixture() (*MockUserRepo, *ConnectionRegistry, *UserUseCase) {
	userRepo := new(MockUserRepo)
	registry := NewConnectionRegistry()
	fanout := NewFanout(registry, nil, "node-test")
	return userRepo, registry, NewUserUseCase(userRepo, fanout, "chat_service")
}

func TestUserUseCase_Register(t *testing.T) {
	ctx := context.Background()
	logger.SetNewNop()
	password := "!!Securepassword111"

	// **情境 1: 成功註冊**
	t.Run("成功註冊", func(t *testing.T) {
		userRepo, _, uc := newUserFixture()
		userRepo.On("Create", ctx, mock.AnythingOfType("*domain.User")).Return(nil).Once()

		profile, err := uc.Register(ctx, RegisterInput{
			Username: "alice",
			Email:    "Alice@Example.com",
			Password: password,
		})

		assert.NoError(t, err)
		assert.Equal(t, "alice", profile.Username)
		// email 正規化為小寫
		assert.Equal(t, "alice@example.com", profile.Email)
		userRepo.AssertExpectations(t)

		created := userRepo.Calls[0].Arguments.Get(1).(*domain.User)
		assert.NotEqual(t, password, created.Password)
		assert.NoError(t, encrypt.CheckPassword(created.Password, password))
	})

	// **情境 2: 弱密碼**
	t.Run("弱密碼被拒絕", func(t *testing.T) {
		userRepo, _, uc := newUserFixture()

		_, err := uc.Register(ctx, RegisterInput{
			Username: "alice",
			Email:    "alice@example.com",
			Password: "weak",
		})

		assert.Equal(t, domain.CodeInvalidArgument, domain.CodeOf(err))
		userRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	// **情境 3: 缺欄位**
	t.Run("缺 username 或 email", func(t *testing.T) {
		_, _, uc := newUserFixture()

		_, err := uc.Register(ctx, RegisterInput{Email: "a@b.c", Password: password})

		assert.Equal(t, domain.CodeInvalidArgument, domain.CodeOf(err))
	})
}

func TestUserUseCase_Login(t *testing.T) {
	ctx := context.Background()
	logger.SetNewNop()
	password := "!!Securepassword111"
	hashed, _ := encrypt.HashPassword(password)

	user := &domain.User{
		ID:       uuid.New().String(),
		Username: "alice",
		Email:    "alice@example.com",
		Password: hashed,
	}

	// **情境 1: 成功登入**
	t.Run("成功登入", func(t *testing.T) {
		userRepo, _, uc := newUserFixture()
		userRepo.On("FindByEmail", ctx, user.Email).Return(user, nil).Once()

		token, profile, err := uc.Login(ctx, "Alice@Example.com ", password)

		assert.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.Equal(t, user.ID, profile.ID)
		userRepo.AssertExpectations(t)
	})

	// **情境 2: 密碼錯誤**
	t.Run("密碼錯誤", func(t *testing.T) {
		userRepo, _, uc := newUserFixture()
		userRepo.On("FindByEmail", ctx, user.Email).Return(user, nil).Once()

		token, _, err := uc.Login(ctx, user.Email, "wrong_password")

		assert.Equal(t, domain.CodeNotAuthorized, domain.CodeOf(err))
		assert.Empty(t, token)
	})

	// **情境 3: 使用者不存在**
	t.Run("使用者不存在", func(t *testing.T) {
		userRepo, _, uc := newUserFixture()
		userRepo.On("FindByEmail", ctx, user.Email).Return(nil, nil).Once()

		token, _, err := uc.Login(ctx, user.Email, password)

		assert.Equal(t, domain.CodeNotAuthorized, domain.CodeOf(err))
		assert.Empty(t, token)
	})
}

func TestUserUseCase_Directory(t *testing.T) {
	ctx := context.Background()
	logger.SetNewNop()

	caller := testUser("alice")

	// **情境 1: 目錄不含自己, 不洩漏密碼欄位**
	t.Run("列出其他使用者", func(t *testing.T) {
		userRepo, _, uc := newUserFixture()
		bob := testUser("bob")
		carol := testUser("carol")
		bob.Online = true
		userRepo.On("FindAllExcept", ctx, caller.ID).
			Return([]domain.User{*bob, *carol}, nil).Once()

		profiles, err := uc.ListUsers(ctx, caller.ID)

		assert.NoError(t, err)
		assert.Len(t, profiles, 2)
		assert.Equal(t, bob.ID, profiles[0].ID)
		assert.True(t, profiles[0].Online)
		userRepo.AssertExpectations(t)
	})

	// **情境 2: 按 id 查得到**
	t.Run("查單一使用者", func(t *testing.T) {
		userRepo, _, uc := newUserFixture()
		bob := testUser("bob")
		userRepo.On("FindByID", ctx, bob.ID).Return(bob, nil).Once()

		profile, err := uc.Profile(ctx, bob.ID)

		assert.NoError(t, err)
		assert.Equal(t, bob.Username, profile.Username)
	})

	// **情境 3: 查無回 NOT_FOUND**
	t.Run("查無使用者回 NOT_FOUND", func(t *testing.T) {
		userRepo, _, uc := newUserFixture()
		userRepo.On("FindByID", ctx, "missing").Return(nil, nil).Once()

		_, err := uc.Profile(ctx, "missing")

		assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
	})
}

func TestUserUseCase_Logout(t *testing.T) {
	ctx := context.Background()
	logger.SetNewNop()

	t.Run("登出標記離線並寫 lastSeen", func(t *testing.T) {
		userRepo, _, uc := newUserFixture()
		userID := uuid.New().String()
		userRepo.On("UpdateStatus", ctx, userID, false, mock.AnythingOfType("*time.Time")).
			Return(nil).Once()

		err := uc.Logout(ctx, userID)

		assert.NoError(t, err)
		userRepo.AssertExpectations(t)
	})
}

func TestUserUseCase_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	logger.SetNewNop()

	user := testUser("alice")
	newName := "alice2"

	// **情境 1: 成功更新並廣播**
	t.Run("成功更新並廣播", func(t *testing.T) {
		userRepo, registry, uc := newUserFixture()

		observerID := uuid.New().String()
		observerConn := &fakeConn{}
		registry.Register(observerID, domain.NewSession(uuid.New().String(), observerID, observerConn))

		updated := *user
		updated.Username = newName
		upd := domain.ProfileUpdate{Username: &newName}
		userRepo.On("UpdateProfile", ctx, user.ID, upd).Return(&updated, nil).Once()

		profile, err := uc.UpdateProfile(ctx, user.ID, upd)

		assert.NoError(t, err)
		assert.Equal(t, newName, profile.Username)
		assert.Equal(t, 1, observerConn.received(domain.EventUserProfileUpdated))
		userRepo.AssertExpectations(t)
	})

	// **情境 2: 空 update**
	t.Run("空 update 回 INVALID_ARGUMENT", func(t *testing.T) {
		userRepo, _, uc := newUserFixture()

		_, err := uc.UpdateProfile(ctx, user.ID, domain.ProfileUpdate{})

		assert.Equal(t, domain.CodeInvalidArgument, domain.CodeOf(err))
		userRepo.AssertNotCalled(t, "UpdateProfile", mock.Anything, mock.Anything, mock.Anything)
	})

	// **情境 3: email 已被他人使用**
	t.Run("email 已被他人使用", func(t *testing.T) {
		userRepo, _, uc := newUserFixture()
		other := testUser("bob")
		email := "bob@example.com"
		other.Email = email
		userRepo.On("FindByEmail", ctx, email).Return(other, nil).Once()

		_, err := uc.UpdateProfile(ctx, user.ID, domain.ProfileUpdate{Email: &email})

		assert.Equal(t, domain.CodeInvalidArgument, domain.CodeOf(err))
	})

	// **情境 4: 使用者不存在**
	t.Run("使用者不存在回 NOT_FOUND", func(t *testing.T) {
		userRepo, _, uc := newUserFixture()
		upd := domain.ProfileUpdate{Username: &newName}
		userRepo.On("UpdateProfile", ctx, user.ID, upd).Return(nil, nil).Once()

		_, err := uc.UpdateProfile(ctx, user.ID, upd)

		assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
	})
}
