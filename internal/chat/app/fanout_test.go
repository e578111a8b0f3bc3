package app

import (
	"context"
	"testing"

	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/internal/chat/repository"
	"direct_chat_service/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestFanout_ToUser(t *testing.T) {
	ctx := context.Background()
	logger.SetNewNop()
	userID := uuid.New().String()

	t.Run("本地投遞並發佈 envelope", func(t *testing.T) {
		registry := NewConnectionRegistry()
		bridge := new(MockEventBridge)
		f := NewFanout(registry, bridge, "node-1")

		conn := &fakeConn{}
		registry.Register(userID, domain.NewSession(uuid.New().String(), userID, conn))

		resp := domain.OkResponse(domain.EventMessageReceive, nil)
		bridge.On("Publish", ctx, repository.Envelope{
			Origin: "node-1",
			Target: userID,
			Resp:   resp,
		}).Return(nil).Once()

		f.ToUser(ctx, userID, resp, "")

		assert.Equal(t, 1, conn.received(domain.EventMessageReceive))
		bridge.AssertExpectations(t)
	})

	t.Run("跳過發話 session", func(t *testing.T) {
		registry := NewConnectionRegistry()
		f := NewFanout(registry, nil, "node-1")

		originConn := &fakeConn{}
		origin := domain.NewSession(uuid.New().String(), userID, originConn)
		registry.Register(userID, origin)

		f.ToUser(ctx, userID, domain.OkResponse(domain.EventMessageSend, nil), origin.ID)

		assert.Equal(t, 0, originConn.received(domain.EventMessageSend))
	})
}

func TestFanout_HandleRemote(t *testing.T) {
	logger.SetNewNop()
	userID := uuid.New().String()

	t.Run("丟棄自己發的 envelope", func(t *testing.T) {
		registry := NewConnectionRegistry()
		f := NewFanout(registry, nil, "node-1")

		conn := &fakeConn{}
		registry.Register(userID, domain.NewSession(uuid.New().String(), userID, conn))

		f.HandleRemote(repository.Envelope{
			Origin: "node-1",
			Target: userID,
			Resp:   domain.OkResponse(domain.EventMessageReceive, nil),
		})

		assert.Equal(t, 0, conn.received(domain.EventMessageReceive))
	})

	t.Run("投遞其他節點的 targeted envelope", func(t *testing.T) {
		registry := NewConnectionRegistry()
		f := NewFanout(registry, nil, "node-1")

		conn := &fakeConn{}
		registry.Register(userID, domain.NewSession(uuid.New().String(), userID, conn))

		f.HandleRemote(repository.Envelope{
			Origin: "node-2",
			Target: userID,
			Resp:   domain.OkResponse(domain.EventMessageReceive, nil),
		})

		assert.Equal(t, 1, conn.received(domain.EventMessageReceive))
	})

	t.Run("broadcast envelope 尊重 exceptUser", func(t *testing.T) {
		registry := NewConnectionRegistry()
		f := NewFanout(registry, nil, "node-1")

		otherID := uuid.New().String()
		connA := &fakeConn{}
		connB := &fakeConn{}
		registry.Register(userID, domain.NewSession(uuid.New().String(), userID, connA))
		registry.Register(otherID, domain.NewSession(uuid.New().String(), otherID, connB))

		f.HandleRemote(repository.Envelope{
			Origin:     "node-2",
			ExceptUser: userID,
			Resp:       domain.OkResponse(domain.EventUserStatus, nil),
		})

		assert.Equal(t, 0, connA.received(domain.EventUserStatus))
		assert.Equal(t, 1, connB.received(domain.EventUserStatus))
	})

	t.Run("publish 失敗只記 log", func(t *testing.T) {
		registry := NewConnectionRegistry()
		bridge := new(MockEventBridge)
		f := NewFanout(registry, bridge, "node-1")

		bridge.On("Publish", mock.Anything, mock.Anything).
			Return(domain.NewChatError(domain.CodeUnavailable, "redis down")).Once()

		// 不 panic, 不回傳錯誤
		f.ToAll(context.Background(), domain.OkResponse(domain.EventUserStatus, nil), "")
		bridge.AssertExpectations(t)
	})
}
