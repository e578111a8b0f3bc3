package app

import (
	"testing"

	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRoomManager_JoinLeave(t *testing.T) {
	logger.SetNewNop()
	userID := uuid.New().String()
	room := domain.ConversationRoom(uuid.New().String())

	t.Run("離線時 logical join 仍然成立", func(t *testing.T) {
		registry := NewConnectionRegistry()
		m := NewRoomManager(registry)

		assert.True(t, m.Join(userID, room))
		assert.Contains(t, m.RoomsOf(userID), room)
		assert.Contains(t, m.MembersOf(room), userID)
	})

	t.Run("join 同步到所有 live session", func(t *testing.T) {
		registry := NewConnectionRegistry()
		m := NewRoomManager(registry)
		sess := newTestSession(userID)
		registry.Register(userID, sess)

		m.Join(userID, room)

		assert.True(t, sess.InRoom(room))
	})

	t.Run("重複 join 是 no-op", func(t *testing.T) {
		registry := NewConnectionRegistry()
		m := NewRoomManager(registry)

		m.Join(userID, room)
		assert.True(t, m.Join(userID, room))
		assert.Len(t, m.RoomsOf(userID), 1)
	})

	t.Run("leave 清掉 logical 與 transport 狀態", func(t *testing.T) {
		registry := NewConnectionRegistry()
		m := NewRoomManager(registry)
		sess := newTestSession(userID)
		registry.Register(userID, sess)
		m.Join(userID, room)

		assert.True(t, m.Leave(userID, room))
		assert.Empty(t, m.RoomsOf(userID))
		assert.Empty(t, m.MembersOf(room))
		assert.False(t, sess.InRoom(room))
	})

	t.Run("缺參數回 false", func(t *testing.T) {
		m := NewRoomManager(NewConnectionRegistry())
		assert.False(t, m.Join("", room))
		assert.False(t, m.Leave(userID, ""))
	})
}

func TestRoomManager_Reconcile(t *testing.T) {
	logger.SetNewNop()
	userID := uuid.New().String()
	roomA := domain.ConversationRoom(uuid.New().String())
	roomB := domain.ConversationRoom(uuid.New().String())

	t.Run("重連的 session 補回所有 logical rooms", func(t *testing.T) {
		registry := NewConnectionRegistry()
		m := NewRoomManager(registry)
		// 離線期間被加入兩個房間
		m.Join(userID, roomA)
		m.Join(userID, roomB)

		sess := newTestSession(userID)
		registry.Register(userID, sess)
		assert.False(t, sess.InRoom(roomA))

		assert.True(t, m.Reconcile(userID, sess.ID))
		assert.True(t, sess.InRoom(roomA))
		assert.True(t, sess.InRoom(roomB))
	})

	t.Run("session 不存在回 false", func(t *testing.T) {
		m := NewRoomManager(NewConnectionRegistry())
		assert.False(t, m.Reconcile(userID, "missing"))
	})
}

func TestRoomManager_EmitToRoom(t *testing.T) {
	logger.SetNewNop()
	userA := uuid.New().String()
	userB := uuid.New().String()
	room := domain.ConversationRoom(uuid.New().String())

	t.Run("只送給 transport join 過的 session, 跳過發話連線", func(t *testing.T) {
		registry := NewConnectionRegistry()
		m := NewRoomManager(registry)

		connA := &fakeConn{}
		sessA := domain.NewSession(uuid.New().String(), userA, connA)
		registry.Register(userA, sessA)
		m.Join(userA, room)

		connB := &fakeConn{}
		sessB := domain.NewSession(uuid.New().String(), userB, connB)
		registry.Register(userB, sessB)
		m.Join(userB, room)

		// userB 的第二條連線沒 join 房間
		connB2 := &fakeConn{}
		sessB2 := domain.NewSession(uuid.New().String(), userB, connB2)
		registry.Register(userB, sessB2)

		m.EmitToRoom(room, domain.OkResponse(domain.EventUserLeft, nil), sessA.ID)

		assert.Equal(t, 0, connA.received(domain.EventUserLeft))
		assert.Equal(t, 1, connB.received(domain.EventUserLeft))
		assert.Equal(t, 0, connB2.received(domain.EventUserLeft))
	})
}
