package app

import (
	"sync"

	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// RoomManager keeps logical room membership and mirrors it onto live sessions
// logical membership 跟哪些連線實際 join 了房間是兩層:
// 離線時 Join 仍然成立, 之後 Reconcile 會補到新連線上
type RoomManager struct {
	mu       sync.Mutex
	registry *ConnectionRegistry

	userRooms map[string]map[string]struct{}
	roomUsers map[string]map[string]struct{}
}

// NewRoomManager create RoomManager
func NewRoomManager(registry *ConnectionRegistry) *RoomManager {
	return &RoomManager{
		registry:  registry,
		userRooms: make(map[string]map[string]struct{}),
		roomUsers: make(map[string]map[string]struct{}),
	}
}

// Join add a user to a logical room and join every live session to it
// 參數缺漏是 caller error: 記 log 回 false, 不往 transport 層丟
func (m *RoomManager) Join(userID, room string) bool {
	if userID == "" || room == "" {
		logger.Log.Warn("join: invalid userID or room",
			zap.String("userID", userID), zap.String("room", room))
		return false
	}

	m.mu.Lock()
	if rooms, ok := m.userRooms[userID]; ok {
		if _, joined := rooms[room]; joined {
			m.mu.Unlock()
			return true
		}
	}
	if _, ok := m.userRooms[userID]; !ok {
		m.userRooms[userID] = make(map[string]struct{})
	}
	if _, ok := m.roomUsers[room]; !ok {
		m.roomUsers[room] = make(map[string]struct{})
	}
	m.userRooms[userID][room] = struct{}{}
	m.roomUsers[room][userID] = struct{}{}
	memberCount := len(m.roomUsers[room])
	m.mu.Unlock()

	// transport join 在鎖外做, 每條 session 彼此獨立
	sessions := m.registry.SessionsOf(userID)
	for _, s := range sessions {
		s.JoinRoom(room)
	}
	if len(sessions) == 0 {
		logger.Log.Debug("no live sessions, logical join kept for reconnect",
			zap.String("userID", userID), zap.String("room", room))
	}

	logger.Log.Info("user joined room",
		zap.String("userID", userID),
		zap.String("room", room),
		zap.Int("roomUserCount", memberCount))
	return true
}

// Leave remove a user from a logical room, pruning empty entries
func (m *RoomManager) Leave(userID, room string) bool {
	if userID == "" || room == "" {
		logger.Log.Warn("leave: invalid userID or room",
			zap.String("userID", userID), zap.String("room", room))
		return false
	}

	m.mu.Lock()
	if rooms, ok := m.userRooms[userID]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(m.userRooms, userID)
		}
	}
	if users, ok := m.roomUsers[room]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(m.roomUsers, room)
		}
	}
	m.mu.Unlock()

	for _, s := range m.registry.SessionsOf(userID) {
		s.LeaveRoom(room)
	}

	logger.Log.Info("user left room",
		zap.String("userID", userID), zap.String("room", room))
	return true
}

// Reconcile replay every logical room of the user onto one resumed session
// 不重發 join 通知, 只補 transport 狀態
func (m *RoomManager) Reconcile(userID, sessionID string) bool {
	sess, ok := m.registry.Session(userID, sessionID)
	if !ok {
		logger.Log.Warn("reconcile: session not found",
			zap.String("userID", userID), zap.String("sessionID", sessionID))
		return false
	}

	m.mu.Lock()
	rooms := make([]string, 0, len(m.userRooms[userID]))
	for room := range m.userRooms[userID] {
		rooms = append(rooms, room)
	}
	m.mu.Unlock()

	for _, room := range rooms {
		sess.JoinRoom(room)
	}
	logger.Log.Info("session reconciled",
		zap.String("userID", userID),
		zap.String("sessionID", sessionID),
		zap.Int("rooms", len(rooms)))
	return true
}

// MembersOf snapshot of a room's member user ids
func (m *RoomManager) MembersOf(room string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	users := m.roomUsers[room]
	out := make([]string, 0, len(users))
	for id := range users {
		out = append(out, id)
	}
	return out
}

// RoomsOf snapshot of a user's logical rooms
func (m *RoomManager) RoomsOf(userID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	rooms := m.userRooms[userID]
	out := make([]string, 0, len(rooms))
	for r := range rooms {
		out = append(out, r)
	}
	return out
}

// EmitToRoom deliver a response to every session joined to the room at the
// transport level, optionally skipping one originating session
func (m *RoomManager) EmitToRoom(room string, resp domain.WSResponse, exceptSessionID string) {
	for _, userID := range m.MembersOf(room) {
		for _, s := range m.registry.SessionsOf(userID) {
			if s.ID == exceptSessionID || !s.InRoom(room) {
				continue
			}
			if err := s.Send(resp); err != nil {
				logger.Log.Errorf("room emit write error:", err,
					zap.String("room", room), zap.String("sessionID", s.ID))
			}
		}
	}
}
