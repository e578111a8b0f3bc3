package app

import (
	"fmt"
	"sync"

	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConnectionRegistry maps a user id to the set of live sessions
// 這是 process 內的共享狀態, 所有 map 操作都在鎖內且不含 I/O
type ConnectionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*domain.Session
}

// NewConnectionRegistry create ConnectionRegistry
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		sessions: make(map[string]map[string]*domain.Session),
	}
}

// Register add a live session for a user
// 同一個 session id 重複註冊是 no-op
// 回傳註冊後的 session 總數: presence 用 total==1 判斷首條連線,
// 跟 Unregister 一樣以 count transition 為準, 不看到達順序
func (r *ConnectionRegistry) Register(userID string, sess *domain.Session) (int, error) {
	if err := validateUserID(userID); err != nil {
		return 0, err
	}
	if sess == nil || sess.ID == "" {
		return 0, domain.NewChatError(domain.CodeInvalidArgument, "invalid session")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sessions[userID]
	if !ok {
		set = make(map[string]*domain.Session)
		r.sessions[userID] = set
	}
	if _, exists := set[sess.ID]; exists {
		return len(set), nil
	}
	set[sess.ID] = sess
	logger.Log.Info("session registered",
		zap.String("userID", userID),
		zap.String("sessionID", sess.ID),
		zap.Int("total", len(set)))
	return len(set), nil
}

// Unregister remove one session of a user
// 回傳 (是否真的移除, 移除後剩餘 session 數): presence lifecycle
// 必須用移除後的數量判斷 offline, 不能看 connection 自己的旗標
func (r *ConnectionRegistry) Unregister(userID, sessionID string) (bool, int) {
	if userID == "" || sessionID == "" {
		return false, 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sessions[userID]
	if !ok {
		return false, 0
	}
	if _, exists := set[sessionID]; !exists {
		return false, len(set)
	}
	delete(set, sessionID)
	remaining := len(set)
	if remaining == 0 {
		delete(r.sessions, userID)
	}
	logger.Log.Info("session unregistered",
		zap.String("userID", userID),
		zap.String("sessionID", sessionID),
		zap.Int("remaining", remaining))
	return true, remaining
}

// SessionsOf snapshot of a user's live sessions
func (r *ConnectionRegistry) SessionsOf(userID string) []*domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.sessions[userID]
	out := make([]*domain.Session, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	return out
}

// Session look up one specific live session
func (r *ConnectionRegistry) Session(userID, sessionID string) (*domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[userID][sessionID]
	return s, ok
}

// HasAny check the user has at least one live session
func (r *ConnectionRegistry) HasAny(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions[userID]) > 0
}

// Broadcast deliver a response to every live session except those of exceptUserID
// 寫入失敗只記 log, 廣播不會因單一連線失敗而中斷
func (r *ConnectionRegistry) Broadcast(resp domain.WSResponse, exceptUserID string) {
	r.mu.RLock()
	targets := make([]*domain.Session, 0)
	for userID, set := range r.sessions {
		if userID == exceptUserID {
			continue
		}
		for _, s := range set {
			targets = append(targets, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range targets {
		if err := s.Send(resp); err != nil {
			logger.Log.Errorf("broadcast write error:", err, zap.String("sessionID", s.ID))
		}
	}
}

func validateUserID(userID string) error {
	if userID == "" {
		return domain.NewChatError(domain.CodeInvalidArgument, "user id required")
	}
	if _, err := uuid.Parse(userID); err != nil {
		return domain.NewChatError(domain.CodeInvalidArgument, fmt.Sprintf("invalid user id: %s", userID))
	}
	return nil
}
