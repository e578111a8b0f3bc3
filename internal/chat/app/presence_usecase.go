package app

import (
	"context"
	"time"

	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/internal/chat/repository"
	"direct_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// PresenceUseCase drives the per-connection lifecycle:
// Connecting -> Active (Connect) -> Disconnected (Disconnect)
type PresenceUseCase struct {
	registry *ConnectionRegistry
	rooms    *RoomManager
	userRepo repository.UserRepository
	fanout   *Fanout
}

// NewPresenceUseCase create PresenceUseCase
func NewPresenceUseCase(
	registry *ConnectionRegistry,
	rooms *RoomManager,
	userRepo repository.UserRepository,
	fanout *Fanout,
) *PresenceUseCase {
	return &PresenceUseCase{
		registry: registry,
		rooms:    rooms,
		userRepo: userRepo,
		fanout:   fanout,
	}
}

// Connect register the session, join the personal room and, only for the
// user's first live session, flip the identity online and broadcast
// previouslyConnected 表示這是斷線重連: 補回 logical rooms, 不重播上線
func (uc *PresenceUseCase) Connect(ctx context.Context, sess *domain.Session, previouslyConnected bool) error {
	total, err := uc.registry.Register(sess.UserID, sess)
	if err != nil {
		return err
	}

	uc.rooms.Join(sess.UserID, domain.PersonalRoom(sess.UserID))

	if previouslyConnected {
		uc.rooms.Reconcile(sess.UserID, sess.ID)
	}

	if total > 1 {
		// 已有其他裝置在線, presence 是 per-user 的, 不再廣播
		return nil
	}

	// presence 失敗只降級, 不中斷這條連線
	if err := uc.userRepo.UpdateStatus(ctx, sess.UserID, true, nil); err != nil {
		logger.Log.Errorf("mark online error:", err, zap.String("userID", sess.UserID))
	}
	uc.fanout.ToAll(ctx, statusResponse(sess.UserID, true, nil), sess.UserID)
	logger.Log.Info("user online", zap.String("userID", sess.UserID))
	return nil
}

// Disconnect unregister the session; the offline transition is computed from
// the post-unregister count so concurrent disconnects converge on exactly one
// offline broadcast
func (uc *PresenceUseCase) Disconnect(ctx context.Context, sess *domain.Session) *time.Time {
	removed, remaining := uc.registry.Unregister(sess.UserID, sess.ID)
	if !removed || remaining > 0 {
		return nil
	}

	// Unregister 之後到寫入/廣播之間, 搶先 reconnect 的 online 廣播可能
	// 先送出, 觀察者會短暫看到 offline-after-online
	now := time.Now()
	if err := uc.userRepo.UpdateStatus(ctx, sess.UserID, false, &now); err != nil {
		logger.Log.Errorf("mark offline error:", err, zap.String("userID", sess.UserID))
	}
	uc.fanout.ToAll(ctx, statusResponse(sess.UserID, false, &now), sess.UserID)
	logger.Log.Info("user offline",
		zap.String("userID", sess.UserID),
		zap.String("lastSeen", now.Format(time.RFC3339)))
	return &now
}

func statusResponse(userID string, online bool, lastSeen *time.Time) domain.WSResponse {
	payload := map[string]interface{}{
		"userId": userID,
		"online": online,
	}
	if lastSeen != nil {
		payload["lastSeen"] = lastSeen.Format(time.RFC3339)
	}
	return domain.OkResponse(domain.EventUserStatus, payload)
}
