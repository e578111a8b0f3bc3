package app

import (
	"context"

	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/internal/chat/repository"
	"direct_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// EventBridge cross-node side of the fan-out (redis pub/sub)
type EventBridge interface {
	Publish(ctx context.Context, env repository.Envelope) error
}

// Fanout owns delivery of outbound events: local sessions through the
// registry, remote nodes through the event bridge
// 投遞是 best-effort, 單一 session 寫失敗只記 log
type Fanout struct {
	registry *ConnectionRegistry
	bridge   EventBridge
	origin   string
}

// NewFanout create Fanout; origin is this node's id for pub/sub dedupe
func NewFanout(registry *ConnectionRegistry, bridge EventBridge, origin string) *Fanout {
	return &Fanout{registry: registry, bridge: bridge, origin: origin}
}

// ToUser deliver to every live session of one user
// exceptSessionID 跳過發話的那條連線 (它走 direct ack)
func (f *Fanout) ToUser(ctx context.Context, userID string, resp domain.WSResponse, exceptSessionID string) {
	for _, s := range f.registry.SessionsOf(userID) {
		if s.ID == exceptSessionID {
			continue
		}
		if err := s.Send(resp); err != nil {
			logger.Log.Errorf("fanout write error:", err,
				zap.String("userID", userID), zap.String("sessionID", s.ID))
		}
	}
	f.publish(ctx, repository.Envelope{Origin: f.origin, Target: userID, Resp: resp})
}

// ToAll broadcast to every connected user except one
func (f *Fanout) ToAll(ctx context.Context, resp domain.WSResponse, exceptUserID string) {
	f.registry.Broadcast(resp, exceptUserID)
	f.publish(ctx, repository.Envelope{Origin: f.origin, ExceptUser: exceptUserID, Resp: resp})
}

// HandleRemote deliver an envelope published by another node
// 自己發的 envelope 本地已投遞過, 直接丟棄
func (f *Fanout) HandleRemote(env repository.Envelope) {
	if env.Origin == f.origin {
		return
	}
	if env.Target != "" {
		for _, s := range f.registry.SessionsOf(env.Target) {
			if err := s.Send(env.Resp); err != nil {
				logger.Log.Errorf("remote fanout write error:", err,
					zap.String("sessionID", s.ID))
			}
		}
		return
	}
	f.registry.Broadcast(env.Resp, env.ExceptUser)
}

func (f *Fanout) publish(ctx context.Context, env repository.Envelope) {
	if f.bridge == nil {
		return
	}
	if err := f.bridge.Publish(ctx, env); err != nil {
		logger.Log.Errorf("event bridge publish error:", err)
	}
}
