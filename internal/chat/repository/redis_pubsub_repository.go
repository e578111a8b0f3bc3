package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"direct_chat_service/internal/chat/domain"
	errprocess "direct_chat_service/pkg/err"
	"direct_chat_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// EventsChannel node-wide pub/sub channel for cross-node fan-out
const EventsChannel = "chat:events"

// Envelope one fan-out event on the wire
// Origin 是發佈節點 id, 訂閱端看到自己的 origin 要丟掉 (本地已經送過)
// Target 空字串表示 broadcast 給所有人 (ExceptUser 除外)
type Envelope struct {
	Origin     string            `json:"origin"`
	Target     string            `json:"target,omitempty"`
	ExceptUser string            `json:"exceptUser,omitempty"`
	Resp       domain.WSResponse `json:"resp"`
}

// RedisPubSub definition redis pub/sub event bridge
type RedisPubSub struct {
	client *redis.Client
}

// NewRedisPubSub create RedisPubSub
func NewRedisPubSub(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{client: client}
}

// Publish 將 envelope 序列化後發布到節點頻道
func (r *RedisPubSub) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return errprocess.Set(fmt.Sprintf("marshal envelope err: %v", err))
	}
	return r.client.Publish(ctx, EventsChannel, data).Err()
}

// Subscribe 訂閱節點頻道, 收到 envelope 後呼叫 handler 處理
// ctx 取消時結束迴圈並關閉訂閱
func (r *RedisPubSub) Subscribe(ctx context.Context, handler func(env Envelope)) error {
	sub := r.client.Subscribe(ctx, EventsChannel)
	go func() {
		ch := sub.Channel()
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
					logger.Log.Error("event bridge unmarshal error",
						zap.String("err", fmt.Sprintf("%v", err)))
					continue
				}
				handler(env)
			case <-ctx.Done():
				logger.Log.Info(fmt.Sprintf("%s , sub close", EventsChannel))
				sub.Close()
				return
			}
		}
	}()
	return nil
}
