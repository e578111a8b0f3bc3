package app

import (
	"context"
	"encoding/json"
	"time"

	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/pkg/logger"
	"direct_chat_service/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChatWebsocketHandler 聚合一條 websocket 連線需要的所有 UseCase
type ChatWebsocketHandler struct {
	presenceUC *PresenceUseCase
	messageUC  *MessageUseCase
	convUC     *ConversationUseCase
	userUC     *UserUseCase
	rooms      *RoomManager
}

// NewChatWebsocketHandler create ChatWebsocketHandler
func NewChatWebsocketHandler(
	presenceUC *PresenceUseCase,
	messageUC *MessageUseCase,
	convUC *ConversationUseCase,
	userUC *UserUseCase,
	rooms *RoomManager,
) *ChatWebsocketHandler {
	return &ChatWebsocketHandler{
		presenceUC: presenceUC,
		messageUC:  messageUC,
		convUC:     convUC,
		userUC:     userUC,
		rooms:      rooms,
	}
}

// wsConn 把 *websocket.Conn 收斂成 domain.SessionConn
// 寫入序列化交給 Session.Send 的鎖, 這裡只做編碼與寫出
type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) WriteResponse(resp domain.WSResponse) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, b)
}

// HandleConnection 是 WebSocket 連線的進入點
// 連線存活期間 session 是唯一的身份載體; presence 的 online/offline
// 轉換交給 PresenceUseCase, 這裡只保證 disconnect 恰好跑一次
func (h *ChatWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	tokenUser := conn.Locals(middlewares.TokenUserID)
	userID, ok := tokenUser.(string)
	if !ok || userID == "" {
		logger.Log.Error("websocket missing user identity")
		conn.Close()
		return
	}

	sess := domain.NewSession(uuid.New().String(), userID, &wsConn{conn: conn})
	logger.Log.Info("websocket connected",
		zap.String("userID", userID),
		zap.String("sessionID", sess.ID))

	ticker := time.NewTicker(5 * time.Minute)
	ctxClose, cancel := context.WithCancel(context.Background())

	disconnected := false
	disconnect := func() {
		if disconnected {
			return
		}
		disconnected = true
		h.presenceUC.Disconnect(ctx, sess)
	}

	defer func() {
		ticker.Stop()
		disconnect()
		logger.Log.Info("websocket close", zap.String("userID", userID))
		conn.Close()
		cancel()
	}()

	//client發出close
	//fiber會自動處理(在read msg 回傳err),故需要SetCloseHandler另外接出
	conn.SetCloseHandler(func(code int, text string) error {
		logger.Log.Infof("WebSocket closed:", conn.RemoteAddr())
		return nil
	})

	//server發出ping之後client連線正常會回pong
	//fiber會自動處理回傳pong,故需要SetPongHandler另外接出
	conn.SetPongHandler(func(appData string) error {
		return nil
	})

	//client發出ping
	//fiber會自動處理ping,故需要SetPingHandler另外接出
	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(appData),
			time.Now().Add(time.Second),
		)
	})

	// 定期發送 Ping
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
					logger.Log.Errorf("Ping error:", err)
					return
				}
			case <-ctxClose.Done():
				return
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Infof("Connection closed:", err)
			} else {
				logger.Log.Errorf("websocket read error:", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			sess.Send(domain.WSResponse{Event: "error", Success: false, Error: "unknown message type"})
			continue
		}
		if stop := h.execWebsocketEvent(ctx, sess, message, disconnect); stop {
			return
		}
	}
}

// execWebsocketEvent dispatch one inbound envelope; returns true when the
// connection should stop reading (explicit disconnect)
func (h *ChatWebsocketHandler) execWebsocketEvent(ctx context.Context, sess *domain.Session, msg []byte, disconnect func()) bool {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		logger.Log.Errorf("json unmarshal error:", err)
		sess.Send(domain.WSResponse{Event: "error", Success: false, Error: "malformed request"})
		return false
	}

	var resp domain.WSResponse
	switch req.Event {
	//上線: 註冊 session, 補回 rooms, 首條連線才廣播 online
	case domain.EventConnectionInit:
		var p domain.ConnectionInitPayload
		if err := h.decode(req.Data, &p); err != nil {
			resp = domain.FailResponse(req.Event, err)
			break
		}
		if err := h.presenceUC.Connect(ctx, sess, p.PreviouslyConnected); err != nil {
			resp = domain.FailResponse(req.Event, err)
			break
		}
		resp = domain.OkResponse(req.Event, map[string]interface{}{"sessionId": sess.ID})

	//明確登出: 馬上跑 disconnect, 不等 read loop 收到 close
	case domain.EventConnectionDisconnect:
		disconnect()
		sess.Send(domain.OkResponse(req.Event, nil))
		return true

	//加入對話房間, 只有對話成員能加入
	case domain.EventConversationJoin:
		var p domain.ConversationRoomPayload
		if err := h.decode(req.Data, &p); err != nil {
			resp = domain.FailResponse(req.Event, err)
			break
		}
		resp = h.joinConversation(ctx, sess, p.ConversationID)

	//離開對話房間, 通知還留在房裡的人
	case domain.EventConversationLeave:
		var p domain.ConversationRoomPayload
		if err := h.decode(req.Data, &p); err != nil {
			resp = domain.FailResponse(req.Event, err)
			break
		}
		room := domain.ConversationRoom(p.ConversationID)
		h.rooms.Leave(sess.UserID, room)
		h.rooms.EmitToRoom(room, domain.OkResponse(domain.EventUserLeft, map[string]interface{}{
			"userId":         sess.UserID,
			"conversationId": p.ConversationID,
		}), sess.ID)
		resp = domain.OkResponse(req.Event, map[string]interface{}{"conversationId": p.ConversationID})

	//送訊息: 完整 pipeline, ack 直接回在這條連線上
	case domain.EventMessageSend:
		var p domain.SendMessagePayload
		if err := h.decode(req.Data, &p); err != nil {
			resp = domain.FailResponse(req.Event, err)
			break
		}
		result, err := h.messageUC.Send(ctx, sess.UserID, sess.ID, p)
		if err != nil {
			resp = domain.FailResponse(req.Event, err)
			// 重送的 requestId 帶回原始 ack, client 能對上自己的訊息
			if result != nil {
				resp.Payload = map[string]interface{}{
					"message":      result.Message,
					"conversation": result.Conversation,
				}
			}
			break
		}
		resp = domain.OkResponse(req.Event, map[string]interface{}{
			"message":      result.Message,
			"conversation": result.Conversation,
		})

	//刪除訊息 (for me / for everyone)
	case domain.EventMessageDelete:
		var p domain.DeleteMessagePayload
		if err := h.decode(req.Data, &p); err != nil {
			resp = domain.FailResponse(req.Event, err)
			break
		}
		deletion, err := h.messageUC.Delete(ctx, sess.UserID, p)
		if err != nil {
			resp = domain.FailResponse(req.Event, err)
			break
		}
		resp = domain.OkResponse(req.Event, map[string]interface{}{
			"messageId":   deletion.MessageID,
			"forEveryone": deletion.ForEveryone,
		})

	//清空與某人的對話, 只影響自己這側
	case domain.EventChatClear:
		var p domain.ClearChatPayload
		if err := h.decode(req.Data, &p); err != nil {
			resp = domain.FailResponse(req.Event, err)
			break
		}
		cleared, err := h.messageUC.ClearChat(ctx, sess.UserID, p)
		if err != nil {
			resp = domain.FailResponse(req.Event, err)
			break
		}
		resp = domain.OkResponse(req.Event, map[string]interface{}{"cleared": cleared})

	//更新個人資料並廣播
	case domain.EventUserUpdateProfile:
		var p domain.ProfileUpdate
		if err := h.decode(req.Data, &p); err != nil {
			resp = domain.FailResponse(req.Event, err)
			break
		}
		profile, err := h.userUC.UpdateProfile(ctx, sess.UserID, p)
		if err != nil {
			resp = domain.FailResponse(req.Event, err)
			break
		}
		resp = domain.OkResponse(req.Event, map[string]interface{}{"user": profile})

	default:
		resp = domain.FailResponse(req.Event,
			domain.NewChatError(domain.CodeInvalidArgument, "unknown event"))
	}

	if !resp.Success {
		logger.Log.Error("websocket event failed",
			zap.String("userID", sess.UserID),
			zap.String("event", string(req.Event)),
			zap.String("err", resp.Error))
	}
	if err := sess.Send(resp); err != nil {
		logger.Log.Errorf("write message error:", err)
	}
	return false
}

func (h *ChatWebsocketHandler) joinConversation(ctx context.Context, sess *domain.Session, conversationID string) domain.WSResponse {
	if err := h.convUC.JoinRoom(ctx, sess.UserID, conversationID); err != nil {
		return domain.FailResponse(domain.EventConversationJoin, err)
	}
	return domain.OkResponse(domain.EventConversationJoin, map[string]interface{}{
		"conversationId": conversationID,
	})
}

func (h *ChatWebsocketHandler) decode(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return domain.NewChatError(domain.CodeInvalidArgument, "malformed payload")
	}
	return nil
}
