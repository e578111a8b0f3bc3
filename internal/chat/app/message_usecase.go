package app

import (
	"context"
	"strings"
	"time"

	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/internal/chat/repository"
	"direct_chat_service/pkg/database"
	"direct_chat_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ackTTL how long the original send ack stays answerable for retries
const ackTTL = 24 * time.Hour

// MessageUseCase the send/delete/clear pipeline for direct messages
type MessageUseCase struct {
	userRepo repository.UserRepository
	convRepo repository.ConversationRepository
	msgRepo  repository.MessageRepository
	convUC   *ConversationUseCase
	fanout   *Fanout
	ackCache database.RedisRepository[domain.SendResult]
}

// NewMessageUseCase create MessageUseCase
func NewMessageUseCase(
	userRepo repository.UserRepository,
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	convUC *ConversationUseCase,
	fanout *Fanout,
	ackCache database.RedisRepository[domain.SendResult],
) *MessageUseCase {
	return &MessageUseCase{
		userRepo: userRepo,
		convRepo: convRepo,
		msgRepo:  msgRepo,
		convUC:   convUC,
		fanout:   fanout,
		ackCache: ackCache,
	}
}

func ackKey(senderID, requestID string) string {
	return "ack:" + senderID + ":" + requestID
}

// Send run the full pipeline: validate, resolve the conversation, persist
// exactly once, bump the conversation preview, then fan out
// 重複的 requestId 回傳 (原始 ack 若還查得到, DUPLICATE_REQUEST_ID error);
// 呼叫端看 error code 決定回什麼, 不會再投遞第二次
func (uc *MessageUseCase) Send(ctx context.Context, senderID, originSessionID string, in domain.SendMessagePayload) (*domain.SendResult, error) {
	if strings.TrimSpace(in.To) == "" {
		return nil, domain.NewChatError(domain.CodeInvalidArgument, "recipient required")
	}
	if strings.TrimSpace(in.RequestID) == "" {
		return nil, domain.NewChatError(domain.CodeInvalidArgument, "request id required")
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, domain.NewChatError(domain.CodeEmptyContent, "message content is empty")
	}
	if len(in.Attachments) > domain.MaxAttachments {
		return nil, domain.NewChatError(domain.CodeTooManyAttachments, "too many attachments")
	}

	sender, err := uc.userRepo.FindByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if sender == nil {
		return nil, domain.NewChatError(domain.CodeNotFound, "sender not found")
	}
	recipient, err := uc.userRepo.FindByID(ctx, in.To)
	if err != nil {
		return nil, err
	}
	if recipient == nil {
		return nil, domain.NewChatError(domain.CodeRecipientNotFound, "recipient not found")
	}

	// reply 目標必須是這組 pair 之間真實存在的訊息
	if in.ReplyTo != "" {
		ok, err := uc.msgRepo.ExistsBetween(ctx, in.ReplyTo, sender.ID, recipient.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.NewChatError(domain.CodeInvalidReplyTarget, "reply target not found")
		}
	}

	conv, _, err := uc.convUC.ResolveDirect(ctx, sender, recipient)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	msg := &domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       sender.ID,
		RecipientID:    recipient.ID,
		Content:        content,
		RequestID:      in.RequestID,
		ReplyTo:        in.ReplyTo,
		Attachments:    in.Attachments,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := uc.msgRepo.Insert(ctx, msg); err != nil {
		if domain.IsCode(err, domain.CodeDuplicateRequestID) {
			return uc.cachedAck(ctx, sender.ID, in.RequestID), err
		}
		return nil, err
	}

	lm := domain.LastMessage{
		MessageID: msg.ID,
		SenderID:  sender.ID,
		Text:      content,
		CreatedAt: now,
	}
	// preview 有單調遞增保護, 落後的寫入會被過濾; 失敗只降級不回滾訊息
	if err := uc.convRepo.UpdateLastMessageIfNewer(ctx, conv.ID, lm); err != nil {
		logger.Log.Errorf("update last message error:", err, zap.String("conversationID", conv.ID))
	}
	if conv.LastMessage == nil || conv.LastMessage.CreatedAt.Before(now) {
		conv.LastMessage = &lm
	}

	senderProfile := sender.Public()
	recipientProfile := recipient.Public()
	result := &domain.SendResult{
		Message: domain.MessageView{
			Message:   *msg,
			Sender:    &senderProfile,
			Recipient: &recipientProfile,
		},
		Conversation: *conv,
	}

	if uc.ackCache != nil {
		if err := uc.ackCache.Set(ctx, ackKey(sender.ID, in.RequestID), *result, ackTTL); err != nil {
			logger.Log.Errorf("ack cache set error:", err, zap.String("requestID", in.RequestID))
		}
	}

	payload := map[string]interface{}{
		"message":      result.Message,
		"conversation": result.Conversation,
	}
	// 收件人所有裝置收 message:receive; 發話者其他裝置收 echo,
	// 發話的那條 session 自己走 direct ack, 跳過
	uc.fanout.ToUser(ctx, recipient.ID, domain.OkResponse(domain.EventMessageReceive, payload), "")
	uc.fanout.ToUser(ctx, sender.ID, domain.OkResponse(domain.EventMessageSend, payload), originSessionID)

	return result, nil
}

// cachedAck best-effort lookup of the original ack for a duplicate requestId
func (uc *MessageUseCase) cachedAck(ctx context.Context, senderID, requestID string) *domain.SendResult {
	if uc.ackCache == nil {
		return nil
	}
	cached, err := uc.ackCache.Get(ctx, ackKey(senderID, requestID))
	if err != nil {
		return nil
	}
	return &cached
}

// Delete delete-for-me hides the message for the caller only;
// delete-for-everyone is sender-only and tombstones it for both sides
func (uc *MessageUseCase) Delete(ctx context.Context, userID string, in domain.DeleteMessagePayload) (*domain.DeletionPayload, error) {
	if in.MessageID == "" {
		return nil, domain.NewChatError(domain.CodeInvalidArgument, "message id required")
	}

	msg, err := uc.msgRepo.FindByID(ctx, in.MessageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, domain.NewChatError(domain.CodeNotFound, "message not found")
	}
	if msg.SenderID != userID && msg.RecipientID != userID {
		return nil, domain.NewChatError(domain.CodeNotAuthorized, "not a participant of this message")
	}

	if !in.ForEveryone {
		// 重複的 delete-for-me 是 no-op, $addToSet 天然冪等
		if err := uc.msgRepo.AddDeletedFor(ctx, msg.ID, userID); err != nil {
			return nil, err
		}
		return &domain.DeletionPayload{MessageID: msg.ID, ForEveryone: false}, nil
	}

	if msg.SenderID != userID {
		return nil, domain.NewChatError(domain.CodeNotAuthorized, "only the sender can delete for everyone")
	}

	deletedAt := time.Now()
	if msg.IsDeleted {
		// 已 tombstone 過, 沿用第一次的刪除時間
		if msg.DeletedAt != nil {
			deletedAt = *msg.DeletedAt
		}
	} else if err := uc.msgRepo.SetDeletedForEveryone(ctx, msg.ID, userID, deletedAt); err != nil {
		return nil, err
	}

	payload := &domain.DeletionPayload{
		MessageID:   msg.ID,
		ForEveryone: true,
		DeletedBy:   userID,
		DeletedAt:   deletedAt.Format(time.RFC3339),
	}
	otherID := msg.RecipientID
	if otherID == userID {
		otherID = msg.SenderID
	}
	uc.fanout.ToUser(ctx, otherID, domain.OkResponse(domain.EventMessageDeleted, map[string]interface{}{
		"messageId":   payload.MessageID,
		"forEveryone": payload.ForEveryone,
		"deletedBy":   payload.DeletedBy,
		"deletedAt":   payload.DeletedAt,
	}), "")
	logger.Log.Info("message deleted for everyone",
		zap.String("messageID", msg.ID),
		zap.String("deletedBy", userID))
	return payload, nil
}

// ClearChat hide every message between the caller and the other user, for
// the caller only; the other side keeps its history
func (uc *MessageUseCase) ClearChat(ctx context.Context, userID string, in domain.ClearChatPayload) (int64, error) {
	if in.WithUserID == "" {
		return 0, domain.NewChatError(domain.CodeInvalidArgument, "withUserId required")
	}
	if err := validateUserID(in.WithUserID); err != nil {
		return 0, err
	}

	cleared, err := uc.msgRepo.ClearBetween(ctx, userID, in.WithUserID)
	if err != nil {
		return 0, err
	}
	logger.Log.Info("chat cleared",
		zap.String("userID", userID),
		zap.String("withUserID", in.WithUserID),
		zap.Int64("cleared", cleared))
	return cleared, nil
}
