package app

import (
	"context"
	"fmt"
	"time"

	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/internal/chat/repository"
	"direct_chat_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// ConversationUseCase resolves direct conversations and serves historical reads
type ConversationUseCase struct {
	convRepo repository.ConversationRepository
	msgRepo  repository.MessageRepository
	userRepo repository.UserRepository
	rooms    *RoomManager
}

// NewConversationUseCase create ConversationUseCase
func NewConversationUseCase(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	rooms *RoomManager,
) *ConversationUseCase {
	return &ConversationUseCase{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		userRepo: userRepo,
		rooms:    rooms,
	}
}

// ResolveDirect find or lazily create the single direct conversation of a pair
// create 撞到 unique index 表示對方搶先建好了, 重查一次拿那筆,
// 絕不會為同一組 pair 生出兩筆對話
func (uc *ConversationUseCase) ResolveDirect(ctx context.Context, from, to *domain.User) (*domain.Conversation, bool, error) {
	hash := domain.MembersHashOf(from.ID, to.ID)

	conv, err := uc.convRepo.FindByMembersHash(ctx, hash)
	if err != nil {
		return nil, false, err
	}
	if conv != nil {
		return conv, false, nil
	}

	now := time.Now()
	conv = &domain.Conversation{
		ID:   uuid.New().String(),
		Type: domain.ConversationTypeDirect,
		Name: fmt.Sprintf("%s_%s", from.Username, to.Username),
		Members: []domain.ConversationMember{
			{UserID: from.ID, Role: domain.RoleMember, JoinedAt: now},
			{UserID: to.ID, Role: domain.RoleMember, JoinedAt: now},
		},
		MemberIDs:   []string{from.ID, to.ID},
		MembersHash: hash,
		CreatedBy:   from.ID,
	}

	if err := uc.convRepo.Create(ctx, conv); err != nil {
		if domain.IsCode(err, domain.CodeConversationExists) {
			existing, lookupErr := uc.convRepo.FindByMembersHash(ctx, hash)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			if existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}

	// 雙方立刻加入新對話的房間, in-flight 的投遞不會漏接
	room := domain.ConversationRoom(conv.ID)
	uc.rooms.Join(from.ID, room)
	uc.rooms.Join(to.ID, room)
	logger.Log.Info("direct conversation created",
		zap.String("conversationID", conv.ID),
		zap.String("membersHash", hash))
	return conv, true, nil
}

// JoinRoom join the caller to the conversation's logical room
// 只有對話成員能加入, 查無或非成員都回 NOT_FOUND
func (uc *ConversationUseCase) JoinRoom(ctx context.Context, userID, conversationID string) error {
	if conversationID == "" {
		return domain.NewChatError(domain.CodeInvalidArgument, "conversation id required")
	}
	conv, err := uc.convRepo.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil || !conv.HasMember(userID) {
		return domain.NewChatError(domain.CodeNotFound, "conversation not found for user")
	}
	uc.rooms.Join(userID, domain.ConversationRoom(conversationID))
	return nil
}

// ListForUser non-archived conversations of the caller, other participant's
// public profile resolved, most recent activity first
func (uc *ConversationUseCase) ListForUser(ctx context.Context, userID string) ([]domain.ConversationView, error) {
	if userID == "" {
		return nil, domain.NewChatError(domain.CodeInvalidArgument, "user id required")
	}

	convs, err := uc.convRepo.FindByMember(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]domain.ConversationView, 0, len(convs))
	for _, conv := range convs {
		view := domain.ConversationView{Conversation: conv}
		otherID := conv.OtherMemberID(userID)
		if otherID != "" {
			other, err := uc.userRepo.FindByID(ctx, otherID)
			if err != nil {
				logger.Log.Errorf("resolve participant error:", err, zap.String("userID", otherID))
			} else if other != nil {
				profile := other.Public()
				view.OtherUser = &profile
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// Messages paginated history, newest-first window re-sorted oldest-first
// 歷史訊息只從這裡讀, reconnect 不會經由 fan-out 重播
func (uc *ConversationUseCase) Messages(ctx context.Context, viewerID, conversationID string, page, limit int) (*domain.MessagePage, error) {
	if conversationID == "" {
		return nil, domain.NewChatError(domain.CodeInvalidArgument, "conversation id required")
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if page < 1 {
		page = 1
	}

	conv, err := uc.convRepo.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil || !conv.HasMember(viewerID) {
		return nil, domain.NewChatError(domain.CodeNotFound, "conversation not found for user")
	}

	total, err := uc.msgRepo.CountVisible(ctx, conversationID, viewerID)
	if err != nil {
		return nil, err
	}

	skip := int64(page-1) * int64(limit)
	msgs, err := uc.msgRepo.FindPage(ctx, conversationID, viewerID, skip, int64(limit))
	if err != nil {
		return nil, err
	}

	// window 取的是 newest-first, 顯示用 oldest-first
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	profiles := make(map[string]*domain.PublicProfile, 2)
	for _, memberID := range conv.MemberIDs {
		user, err := uc.userRepo.FindByID(ctx, memberID)
		if err != nil {
			logger.Log.Errorf("resolve participant error:", err, zap.String("userID", memberID))
			continue
		}
		if user != nil {
			profile := user.Public()
			profiles[memberID] = &profile
		}
	}

	views := make([]domain.MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, domain.MessageView{
			Message:   m,
			Sender:    profiles[m.SenderID],
			Recipient: profiles[m.RecipientID],
		})
	}

	totalPages := 1
	if total > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}

	return &domain.MessagePage{
		Messages:        views,
		Total:           total,
		Page:            page,
		TotalPages:      totalPages,
		HasNextPage:     page < totalPages,
		HasPreviousPage: page > 1,
	}, nil
}
