package app

import (
	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/pkg/logger"
	"direct_chat_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ChatHTTPHandler 处理聊天服务的 HTTP 请求
type ChatHTTPHandler struct {
	userUC *UserUseCase
	convUC *ConversationUseCase
}

// NewChatHTTPHandler create ChatHTTPHandler
func NewChatHTTPHandler(userUC *UserUseCase, convUC *ConversationUseCase) *ChatHTTPHandler {
	return &ChatHTTPHandler{userUC: userUC, convUC: convUC}
}

// Register 注册新用户
func (h *ChatHTTPHandler) Register(c *fiber.Ctx) error {
	var req RegisterInput
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	logger.Log.Debug("Register request", zap.String("email", req.Email))

	profile, err := h.userUC.Register(c.Context(), req)
	if err != nil {
		return failJSON(c, err)
	}
	return c.JSON(fiber.Map{"user": profile, "message": "register success"})
}

// Login 用户登录
func (h *ChatHTTPHandler) Login(c *fiber.Ctx) error {
	type request struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	var req request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	logger.Log.Debug("Login", zap.String("Email", req.Email))

	token, profile, err := h.userUC.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"token": token, "user": profile, "message": "login success"})
}

// Me 当前用户资料
func (h *ChatHTTPHandler) Me(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing identity"})
	}

	profile, err := h.userUC.Profile(c.Context(), userID)
	if err != nil {
		return failJSON(c, err)
	}
	return c.JSON(fiber.Map{"user": profile})
}

// Logout 下线并清除 cookie
func (h *ChatHTTPHandler) Logout(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing identity"})
	}

	if err := h.userUC.Logout(c.Context(), userID); err != nil {
		return failJSON(c, err)
	}
	c.ClearCookie(middlewares.CookieToken)
	return c.JSON(fiber.Map{"message": "logout success"})
}

// ListUsers 用户目录 (不含自己)
func (h *ChatHTTPHandler) ListUsers(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing identity"})
	}

	profiles, err := h.userUC.ListUsers(c.Context(), userID)
	if err != nil {
		return failJSON(c, err)
	}
	return c.JSON(fiber.Map{"count": len(profiles), "users": profiles})
}

// GetUser 按 id 查用户
func (h *ChatHTTPHandler) GetUser(c *fiber.Ctx) error {
	if _, ok := currentUser(c); !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing identity"})
	}

	profile, err := h.userUC.Profile(c.Context(), c.Params("id"))
	if err != nil {
		return failJSON(c, err)
	}
	return c.JSON(fiber.Map{"user": profile})
}

// ListConversations 当前用户的会话列表
func (h *ChatHTTPHandler) ListConversations(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing identity"})
	}

	views, err := h.convUC.ListForUser(c.Context(), userID)
	if err != nil {
		return failJSON(c, err)
	}
	return c.JSON(fiber.Map{"conversations": views})
}

// Messages 会话历史分页
func (h *ChatHTTPHandler) Messages(c *fiber.Ctx) error {
	userID, ok := currentUser(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing identity"})
	}

	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 0)
	pageData, err := h.convUC.Messages(c.Context(), userID, c.Params("id"), page, limit)
	if err != nil {
		return failJSON(c, err)
	}
	return c.JSON(pageData)
}

// currentUser JWT middleware 放进 locals 的身份
func currentUser(c *fiber.Ctx) (string, bool) {
	userID, ok := c.Locals(middlewares.TokenUserID).(string)
	return userID, ok && userID != ""
}

// failJSON 依 error code 映射 HTTP status
func failJSON(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch domain.CodeOf(err) {
	case domain.CodeInvalidArgument, domain.CodeEmptyContent,
		domain.CodeInvalidReplyTarget, domain.CodeTooManyAttachments:
		status = fiber.StatusBadRequest
	case domain.CodeNotFound, domain.CodeRecipientNotFound:
		status = fiber.StatusNotFound
	case domain.CodeNotAuthorized:
		status = fiber.StatusForbidden
	case domain.CodeDuplicateRequestID, domain.CodeConversationExists:
		status = fiber.StatusConflict
	}
	return c.Status(status).JSON(fiber.Map{
		"error":   err.Error(),
		"errCode": string(domain.CodeOf(err)),
	})
}
