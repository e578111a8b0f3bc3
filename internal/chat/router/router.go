package router

import (
	"context"

	"direct_chat_service/internal/chat/app"
	"direct_chat_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes 注册聊天服务的路由
// /auth 不經過 JWT, 其餘 REST 與 websocket 都要帶 token
func RegisterRoutes(r *fiber.App, httpHandler *app.ChatHTTPHandler, chatWebsocket *app.ChatWebsocketHandler) {
	auth := r.Group("/auth")
	auth.Post("/register", httpHandler.Register)
	auth.Post("/login", httpHandler.Login)

	r.Use(middlewares.JWTMiddleware())

	r.Get("/auth/me", httpHandler.Me)
	r.Post("/auth/logout", httpHandler.Logout)

	users := r.Group("/users")
	users.Get("/profile", httpHandler.Me)
	users.Get("/", httpHandler.ListUsers)
	users.Get("/:id", httpHandler.GetUser)

	r.Get("/conversations", httpHandler.ListConversations)
	r.Get("/conversations/:id/messages", httpHandler.Messages)

	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		chatWebsocket.HandleConnection(context.Background(), c)
	}))
}
