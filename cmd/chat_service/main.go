package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"direct_chat_service/internal/chat/app"
	"direct_chat_service/internal/chat/domain"
	"direct_chat_service/internal/chat/repository"
	"direct_chat_service/internal/chat/router"
	"direct_chat_service/pkg/config"
	"direct_chat_service/pkg/database"
	"direct_chat_service/pkg/logger"
	testtool "direct_chat_service/pkg/test_tool"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceLogPath)
	cfg := config.LoadConfig[config.Chat](config.EnvConfig.ChatService, config.EnvConfig.ChatServiceYAMLPath)
	testtool.StartPprof()

	// 1. 建立 Mongo 連線 (使用者 / 對話 / 訊息)
	ctx := context.Background()
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.MongoSQL.User, cfg.MongoSQL.Password, cfg.MongoSQL.Host, cfg.MongoSQL.Port)
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    uri,
			RetryCount:    cfg.MongoSQL.RetryCount,
			RetryInterval: time.Duration(cfg.MongoSQL.RetryInterval),
		},
		cfg.MongoSQL.Database)
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to mongoDB database after retries",
			zap.String("address", fmt.Sprintf("[%s]", uri)),
			zap.Error(err),
		)
	}
	defer mongo.Close(ctx)

	// 2. 建立 Redis 連線 (Pub/Sub 與 ack cache)
	masterName, sentinel := config.GetRedisSetting()
	redisClient, err := database.NewRedisClient(masterName, sentinel, cfg.Redis.RedisDB)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}
	ackCache, err := database.NewRedisRepository[domain.SendResult](masterName, sentinel, cfg.Redis.RedisDB)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}

	// 3. 初始化 Repository
	userRepo := repository.NewMongoUserRepository(mongo.Database)
	convRepo := repository.NewMongoConversationRepository(mongo.Database)
	msgRepo := repository.NewMongoMessageRepository(mongo.Database)
	pubsub := repository.NewRedisPubSub(redisClient)

	// 唯一性約束 (email, members_hash, request_id) 靠 index, 先建好
	for name, ensure := range map[string]func(context.Context) error{
		"users":         userRepo.EnsureIndexes,
		"conversations": convRepo.EnsureIndexes,
		"messages":      msgRepo.EnsureIndexes,
	} {
		if err := ensure(ctx); err != nil {
			logger.Log.Fatal("ensure indexes failed",
				zap.String("collection", name), zap.Error(err))
		}
	}

	// 4. 初始化 UseCases
	registry := app.NewConnectionRegistry()
	rooms := app.NewRoomManager(registry)
	fanout := app.NewFanout(registry, pubsub, uuid.New().String())
	presenceUC := app.NewPresenceUseCase(registry, rooms, userRepo, fanout)
	convUC := app.NewConversationUseCase(convRepo, msgRepo, userRepo, rooms)
	messageUC := app.NewMessageUseCase(userRepo, convRepo, msgRepo, convUC, fanout, ackCache)
	userUC := app.NewUserUseCase(userRepo, fanout, cfg.Issuer)

	// 5. 訂閱其他節點的 fan-out
	if err := pubsub.Subscribe(ctx, fanout.HandleRemote); err != nil {
		logger.Log.Fatal(fmt.Sprintf("subscribe events err : %v", err))
	}

	// 6. 啟動 Fiber
	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	// 注册路由
	httpHandler := app.NewChatHTTPHandler(userUC, convUC)
	wsHandler := app.NewChatWebsocketHandler(presenceUC, messageUC, convUC, userUC, rooms)
	router.RegisterRoutes(r, httpHandler, wsHandler)

	// Listen (YAML 優先, 環境變數兜底)
	port := cfg.Port
	if port == "" {
		port = config.EnvConfig.ChatServicePort
	}
	port = ":" + port
	log.Printf("Chat Service listening on %s", port)
	if err := r.Listen(port); err != nil {
		log.Fatalf("Failed to start Fiber: %v", err)
	}
}
