package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/KaiyuWei/chat-box/internal/config"
	"github.com/KaiyuWei/chat-box/internal/db"
	apihttp "github.com/KaiyuWei/chat-box/internal/http"
	"github.com/KaiyuWei/chat-box/internal/llm"
	"github.com/KaiyuWei/chat-box/internal/repository"
	"github.com/KaiyuWei/chat-box/internal/service"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Ping(ctx, pool); err != nil {
		logger.Fatal("db ping", zap.Error(err))
	}

	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("db schema", zap.Error(err))
	}

	userRepo := repository.NewPgUserRepository(pool)
	convRepo := repository.NewPgConversationRepository(pool)
	messageRepo := repository.NewPgMessageRepository(pool)

	if err := userRepo.EnsureDummyUser(ctx); err != nil {
		logger.Fatal("seed dummy user", zap.Error(err))
	}

	llmClient := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, logger)
	chatSvc := service.NewChatService(llmClient, convRepo, messageRepo, logger)

	var chatLimiter service.ChatRateLimiter
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, rate limiting disabled", zap.Error(err))
		} else {
			chatLimiter = service.NewRedisChatRateLimiter(redisClient, time.Minute, 30)
		}
		cancel()
	}

	chatHandler := apihttp.NewChatHandler(logger, chatSvc, chatLimiter)
	convHandler := apihttp.NewConversationHandler(logger, convRepo)
	router := apihttp.NewRouter(logger, cfg.FrontendURL, chatHandler, convHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
