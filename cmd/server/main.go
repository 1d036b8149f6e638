package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"echochat/internal/chat"
	"echochat/internal/config"
	"echochat/internal/db"
	"echochat/internal/logger"
	myMiddleware "echochat/internal/middleware"
	"echochat/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("bad configuration", zap.Error(err))
	}

	// Platform layer: Postgres + Redis.
	database, err := db.NewDatabase(cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	logger.Info("connected to postgres")

	if err := database.AutoMigrate(); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	logger.Info("connected to redis")

	// Auth collaborator.
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWTSecret)
	userHandler := user.NewHandler(userService)
	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	// Realtime core: registry, hub over the Redis bus, read receipts.
	registry := chat.NewRegistry()
	bus := chat.NewRedisBus(redisClient, "echochat-events")
	hub := chat.NewHub(registry, bus)
	go hub.Run(context.Background())

	chatRepo := chat.NewRepository(database.Conn)
	receipts := chat.NewReadReceiptCoordinator(chatRepo, registry, hub)
	chatHandler := chat.NewHandler(hub, chatRepo, receipts)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public routes.
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})

	// The websocket takes identity if a token is present, but an anonymous
	// connection is still allowed (it just never shows up as online).
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Optional)
		r.Get("/ws", chatHandler.ServeWs)
	})

	// Protected REST API.
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/users/search", userHandler.Search)
		r.Post("/api/messages", chatHandler.SendMessage)
		r.Get("/api/messages", chatHandler.GetConversation)
	})

	logger.Infof("server starting on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
