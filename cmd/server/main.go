package main

import (
	"context"
	"os"
	"time"

	"github.com/warpfence/ptime/internal/config"
	"github.com/warpfence/ptime/internal/database"
	"github.com/warpfence/ptime/internal/handlers"
	"github.com/warpfence/ptime/internal/middleware"
	"github.com/warpfence/ptime/internal/presence"
	"github.com/warpfence/ptime/internal/services"
	"github.com/warpfence/ptime/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	log.Logger = logger

	db := database.Connect(cfg)
	database.AutoMigrate(db)

	store := newPresenceStore(cfg, logger)
	hub := ws.NewHub(logger)

	authService := services.NewAuthService(cfg.JWTSecret)
	sessionService := services.NewSessionService(db)
	messageService := services.NewMessageService(db, logger)
	participantService := services.NewParticipantService(db, logger)
	roomService := services.NewRoomService(hub, store, sessionService, messageService, participantService, cfg.PresenceTTL, logger)
	router := services.NewRouter(roomService, hub, store, messageService, cfg.PresenceTTL, cfg.MessageMaxLength, logger)

	monitor := services.NewPresenceMonitor(roomService, cfg.SweepInterval, logger)
	monitor.Start()
	defer monitor.Stop()

	wsHandler := handlers.NewWSHandler(router, roomService, cfg.SendBuffer, logger)
	messageHandler := handlers.NewMessageHandler(messageService, sessionService)
	participantHandler := handlers.NewParticipantHandler(roomService, sessionService, participantService)

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/ws", wsHandler.HandleWebSocket)

	api := r.Group("/api/v1")
	{
		sessions := api.Group("/sessions")
		sessions.Use(middleware.JWTAuth(authService))
		{
			sessions.GET("/:id/messages", messageHandler.ListMessages)
			sessions.GET("/:id/messages/stats", messageHandler.GetMessageStats)
			sessions.GET("/:id/participants", participantHandler.ListParticipants)
		}
	}

	logger.Info().Str("port", cfg.ServerPort).Msg("server starting")
	if err := r.Run(":" + cfg.ServerPort); err != nil {
		logger.Fatal().Err(err).Msg("failed to start server")
	}
}

func newPresenceStore(cfg *config.Config, logger zerolog.Logger) presence.Store {
	if cfg.RedisAddr == "" {
		logger.Warn().Msg("REDIS_ADDR not set, using in-memory presence store")
		return presence.NewMemoryStore()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to connect to redis")
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("redis connected")
	return presence.NewRedisStore(client, logger)
}
