package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/noteduco342/courtside-chat/internal/cache"
	"github.com/noteduco342/courtside-chat/internal/config"
	"github.com/noteduco342/courtside-chat/internal/handlers"
	"github.com/noteduco342/courtside-chat/internal/handlers/ws"
	"github.com/noteduco342/courtside-chat/internal/logging"
	"github.com/noteduco342/courtside-chat/internal/middleware"
	"github.com/noteduco342/courtside-chat/internal/repository"
	"github.com/noteduco342/courtside-chat/internal/scheduler"
	"github.com/noteduco342/courtside-chat/internal/security"
	"github.com/noteduco342/courtside-chat/internal/service"
	"github.com/noteduco342/courtside-chat/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
)

var serveCommand = &cli.Command{
	Name:   "serve",
	Usage:  "Run the HTTP and websocket server",
	Action: serve,
}

const shutdownTimeout = 15 * time.Second

func stores(db *gorm.DB) service.Stores {
	return service.Stores{
		Messages:      repository.NewMessageRepository(db),
		Conversations: repository.NewConversationRepository(db),
		Reactions:     repository.NewReactionRepository(db),
		Memberships:   repository.NewMembershipRepository(db),
		Presence:      repository.NewPresenceRepository(db),
		Users:         repository.NewUserRepository(db),
	}
}

// connectRedis returns nil when redis is unreachable; callers run without the
// page cache and presence mirror.
func connectRedis(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) *cache.RedisCache {
	rc := cache.NewRedisCache(cfg.Addr, cfg.Password, cfg.DB)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis unavailable, running without cache")
		_ = rc.Close()
		return nil
	}
	log.Info().Str("addr", cfg.Addr).Msg("redis cache connected")
	return rc
}

func serve(ctx *cli.Context) error {
	cfg := getConfig(ctx)
	log := getLogger(ctx)
	if err := cfg.Validate(); err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.InitDB(cfg.Database, logging.Component(log, "gorm"))
	if err != nil {
		return err
	}

	redisCache := connectRedis(runCtx, cfg.Redis, log)
	if redisCache != nil {
		defer redisCache.Close()
	}

	key, err := security.ProviderFromConfig(cfg.Chat).DataKey(runCtx)
	if err != nil {
		return err
	}
	cipher, err := security.NewContentCipher(key, logging.Component(log, "cipher"))
	if err != nil {
		return err
	}

	st := stores(db)
	hub := ws.NewHub(logging.Component(log, "ws"))
	go hub.Run(runCtx)

	conversationService := service.NewConversationService(st, cipher, logging.Component(log, "conversations"))
	messageService := service.NewMessageService(
		st,
		conversationService,
		cipher,
		cache.NewMessageCache(redisCache),
		hub,
		service.MessageLimits{
			MaxLength:       cfg.Chat.MaxMessageLength,
			DefaultPageSize: cfg.Chat.DefaultPageSize,
			MaxPageSize:     cfg.Chat.MaxPageSize,
		},
		logging.Component(log, "messages"),
	)
	reactionService := service.NewReactionService(st, hub, logging.Component(log, "reactions"))
	readStateService := service.NewReadStateService(st, hub, logging.Component(log, "read_state"))
	presenceService := service.NewPresenceService(st, cache.NewPresenceCache(redisCache), hub, logging.Component(log, "presence"))

	var objects service.ObjectStore
	if s3, err := storage.NewS3Storage(cfg.S3); err != nil {
		log.Warn().Err(err).Msg("object storage unavailable, image uploads disabled")
	} else {
		objects = s3
		log.Info().Str("bucket", cfg.S3.Bucket).Msg("object storage initialized")
	}
	mediaService := service.NewMediaService(st, objects, storage.ChatImageOptions(cfg.Media), logging.Component(log, "media"))

	sweeper, err := scheduler.NewPresenceSweeper(st.Presence, presenceService, cfg.Presence, logging.Component(log, "presence_sweeper"))
	if err != nil {
		return err
	}
	sweeper.Start(runCtx)

	app := fiber.New(fiber.Config{
		AppName:   "Courtside Chat",
		BodyLimit: cfg.Server.BodyLimit,
	})
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, " + middleware.CSRFHeader,
		AllowMethods:     "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		AllowCredentials: cfg.Server.AllowedOrigins != "" && cfg.Server.AllowedOrigins != "*",
	}))

	handlers.Router{
		Rooms:         handlers.NewRoomHandler(messageService, reactionService, readStateService, presenceService),
		Conversations: handlers.NewConversationHandler(conversationService, messageService),
		Media:         handlers.NewMediaHandler(mediaService, log),
		WebSocket: handlers.NewWebSocketHandler(
			hub,
			presenceService,
			readStateService,
			logging.Component(log, "ws"),
			log.GetLevel() <= zerolog.DebugLevel,
		),
		Metrics: adaptor.HTTPHandler(promhttp.Handler()),
	}.Mount(app, cfg.Server, cfg.Auth)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("server starting")
		errCh <- app.Listen(":" + cfg.Server.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-runCtx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
