package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/pulse-social/pulse-api/internal/config"
	"github.com/pulse-social/pulse-api/internal/database"
	"github.com/pulse-social/pulse-api/internal/handler"
	"github.com/pulse-social/pulse-api/internal/middleware"
	"github.com/pulse-social/pulse-api/internal/models"
	"github.com/pulse-social/pulse-api/internal/repository"
	"github.com/pulse-social/pulse-api/internal/router"
	"github.com/pulse-social/pulse-api/internal/service"
	"github.com/pulse-social/pulse-api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Profile{},
		&models.Post{},
		&models.Like{},
		&models.Follow{},
		&models.Comment{},
		&models.Conversation{},
		&models.Message{},
		&models.ReadMarker{},
		&models.Notification{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NatsURL)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	defer natsConn.Close()

	validate := validator.New(validator.WithRequiredStructEnabled())

	postRepo := repository.NewPostRepository(db)
	likeRepo := repository.NewLikeRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	followRepo := repository.NewFollowRepository(db)
	chatRepo := repository.NewChatRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	profileRepo := repository.NewProfileRepository(db)

	blobs := store.NewRedisBlobStore(redisClient)

	notificationService := service.NewNotificationService(notificationRepo, profileRepo, redisClient, cfg.ChannelBase, natsConn, validate, logger)
	feedService := service.NewFeedService(postRepo, followRepo, blobs, cfg.FeedPageSize, logger)
	threadService := service.NewThreadService(commentRepo, postRepo, profileRepo, followRepo, notificationService, validate, logger)
	unreadService := service.NewUnreadService(chatRepo, logger)
	chatService := service.NewChatService(chatRepo, unreadService, redisClient, cfg.ChannelBase, cfg.ChatCacheTTL, natsConn, validate, logger)
	postService := service.NewPostService(postRepo, likeRepo, notificationService, validate, logger)
	followService := service.NewFollowService(followRepo, notificationService, logger)
	profileService := service.NewProfileService(profileRepo, validate, logger)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notificationService.Start(runCtx)
	chatService.Start(runCtx)

	feedHandler := handler.NewFeedHandler(feedService, validate, logger)
	postHandler := handler.NewPostHandler(postService, validate, logger)
	commentHandler := handler.NewCommentHandler(threadService, validate, logger)
	chatHandler := handler.NewChatHandler(chatService, unreadService, validate, logger)
	notificationHandler := handler.NewNotificationHandler(notificationService, validate, logger)
	followHandler := handler.NewFollowHandler(followService, logger)
	profileHandler := handler.NewProfileHandler(profileService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSOrigins})
	router.Register(app, cfg, router.Dependencies{
		FeedHandler:         feedHandler,
		PostHandler:         postHandler,
		CommentHandler:      commentHandler,
		ChatHandler:         chatHandler,
		NotificationHandler: notificationHandler,
		FollowHandler:       followHandler,
		ProfileHandler:      profileHandler,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
