package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pulse-social/pulse-api/internal/config"
	"github.com/pulse-social/pulse-api/internal/handler"
	"github.com/pulse-social/pulse-api/internal/middleware"
	"github.com/pulse-social/pulse-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	FeedHandler         *handler.FeedHandler
	PostHandler         *handler.PostHandler
	CommentHandler      *handler.CommentHandler
	ChatHandler         *handler.ChatHandler
	NotificationHandler *handler.NotificationHandler
	FollowHandler       *handler.FollowHandler
	ProfileHandler      *handler.ProfileHandler
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.FeedHandler != nil {
		feed := app.Group("/api/v1/feed", jwtMiddleware)
		deps.FeedHandler.Register(feed)
	}

	if deps.PostHandler != nil {
		posts := app.Group("/api/v1/posts", jwtMiddleware,
			middleware.RateLimit("posts", 30, time.Minute))
		deps.PostHandler.Register(posts)
	}

	if deps.CommentHandler != nil {
		comments := app.Group("/api/v1/comments", jwtMiddleware,
			middleware.RateLimit("comments", 60, time.Minute))
		deps.CommentHandler.Register(comments)
	}

	if deps.ChatHandler != nil {
		chat := app.Group("/api/v1/chat", jwtMiddleware)
		deps.ChatHandler.Register(chat)
	}

	if deps.NotificationHandler != nil {
		notifications := app.Group("/api/v1/notifications", jwtMiddleware)
		deps.NotificationHandler.Register(notifications)
	}

	if deps.FollowHandler != nil {
		follows := app.Group("/api/v1/follows", jwtMiddleware)
		deps.FollowHandler.Register(follows)
	}

	if deps.ProfileHandler != nil {
		profile := app.Group("/api/v1/profile", jwtMiddleware)
		deps.ProfileHandler.Register(profile)
	}
}
