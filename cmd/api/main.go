package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"favoro/config"
	"favoro/internal/auth"
	"favoro/internal/call"
	"favoro/internal/common/database"
	"favoro/internal/contact"
	"favoro/internal/events"
	"favoro/internal/media"
	"favoro/pkg/logger"
)

func main() {
	// Load config
	cfg := config.Load()

	// Initialize logger
	log := logger.NewWithLevel(cfg.AppEnv, cfg.LogLevel)
	defer log.Sync()

	// Optional event backlog
	redis, err := database.NewRedis(cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	if redis != nil {
		defer redis.Close()
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Core state
	directory := contact.NewDirectory(log)
	capture := newCapture(cfg.Media, log)
	callService := call.NewService(directory, capture, log)

	// Event hub for the UI shell
	hub := events.NewHub(redis, log)
	go hub.Run(ctx)
	hub.WatchDirectory(directory)
	callService.OnSessionStart(hub.WatchSession)
	log.Info("Event hub started")

	token, err := auth.GenerateToken(cfg.Auth.ClientID, cfg.Auth)
	if err != nil {
		log.Fatal("Failed to mint client token", zap.Error(err))
	}
	if cfg.AppEnv != "production" {
		log.Info("Client token issued", zap.String("client_id", cfg.Auth.ClientID), zap.String("token", token))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Media.AcquireTimeout + 10*time.Second,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// Routes
	api := app.Group("/api/v1", auth.RequireAuth(cfg.Auth))

	// Contact routes
	contactHandler := contact.NewHandler(directory)
	contactGroup := api.Group("/contacts")
	contactGroup.Get("/", contactHandler.GetContacts)
	contactGroup.Get("/search", contactHandler.SearchContacts)
	contactGroup.Post("/", contactHandler.AddContact)
	contactGroup.Put("/:id", contactHandler.UpdateContact)
	contactGroup.Delete("/:id", contactHandler.RemoveContact)

	// Call routes
	callHandler := call.NewHandler(callService, cfg.Media.AcquireTimeout)
	callGroup := api.Group("/calls")
	callGroup.Post("/", callHandler.StartCall)
	callGroup.Get("/current", callHandler.GetCurrentCall)
	callGroup.Post("/current/media", callHandler.AttachMedia)
	callGroup.Post("/current/media/skip", callHandler.SkipMedia)
	callGroup.Post("/current/camera", callHandler.ToggleCamera)
	callGroup.Post("/current/mic", callHandler.ToggleMic)
	callGroup.Post("/current/messages", callHandler.SendMessage)
	callGroup.Post("/current/chat-visibility", callHandler.SetChatVisible)
	callGroup.Post("/current/end", callHandler.EndCall)

	// WebSocket for change notifications
	app.Get("/ws/events", auth.RequireAuth(cfg.Auth), websocket.New(hub.Serve))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Graceful shutdown
	go func() {
		if err := app.Listen("127.0.0.1:" + cfg.AppPort); err != nil {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	if session, ok := callService.Current(); ok {
		session.EndCall()
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server shutdown complete")
}

func newCapture(cfg config.MediaConfig, log *logger.Logger) *media.Loopback {
	capture := media.NewLoopback(cfg.Latency, log)
	for _, kind := range cfg.Deny {
		capture.Deny(media.Kind(kind), media.ErrPermissionDenied)
	}
	return capture
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}
