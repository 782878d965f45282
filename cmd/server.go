package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Abraxas-365/jobqueue/pkg/config"
	"github.com/Abraxas-365/jobqueue/pkg/jobx"
	"github.com/Abraxas-365/jobqueue/pkg/jobx/jobxfiber"
	"github.com/Abraxas-365/jobqueue/pkg/logx"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
)

func main() {
	// 1. Logger is configured from LOG_* variables by logx itself
	logx.Info("🚀 Starting job queue server...")

	// 2. Configuration & dependency container
	cfg := config.Load()
	container := NewContainer(cfg)

	// 3. Create Fiber App with Config
	app := fiber.New(fiber.Config{
		AppName:               "Job Queue",
		DisableStartupMessage: true,
		ErrorHandler:          jobxfiber.ErrorHandler,
		BodyLimit:             4 * 1024 * 1024,
		IdleTimeout:           120 * time.Second,
	})

	// 4. Global Middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: cfg.Server.Debug,
	}))

	app.Use(requestid.New(requestid.Config{
		Header: fiber.HeaderXRequestID,
		Generator: func() string {
			return "req-" + uuid.NewString()
		},
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.Server.CORSOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, X-Request-ID",
		AllowMethods:  "GET, POST, DELETE, HEAD, OPTIONS",
		ExposeHeaders: "X-Request-ID",
	}))

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip} | ${reqHeader:X-Request-ID}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Local",
	}))

	// 5. Health Check & Info Endpoints
	app.Get("/health", healthCheckHandler(container))
	app.Get("/", infoHandler(cfg))

	// 6. Register Routes

	// ========================================================================
	// Convenience producers
	// ========================================================================
	// Routes: /queues/email/send, /queues/files/upload
	app.Post("/queues/email/send", sendEmailHandler(container.Manager))
	app.Post("/queues/files/upload", uploadFileHandler(container.Manager))

	// ========================================================================
	// Queue administration
	// ========================================================================
	// Routes: /queues/stats, /queues/:queue/*
	container.QueueHandlers.RegisterRoutes(app)
	logx.Info("✓ Queue routes registered")

	// 7. 404 Handler
	app.Use(notFoundHandler)

	// 8. Start engine, then server, with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	container.StartBackgroundServices(ctx)

	startServer(app, cfg.Server.Port)
	gracefulShutdown(app, cancel, container)
}

// ============================================================================
// Handler Functions
// ============================================================================

// healthCheckHandler folds every queue's health into one verdict.
func healthCheckHandler(container *Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snapshot := container.Manager.GetHealth(c.UserContext())
		overall := jobx.Overall(snapshot)

		status := fiber.StatusOK
		if overall == jobx.HealthUnhealthy {
			status = fiber.StatusServiceUnavailable
		}

		return c.Status(status).JSON(fiber.Map{
			"status":  overall,
			"service": "jobqueue",
			"version": container.Config.Server.Version,
			"backend": container.Config.Jobx.Backend,
			"queues":  snapshot,
		})
	}
}

// infoHandler returns basic API information
func infoHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		names := make([]string, 0, len(cfg.Jobx.Queues))
		for _, q := range cfg.Jobx.Queues {
			names = append(names, q.Name)
		}
		return c.JSON(fiber.Map{
			"service": "Job Queue",
			"version": cfg.Server.Version,
			"backend": cfg.Jobx.Backend,
			"queues":  names,
			"endpoints": fiber.Map{
				"health": "/health",
				"stats":  "/queues/stats",
				"jobs":   "/queues/:queue/jobs",
			},
		})
	}
}

// sendEmailHandler enqueues a send-email job from the request body.
func sendEmailHandler(m *jobx.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var data EmailJobData
		if err := c.BodyParser(&data); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid email payload")
		}
		if err := data.validate(); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		id, err := m.Enqueue(c.UserContext(), "email", "send-email", data)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"code":    fiber.StatusCreated,
			"message": "Email queued",
			"data": fiber.Map{
				"jobId":   id,
				"to":      strings.Join(data.To, ","),
				"subject": data.Subject,
			},
		})
	}
}

// uploadFileHandler enqueues an upload-file job from the request body.
func uploadFileHandler(m *jobx.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var data FileJobData
		if err := c.BodyParser(&data); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid file payload")
		}
		if err := data.validate(); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		id, err := m.Enqueue(c.UserContext(), "file", "upload-file", data)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"code":    fiber.StatusCreated,
			"message": "File queued for processing",
			"data": fiber.Map{
				"jobId":    id,
				"fileName": data.FileName,
			},
		})
	}
}

// notFoundHandler handles 404 errors
func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":      "Route not found",
		"code":       "NOT_FOUND",
		"path":       c.Path(),
		"method":     c.Method(),
		"message":    "The requested endpoint does not exist",
		"request_id": c.Get(fiber.HeaderXRequestID),
	})
}

// ============================================================================
// Server lifecycle
// ============================================================================

// startServer runs the listener in the background.
func startServer(app *fiber.App, port string) {
	go func() {
		logx.Info(strings.Repeat("=", 61))
		logx.Infof("🚀 Server listening on port %s", port)
		logx.Infof("💚 Health Check: http://localhost:%s/health", port)
		logx.Infof("📊 Queue Stats: http://localhost:%s/queues/stats", port)
		logx.Info(strings.Repeat("=", 61))

		if err := app.Listen(":" + port); err != nil {
			logx.Fatalf("Server error: %v", err)
		}
	}()
}

// gracefulShutdown stops the listener, stops leasing and drains in-flight
// jobs before closing connections.
func gracefulShutdown(app *fiber.App, stopEngine context.CancelFunc, container *Container) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logx.Infof("🛑 Received signal: %v", sig)
	logx.Info("Shutting down gracefully...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logx.Errorf("Server forced to shutdown: %v", err)
	}

	stopEngine()
	container.Cleanup()

	logx.Info("✅ Server exited successfully")
}
