// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	_ "anonfeed/docs" // swagger docs
	"anonfeed/internal/bootstrap"
	"anonfeed/internal/config"
	"anonfeed/internal/database"
	"anonfeed/internal/middleware"
	"anonfeed/internal/models"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	rt             *bootstrap.Runtime
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	writeLimiter   *middleware.RateLimiter
	sessionLimiter *middleware.RateLimiter
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
}

// NewServer creates a new server instance with all dependencies
func NewServer(ctx context.Context, cfg *config.Config, opts bootstrap.Options) (*Server, error) {
	rt, err := bootstrap.Open(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	return NewServerWithRuntime(rt), nil
}

// NewServerWithRuntime creates a Server over an already-initialized runtime.
// Use this in tests or when a bootstrap layer owns DB/Redis setup.
func NewServerWithRuntime(rt *bootstrap.Runtime) *Server {
	s := &Server{
		config:         rt.Config,
		rt:             rt,
		promMiddleware: middleware.InitMetrics("anonfeed-api"),
		writeLimiter:   middleware.NewRateLimiter(rt.Redis, 10, time.Minute, middleware.FailOpen),
		sessionLimiter: middleware.NewRateLimiter(rt.Redis, 5, 10*time.Minute, middleware.FailOpen),
	}
	s.shutdownCtx, s.shutdownFn = context.WithCancel(context.Background())
	return s
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Spans first so the trace id is in locals for the context middleware.
	app.Use(middleware.TracingMiddleware())

	// Context Middleware to propagate request and trace ids
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS middleware should run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:3000,http://127.0.0.1:3000"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Idempotency-Key, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		ExposeHeaders:    "Retry-After, X-Trace-ID",
		AllowCredentials: origins != "*",
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; they should be handled by CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))

	// Identity is optional on every route; writes add RequireIdentity.
	if s.rt != nil && s.rt.Sessions != nil {
		app.Use(middleware.ResolveIdentity(s.rt.Sessions))
	}
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "anonfeed Metrics Dashboard",
	}))

	// Swagger documentation
	api.Get("/swagger/*", swagger.HandlerDefault)

	// Sessions
	api.Post("/session", s.sessionLimiter.Handler("sign_in"), s.SignIn)
	api.Get("/session", s.GetSession)
	api.Delete("/session", s.SignOut)

	api.Get("/flags", s.GetFeatureFlags)

	// Public feed reads
	api.Get("/posts", s.GetPosts)
	api.Get("/company/:domain/posts", s.GetCompanyPosts)
	api.Get("/posts/:id/comments", s.GetComments)

	// Writes need a signed-in identity
	requireIdentity := middleware.RequireIdentity()
	api.Post("/posts", requireIdentity, s.writeLimiter.Handler("create_post"), s.CreatePost)
	api.Post("/posts/:id/like", requireIdentity, s.LikePost)
	api.Post("/posts/:id/comments", requireIdentity, s.writeLimiter.Handler("create_comment"), s.CreateComment)
	api.Post("/comments/:id/like", requireIdentity, s.LikeComment)

	// Realtime feed hints; anonymous viewers may subscribe.
	api.Get("/ws/feed", s.FeedWebsocketUpgrade, s.FeedWebsocketHandler())
}

// LivenessCheck handles liveness probe requests
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} object{status=string,time=string}
// @Router /health/live [get]
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Redis is optional, so a
// missing client does not fail readiness but an unreachable one does.
// @Summary Readiness probe
// @Tags health
// @Produce json
// @Success 200 {object} object{status=string}
// @Failure 503 {object} object{status=string}
// @Router /health/ready [get]
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.rt.DB); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "disabled"
	if s.rt.Redis != nil {
		redisStatus = "healthy"
		if err := s.rt.Redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// App builds the Fiber application with middleware and routes.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName: "anonfeed API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// Start starts the server
func (s *Server) Start() error {
	app := s.App()

	// Wire the hub to Redis pub/sub, or to in-process delivery without Redis.
	if err := s.rt.Hub.StartWiring(s.shutdownCtx, s.rt.Notifier); err != nil {
		middleware.Logger.Error("failed to start feed hub wiring", slog.String("error", err.Error()))
	}

	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the server-scoped context to stop the subscriber goroutine
	s.shutdownFn()

	// Shutdown the HTTP/WS server
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	// Close WebSocket connections gracefully
	if err := s.rt.Hub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down feed hub", slog.String("error", err.Error()))
	}

	if err := s.rt.Close(); err != nil {
		middleware.Logger.Error("error closing runtime", slog.String("error", err.Error()))
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
