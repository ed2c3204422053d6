// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/amirphl/lead-lifecycle/app/dto"
	"github.com/amirphl/lead-lifecycle/app/handlers"
	"github.com/amirphl/lead-lifecycle/app/middleware"
	"github.com/amirphl/lead-lifecycle/app/services"
	"github.com/amirphl/lead-lifecycle/utils"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// Options tunes the router. Zero values fall back to defaults.
type Options struct {
	AllowOrigins     []string
	RateLimitPerMin  int
	MetricsPath      string
	MetricsEnabled   bool
	BodyLimit        int
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	ServiceVersion   string
	MaintenanceLimit int
	HealthChecks     []HealthCheck
	HealthTimeout    time.Duration
}

// HealthCheck reports whether one backing dependency is reachable
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

func (o Options) withDefaults() Options {
	if len(o.AllowOrigins) == 0 {
		o.AllowOrigins = []string{"*"}
	}
	if o.RateLimitPerMin <= 0 {
		o.RateLimitPerMin = 2000
	}
	if o.MaintenanceLimit <= 0 {
		o.MaintenanceLimit = 60
	}
	if o.MetricsPath == "" {
		o.MetricsPath = "/metrics"
	}
	if o.BodyLimit <= 0 {
		o.BodyLimit = 1 * 1024 * 1024
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 60 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 60 * time.Second
	}
	if o.HealthTimeout <= 0 {
		o.HealthTimeout = 3 * time.Second
	}
	if o.ServiceVersion == "" {
		o.ServiceVersion = "1.0.0"
	}
	return o
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app                *fiber.App
	opts               Options
	logger             *zap.Logger
	maintenanceHandler handlers.LeadMaintenanceHandlerInterface
	leadHandler        handlers.LeadHandlerInterface
	authHandler        handlers.AuthHandlerInterface
	auditHandler       handlers.AuditLogHandlerInterface
	authMiddleware     *middleware.AuthMiddleware
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	maintenanceHandler handlers.LeadMaintenanceHandlerInterface,
	leadHandler handlers.LeadHandlerInterface,
	authHandler handlers.AuthHandlerInterface,
	auditHandler handlers.AuditLogHandlerInterface,
	authMiddleware *middleware.AuthMiddleware,
	logger *zap.Logger,
	opts Options,
) Router {
	opts = opts.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &FiberRouter{
		opts:               opts,
		logger:             logger,
		maintenanceHandler: maintenanceHandler,
		leadHandler:        leadHandler,
		authHandler:        authHandler,
		auditHandler:       auditHandler,
		authMiddleware:     authMiddleware,
	}

	r.app = fiber.New(fiber.Config{
		AppName:      "Lead Lifecycle API",
		ServerHeader: "lead-lifecycle",
		ErrorHandler: r.errorHandler,
		BodyLimit:    opts.BodyLimit,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  opts.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})
	return r
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	r.setupMiddleware()

	if r.opts.MetricsEnabled {
		r.app.Get(r.opts.MetricsPath, adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := r.app.Group("/api/v1")
	api.Get("/health", r.healthCheck)

	api.Use(limiter.New(limiter.Config{
		Max:          r.opts.RateLimitPerMin,
		Expiration:   1 * time.Minute,
		KeyGenerator: func(c fiber.Ctx) string { return c.IP() },
		LimitReached: rateLimitReached,
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/api/v1/health"
		},
	}))

	// Maintenance triggers authenticate with the shared API key inside the flow; run history needs an admin token
	maintenance := api.Group("/maintenance")
	maintenance.Use(limiter.New(limiter.Config{
		Max:          r.opts.MaintenanceLimit,
		Expiration:   1 * time.Minute,
		KeyGenerator: func(c fiber.Ctx) string { return c.IP() },
		LimitReached: rateLimitReached,
	}))
	maintenance.Post("/leads/escalate-stale", r.maintenanceHandler.EscalateStaleLeads)
	maintenance.Post("/leads/purge-aged", r.maintenanceHandler.PurgeAgedLeads)
	maintenance.Get("/runs/:operator/last",
		r.authMiddleware.Authenticate(),
		r.authMiddleware.RequireRole(services.RoleAdmin),
		r.maintenanceHandler.LastRun,
	)
	maintenance.Get("/audit-logs",
		r.authMiddleware.Authenticate(),
		r.authMiddleware.RequireRole(services.RoleAdmin),
		r.auditHandler.List,
	)

	auth := api.Group("/auth")
	auth.Post("/refresh", r.authHandler.Refresh)
	auth.Post("/logout", r.authMiddleware.Authenticate(), r.authHandler.Logout)

	leads := api.Group("/leads", r.authMiddleware.Authenticate())
	leads.Post("/", r.leadHandler.Create)
	leads.Get("/", r.leadHandler.List)
	leads.Get("/export", r.authMiddleware.RequireRole(services.RoleAdmin), r.leadHandler.Export)
	leads.Get("/:id", r.leadHandler.Get)
	leads.Patch("/:id/status", r.leadHandler.UpdateStatus)

	r.app.Use(r.notFoundHandler)

	r.logger.Info("Routes configured")
}

func rateLimitReached(c fiber.Ctx) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
		Success: false,
		Message: "Too many requests. Please try again later.",
		Error: dto.ErrorDetail{
			Code: "RATE_LIMIT_EXCEEDED",
		},
	})
}

// setupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header:    fiber.HeaderXRequestID,
		Generator: uuid.NewString,
	}))

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			r.logger.Error("panic recovered",
				zap.String("request_id", requestid.FromContext(c)),
				zap.Any("error", e),
				zap.String("path", c.Path()),
				zap.String("method", c.Method()),
				zap.String("ip", c.IP()),
			)
		},
	}))

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:             "1; mode=block",
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             "DENY",
		HSTSMaxAge:                31536000,
		ContentSecurityPolicy:     "default-src 'none'; frame-ancestors 'none';",
		ReferrerPolicy:            "strict-origin-when-cross-origin",
		CrossOriginOpenerPolicy:   "same-origin",
		CrossOriginResourcePolicy: "same-origin",
		XDNSPrefetchControl:       "off",
		XDownloadOptions:          "noopen",
		XPermittedCrossDomain:     "none",
	}))

	r.app.Use(cors.New(cors.Config{
		AllowOrigins: r.opts.AllowOrigins,
		AllowMethods: []string{"GET", "POST", "PATCH", "HEAD", "OPTIONS"},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			"X-Request-ID",
			handlers.HeaderAPIKey,
		},
		ExposeHeaders: []string{
			"X-Request-ID",
			"Content-Disposition",
		},
		MaxAge: utils.CORSMaxAge,
	}))

	r.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	r.app.Use(middleware.Metrics("/api/v1/health", r.opts.MetricsPath))
	r.app.Use(r.accessLog)
}

// accessLog writes one structured line per request
func (r *FiberRouter) accessLog(c fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	if c.Path() == "/api/v1/health" || c.Path() == r.opts.MetricsPath {
		return err
	}

	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}

	fields := []zap.Field{
		zap.String("request_id", requestid.FromContext(c)),
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", status),
		zap.Duration("latency", time.Since(start)),
		zap.String("ip", c.IP()),
		zap.String("user_agent", c.Get(fiber.HeaderUserAgent)),
	}
	if status >= fiber.StatusInternalServerError {
		r.logger.Warn("request completed", fields...)
	} else {
		r.logger.Info("request completed", fields...)
	}
	return err
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	r.logger.Info("Starting server", zap.String("address", address))
	return r.app.Listen(address, fiber.ListenConfig{DisableStartupMessage: true})
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

// healthCheck answers 503 with status "degraded" when any dependency check fails
func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), r.opts.HealthTimeout)
	defer cancel()

	status := "ok"
	dependencies := make(fiber.Map, len(r.opts.HealthChecks))
	for _, hc := range r.opts.HealthChecks {
		if err := hc.Check(ctx); err != nil {
			r.logger.Warn("health check failed", zap.String("dependency", hc.Name), zap.Error(err))
			dependencies[hc.Name] = "unavailable"
			status = "degraded"
			continue
		}
		dependencies[hc.Name] = "ok"
	}

	data := fiber.Map{
		"status":       status,
		"timestamp":    utils.UTCNow().Unix(),
		"version":      r.opts.ServiceVersion,
		"service":      "lead-lifecycle",
		"dependencies": dependencies,
	}
	if status != "ok" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.APIResponse{
			Success: false,
			Message: "Service is degraded",
			Data:    data,
			Error:   dto.ErrorDetail{Code: "SERVICE_DEGRADED"},
		})
	}
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data:    data,
	})
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}

// errorHandler renders errors that escaped the handlers
func (r *FiberRouter) errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "An internal server error occurred"
	errCode := "INTERNAL_ERROR"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		if code < fiber.StatusInternalServerError {
			message = fe.Message
			errCode = strings.ToUpper(strings.ReplaceAll(http.StatusText(code), " ", "_"))
		}
	}

	r.logger.Error("unhandled request error",
		zap.Int("status", code),
		zap.String("request_id", requestid.FromContext(c)),
		zap.String("path", c.Path()),
		zap.Error(err),
	)

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: errCode,
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}
