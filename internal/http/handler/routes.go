package handler

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"filescdn/internal/metrics"
	"filescdn/internal/service"
)

// RouteConfig carries what the routes need besides the service.
type RouteConfig struct {
	MaxChunkBytes int64
	Metrics       *metrics.Files
	// Gatherer backs /metrics; nil skips the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
//
// Layout, with base = {downloadRoute}/{collection}:
//   - GET    base/__config
//   - POST   base/__upload
//   - DELETE base/__upload/:id
//   - GET    base/:id and base/:id/:version/:name
//   - GET    /files, GET /files/:id, DELETE /files/:id
func RegisterRoutes(app *fiber.App, db *sql.DB, svc service.FileService, cfg RouteConfig) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", Liveness())
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	base := svc.Collection().BasePath()
	cdn := app.Group(base)
	// static segments first, :id would swallow them
	cdn.Get("/__config", ClientConfig(svc, cfg.MaxChunkBytes))
	cdn.Post("/__upload", UploadChunk(svc, cfg.MaxChunkBytes, cfg.Logger))
	cdn.Delete("/__upload/:id", AbortUpload(svc))
	cdn.Get("/:id/:version/:name", Download(svc, cfg.Metrics))
	cdn.Get("/:id", Download(svc, cfg.Metrics))

	files := app.Group("/files")
	files.Get("/", ListFiles(svc))
	files.Get("/:id", GetFile(svc))
	files.Delete("/:id", RemoveFile(svc))
}

// HealthCheck checks DB connectivity only.
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// Liveness is the plain liveness check kept for older orchestrators.
func Liveness() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}
