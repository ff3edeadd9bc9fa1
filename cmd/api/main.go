package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"filescdn/docs"
	"filescdn/internal/collection"
	"filescdn/internal/config"
	"filescdn/internal/database"
	"filescdn/internal/database/migration"
	"filescdn/internal/events"
	handlers "filescdn/internal/http/handler"
	"filescdn/internal/http/middleware"
	"filescdn/internal/logging"
	"filescdn/internal/metrics"
	"filescdn/internal/offload"
	"filescdn/internal/otel"
	"filescdn/internal/repository/postgres"
	"filescdn/internal/service"
	"filescdn/internal/storage"
)

// @title Files CDN API
// @version 1.0
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	log := logging.New(os.Stdout, cfg.Collection.Debug, time.UTC)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		fatal(log, "tracing_init_failed", err)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		fatal(log, "db_connect_failed", err)
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, log); err != nil {
		fatal(log, "db_migration_failed", err)
	}

	repo := postgres.NewFilePostgres(db)
	opts := collection.FromConfig(cfg.Collection)

	// Optional S3-compatible offload of finished uploads
	var offloader *offload.Offloader
	if cfg.MinIO.Endpoint != "" {
		objStore, err := storage.NewOffloadBucket(cfg.MinIO)
		if err != nil {
			fatal(log, "object_storage_init_failed", err)
		}
		offloader = offload.New(objStore, repo, time.Duration(cfg.MinIO.PresignExpiry)*time.Second, log)
		opts.InterceptDownload = offloader.Intercept
	}

	coll, err := collection.New(opts)
	if err != nil {
		if collection.IsConfigurationError(err) {
			fatal(log, "collection_config_invalid", err)
		}
		fatal(log, "collection_init_failed", err)
	}

	var pubs []events.Publisher
	if cfg.Redis.Addr != "" {
		rp, err := events.NewRedisPublisher(ctx, cfg.Redis)
		if err != nil {
			fatal(log, "redis_connect_failed", err)
		}
		defer rp.Close()
		pubs = append(pubs, rp)
	}
	bus := events.NewBus(log, pubs...)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	fileMetrics, err := metrics.New(reg)
	if err != nil {
		fatal(log, "metrics_init_failed", err)
	}
	promMw, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		fatal(log, "metrics_init_failed", err)
	}

	fileSvc := service.NewFileService(coll, repo,
		service.WithBus(bus),
		service.WithMetrics(fileMetrics),
		service.WithLogger(log),
		service.WithMaxConcurrent(int64(cfg.Upload.MaxConcurrent)),
	)
	if offloader != nil {
		fileSvc.AddListener(events.AfterUpload, offloader.AfterUpload)
		fileSvc.AddListener(events.AfterRemove, offloader.AfterRemove)
	}

	if idle := time.Duration(cfg.Upload.SessionIdleSec) * time.Second; idle > 0 {
		go sweepIdleUploads(ctx, fileSvc, idle, log)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		// room for the multipart envelope around a chunk
		BodyLimit: cfg.Upload.MaxChunkBytes + 1<<20,
	})

	app.Use(otelfiber.Middleware())
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	// JSON Logger middleware for structured request logs
	app.Use(middleware.Logger())
	app.Use(promMw.Handler())
	if cfg.RateLimit.RPS > 0 {
		app.Use(middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute).Handler())
	}
	app.Use(middleware.Auth([]byte(cfg.Auth.JWTSecret)))

	handlers.RegisterRoutes(app, db, fileSvc, handlers.RouteConfig{
		MaxChunkBytes: int64(cfg.Upload.MaxChunkBytes),
		Metrics:       fileMetrics,
		Gatherer:      reg,
		Logger:        log,
	})

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info("server_starting", "addr", addr, "collection", coll.Name(), "base_path", coll.BasePath())
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			fatal(log, "server_failed", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("server_shutdown_failed", "error", err.Error())
	}
	if offloader != nil {
		if err := offloader.Wait(shutdownCtx); err != nil {
			log.Warn("offload_wait_interrupted", "error", err.Error())
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("tracing_shutdown_failed", "error", err.Error())
	}
	log.Info("server_stopped")
}

// sweepIdleUploads aborts uploads that stopped receiving chunks.
func sweepIdleUploads(ctx context.Context, svc service.FileService, idle time.Duration, log *slog.Logger) {
	t := time.NewTicker(idle / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := svc.Sweep(ctx, idle); n > 0 {
				log.Info("idle_uploads_swept", "count", n)
			}
		}
	}
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err.Error())
	os.Exit(1)
}
