package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"steward/internal/api"
	"steward/internal/audit"
	"steward/internal/auth"
	"steward/internal/authz"
	"steward/internal/config"
	"steward/internal/dashboard"
	"steward/internal/export"
	"steward/internal/metadata"
	"steward/internal/params"
	"steward/internal/policy"
	"steward/internal/query"
	"steward/internal/storage"
	"steward/internal/store"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("config loaded",
		zap.Int("port", cfg.Server.Port),
		zap.String("db_driver", cfg.Database.Driver))

	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if err := db.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap system tables: %w", err)
	}

	registry := metadata.NewRegistry()
	if err := metadata.LoadAll(ctx, db, registry, logger); err != nil {
		logger.Warn("metadata load failed", zap.Error(err))
	}
	metadata.VerifyTables(ctx, db, registry, logger)

	dashboards := dashboard.NewRegistry()
	filter := policy.NewSensitiveFilter(cfg.SensitiveAttributes...)
	pol := policy.New(registry, dashboards, filter)
	sanitizer := params.NewSanitizer(registry, pol)

	cache := query.NewDefinitionCache(query.DefaultCacheTTL)
	composer := query.NewComposer(registry, db.Dialect, cache)
	loader := query.NewLoader(registry, db)
	counter := query.NewCounter(registry, db, logger, cfg.Counts.Parallel, cfg.Counts.MaxConcurrent)

	adapter, err := authz.Resolve(authz.Options{
		Strategy:   cfg.Authz.Adapter,
		Expression: cfg.Authz.Expression,
	}, logger)
	if err != nil {
		return fmt.Errorf("resolve authorization adapter: %w", err)
	}
	logger.Info("authorization adapter selected", zap.String("adapter", adapter.Name()))

	var backend storage.Backend
	if cfg.Storage.Driver == "local" {
		backend = storage.NewLocalStorage(cfg.Storage.LocalPath)
	}

	auditLog := audit.NewLog(db, filter, logger, 100, 5*time.Second)
	defer auditLog.Stop()

	exports := export.NewStore(db)
	generator := export.NewGenerator(exports, db, registry, composer, pol, backend, logger,
		cfg.Exports.BatchSize, cfg.Exports.RetentionDays)
	worker := export.NewWorker(generator, logger, cfg.Exports.Workers, cfg.Exports.QueueSize)
	worker.Start(ctx)
	defer worker.Stop()

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler(logger),
	})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	handler := api.NewHandler(api.Deps{
		DB:        db,
		Registry:  registry,
		Composer:  composer,
		Loader:    loader,
		Counter:   counter,
		Policy:    pol,
		Sanitizer: sanitizer,
		Adapter:   adapter,
		Audit:     auditLog,
		Exports:   exports,
		Worker:    worker,
		Storage:   backend,
		Logger:    logger,
	})
	login := api.NewLoginHandler(auth.NewActors(db), cfg.JWTSecret)
	api.RegisterRoutes(app, handler, login, api.RequireActor(cfg.JWTSecret))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("starting server", zap.String("addr", addr))
	return app.Listen(addr)
}

func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var appErr *api.AppError
		if errors.As(err, &appErr) {
			return c.Status(appErr.Status).JSON(api.ErrorResponse{Error: appErr})
		}

		code := fiber.StatusInternalServerError
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
		}

		logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(code).JSON(api.ErrorResponse{
			Error: api.NewAppError("INTERNAL", code, "Internal server error"),
		})
	}
}
