package routes

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/beetlebooks/beetlebooks/internal/allocation"
	"github.com/beetlebooks/beetlebooks/internal/books"
	"github.com/beetlebooks/beetlebooks/internal/config"
	"github.com/beetlebooks/beetlebooks/internal/engine"
	"github.com/beetlebooks/beetlebooks/internal/middleware"
	"github.com/beetlebooks/beetlebooks/internal/obs"
	"github.com/beetlebooks/beetlebooks/internal/posting"
	"github.com/beetlebooks/beetlebooks/internal/reporting"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Engine engine.Engine
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce backend presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Engine == nil {
		return fmt.Errorf("ledger engine is required")
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(obs.Instrument())

	// Health and metrics
	RegisterHealthRoutes(app, d)

	// Repositories and services
	var repo books.Repository
	if d.DB != nil {
		repo = books.NewPostgresRepository(d.DB)
	} else {
		repo = books.NewMemoryRepository()
	}
	resolver := books.NewResolver(repo, d.Engine, d.Cache, d.Cfg.ResolverCacheTTL, d.Logger)
	postingSvc := posting.NewService(resolver, d.Engine, d.Logger)
	allocationSvc := allocation.NewService(repo, resolver, d.Engine, d.Logger)
	reportingSvc := reporting.NewService(repo, d.Engine, d.Logger)

	booksHandler := books.NewHandler(repo)
	postingHandler := posting.NewHandler(postingSvc)
	allocationHandler := allocation.NewHandler(allocationSvc)
	reportingHandler := reporting.NewHandler(reportingSvc)

	// API routes
	api := app.Group("/api/v1")

	RegisterReportingRoutes(api, reportingHandler)
	RegisterBooksReadRoutes(api, booksHandler)

	// Write routes carry token auth, audit logging, rate limiting and, when
	// redis is present, idempotency
	write := api.Group("",
		middleware.APIToken(d.Cfg.APITokenHash),
		middleware.Audit(d.Logger),
		middleware.WriteRateLimit(d.Cache, 0),
	)
	if d.Cache != nil {
		write = write.Group("", middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterPostingRoutes(write, postingHandler, d)
	RegisterAllocationRoutes(write, allocationHandler)
	RegisterMigrateRoute(write, booksHandler, d)

	return nil
}

// requireEnabled turns a configuration toggle into a route guard.
func requireEnabled(enabled bool, what string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !enabled {
			return fiber.NewError(http.StatusForbidden, what+" is disabled")
		}
		return c.Next()
	}
}
