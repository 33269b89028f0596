package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/cassiomorais/paygate/internal/infrastructure/config"
	"github.com/cassiomorais/paygate/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/paygate/internal/infrastructure/redis"
	"github.com/cassiomorais/paygate/internal/providers"
	"github.com/cassiomorais/paygate/internal/providers/catalog"
	"github.com/cassiomorais/paygate/internal/repository/postgres"
	"github.com/cassiomorais/paygate/internal/service"
)

// App holds the process-wide resources shared by the api and worker.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Metrics  *observability.Metrics
	Registry *providers.Registry

	Transactions  *postgres.TransactionRepository
	Subscriptions *postgres.SubscriptionRepository
	Customers     *postgres.CustomerRepository
	Outbox        *postgres.OutboxRepository
	TxManager     *postgres.TxManager
	Reconciler    *service.Reconciler

	tracer *sdktrace.TracerProvider
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout).
		With().Str("service", serviceName).Str("instance", cfg.InstanceID).Logger()
	logger.Info().Msg("Starting")

	app := &App{Config: cfg, Logger: logger}

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			app.tracer = tp
			logger.Info().Msg("Tracing enabled")
		}
	}

	app.Metrics = observability.NewMetrics(metricsNamespace, nil)

	// A misconfigured provider aborts startup before any connection opens.
	app.Registry, err = providers.NewRegistry(cfg.Providers, catalog.Builders(),
		providers.WithLogger(logger),
		providers.WithMetrics(app.Metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("build provider registry: %w", err)
	}
	logger.Info().Strs("providers", app.Registry.Keys()).Msg("Provider registry ready")

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(cfg.Database.DatabaseURL()); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info().Msg("Migrations applied")
	}

	app.Pool, err = postgres.NewPool(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("Connected to PostgreSQL")

	app.Redis, err = infraRedis.NewClient(ctx, &cfg.Redis, logger)
	if err != nil {
		app.Pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Msg("Connected to Redis")

	app.Transactions = postgres.NewTransactionRepository(app.Pool)
	app.Subscriptions = postgres.NewSubscriptionRepository(app.Pool)
	app.Customers = postgres.NewCustomerRepository(app.Pool)
	app.Outbox = postgres.NewOutboxRepository(app.Pool)
	app.TxManager = postgres.NewTxManager(app.Pool)
	app.Reconciler = service.NewReconciler(
		app.Registry, app.Transactions, app.Subscriptions, app.Outbox, app.TxManager, app.Metrics, logger,
	)

	return app, nil
}

func (a *App) Close() {
	if a.tracer != nil {
		if err := observability.Shutdown(context.Background(), a.tracer); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to flush traces")
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
