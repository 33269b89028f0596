package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/paygate/internal/bootstrap"
	"github.com/cassiomorais/paygate/internal/controller"
	infraRedis "github.com/cassiomorais/paygate/internal/infrastructure/redis"
	"github.com/cassiomorais/paygate/internal/service"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "paygate-api", "paygate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Services ---
	transactionService := service.NewTransactionService(app.Registry, app.Transactions, app.Reconciler, app.Logger)
	subscriptionService := service.NewSubscriptionService(app.Registry, app.Subscriptions, app.Reconciler, app.Logger)
	customerService := service.NewCustomerService(app.Registry, app.Customers, app.Logger)
	productService := service.NewProductService(app.Registry)

	// --- Build router ---
	routerDeps := controller.RouterDeps{
		Registry:            app.Registry,
		TransactionService:  transactionService,
		SubscriptionService: subscriptionService,
		CustomerService:     customerService,
		ProductService:      productService,
		Reconciler:          app.Reconciler,
		IdempotencyStore:    infraRedis.NewIdempotencyStore(app.Redis, app.Config.Idempotency.TTL),
		HealthChecks: []controller.HealthCheck{
			{Name: "database", Pinger: app.Pool},
			{Name: "redis", Pinger: controller.PingFunc(func(ctx context.Context) error { return app.Redis.Ping(ctx).Err() })},
		},
		Metrics: app.Metrics,
		Server:  app.Config.Server,
		Auth:    app.Config.Auth,
		Logger:  app.Logger,
	}
	if !app.Config.Observability.EnableMetrics {
		routerDeps.MetricsHandler = http.NotFoundHandler()
	}
	if app.Config.Auth.JWTSecret == "" {
		app.Logger.Warn().Msg("auth.jwt_secret is empty, API authentication disabled")
	}
	router := controller.NewRouter(routerDeps)

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
