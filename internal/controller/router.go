package controller

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/cassiomorais/paygate/internal/infrastructure/config"
	"github.com/cassiomorais/paygate/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/paygate/internal/middleware"
	"github.com/cassiomorais/paygate/internal/providers"
	"github.com/cassiomorais/paygate/internal/service"
)

const webhookRateLimit = 600

type RouterDeps struct {
	Registry            *providers.Registry
	TransactionService  *service.TransactionService
	SubscriptionService *service.SubscriptionService
	CustomerService     *service.CustomerService
	ProductService      *service.ProductService
	Reconciler          *service.Reconciler
	// IdempotencyStore is optional; nil disables Idempotency-Key handling.
	IdempotencyStore customMW.IdempotencyStore
	HealthChecks     []HealthCheck
	Metrics          *observability.Metrics
	// MetricsHandler defaults to the global Prometheus registry.
	MetricsHandler http.Handler
	Server         config.ServerConfig
	Auth           config.AuthConfig
	Logger         zerolog.Logger
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()
	if deps.Metrics == nil {
		deps.Metrics = observability.NewNopMetrics()
	}

	requestTimeout := deps.Server.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Server.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", customMW.IdempotencyHeader},
		ExposedHeaders:   []string{"Link", "Location"},
		AllowCredentials: deps.Server.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	var metricsOpts []customMW.MetricsOption
	if deps.Registry != nil {
		metricsOpts = append(metricsOpts, customMW.WithProviderLabels(deps.Registry.Has))
	}
	r.Use(customMW.Metrics(deps.Metrics, metricsOpts...))
	r.Use(customMW.RateLimit(deps.Server.RateLimit))
	if deps.Server.MaxBodyBytes > 0 {
		r.Use(chimw.RequestSize(deps.Server.MaxBodyBytes))
	}

	healthH := NewHealthController(deps.HealthChecks...)
	transactionH := NewTransactionController(deps.TransactionService)
	subscriptionH := NewSubscriptionController(deps.SubscriptionService)
	customerH := NewCustomerController(deps.CustomerService)
	productH := NewProductController(deps.ProductService)
	providerH := NewProviderController(deps.Registry)
	webhookH := NewWebhookController(deps.Reconciler)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		// Webhooks authenticate by provider signature, not JWT.
		r.With(customMW.RateLimitByProvider(webhookRateLimit, "provider")).
			Post("/webhooks/{provider}", webhookH.Handle)

		r.Group(func(r chi.Router) {
			if deps.Auth.JWTSecret != "" {
				r.Use(customMW.RequireAuth(deps.Auth.JWTSecret))
			}

			idempotent := func(next http.Handler) http.Handler { return next }
			if deps.IdempotencyStore != nil {
				idempotent = customMW.Idempotency(deps.IdempotencyStore, deps.Logger)
			}

			r.Get("/providers", providerH.List)

			// Transactions
			r.With(idempotent).Post("/transactions", transactionH.Create)
			r.Get("/transactions", transactionH.List)
			r.Get("/transactions/{id}", transactionH.Get)
			r.Get("/transactions/{id}/status", transactionH.Status)
			r.Get("/transactions/{id}/pay", transactionH.PaymentURL)
			r.Get("/providers/{provider}/transactions/{ref}/status", transactionH.StatusByReference)

			// Subscriptions
			r.With(idempotent).Post("/subscriptions", subscriptionH.Create)
			r.Get("/subscriptions/{id}", subscriptionH.Get)
			r.Put("/subscriptions/{id}", subscriptionH.Update)
			r.Delete("/subscriptions/{id}", subscriptionH.Cancel)

			// Customers and payment methods
			r.With(idempotent).Post("/customers", customerH.Create)
			r.Get("/customers/{id}", customerH.Get)
			r.Get("/providers/{provider}/customers/{ref}/payment-method", customerH.HasPaymentMethod)
			r.Post("/providers/{provider}/customers/{ref}/default-payment-method", customerH.SetDefaultPaymentMethod)
			r.With(idempotent).Post("/payment-setup-sessions", customerH.CreateSetupSession)

			r.With(idempotent).Post("/products", productH.Create)
		})
	})

	return r
}
