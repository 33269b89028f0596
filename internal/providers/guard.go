package providers

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/cassiomorais/paygate/internal/infrastructure/observability"
)

var tracer = otel.Tracer("paygate/providers")

// guard wraps an Adapter with payment_details validation, a circuit breaker,
// a per-call timeout, tracing and metrics. ProcessWebhook passes through.
type guard struct {
	key       string
	inner     Adapter
	validator *detailsValidator
	breaker   *gobreaker.CircuitBreaker[any]
	timeout   time.Duration
	metrics   *observability.Metrics
}

type guardSettings struct {
	Threshold uint32
	OpenFor   time.Duration
	Timeout   time.Duration
}

func newGuard(key string, inner Adapter, s guardSettings, metrics *observability.Metrics) (*guard, error) {
	validator, err := newDetailsValidator(inner)
	if err != nil {
		return nil, domainErrors.NewProviderError(key, "configure", domainErrors.ErrProviderConfiguration, "invalid payment_details schema", err)
	}

	threshold := s.Threshold
	if threshold == 0 {
		threshold = 10
	}
	openFor := s.OpenFor
	if openFor <= 0 {
		openFor = 30 * time.Second
	}

	g := &guard{
		key:       key,
		inner:     inner,
		validator: validator,
		timeout:   s.Timeout,
		metrics:   metrics,
	}
	g.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Rejections and caller mistakes say nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, domainErrors.ErrProviderNetwork)
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			if g.metrics != nil {
				g.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return g, nil
}

// call runs fn under the guard's breaker. Results returned alongside an
// error (partial updates) are preserved.
func call[T any](ctx context.Context, g *guard, op Operation, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, "provider."+string(op))
	span.SetAttributes(attribute.String("provider", g.key))
	defer span.End()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := g.breaker.Execute(func() (any, error) {
		return fn(ctx)
	})
	g.observe(op, start, err)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = domainErrors.NewNetworkError(g.key, string(op), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	result, _ := out.(T)
	return result, err
}

func (g *guard) observe(op Operation, start time.Time, err error) {
	if g.metrics == nil {
		return
	}
	g.metrics.ProviderCallDuration.WithLabelValues(g.key, string(op)).Observe(time.Since(start).Seconds())
	g.metrics.ProviderCalls.WithLabelValues(g.key, string(op), outcomeOf(err)).Inc()
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case errors.Is(err, domainErrors.ErrPartialUpdate):
		return "partial_update"
	case errors.Is(err, domainErrors.ErrProviderNetwork):
		return "network"
	case errors.Is(err, domainErrors.ErrProviderConfiguration):
		return "configuration"
	case errors.Is(err, domainErrors.ErrProviderRejected):
		return "rejected"
	case errors.Is(err, domainErrors.ErrNotSupported):
		return "not_supported"
	case errors.Is(err, domainErrors.ErrPrecondition):
		return "precondition"
	case errors.Is(err, domainErrors.ErrValidationFailed):
		return "invalid"
	default:
		return "error"
	}
}

func (g *guard) Kind() Kind { return g.inner.Kind() }

func (g *guard) DetailsSchema(op Operation) string { return g.inner.DetailsSchema(op) }

func (g *guard) CreatePayment(ctx context.Context, req PaymentRequest) (*Result, error) {
	if err := g.validator.Validate(OpCreatePayment, req.PaymentDetails); err != nil {
		return nil, err
	}
	return call(ctx, g, OpCreatePayment, func(ctx context.Context) (*Result, error) {
		return g.inner.CreatePayment(ctx, req)
	})
}

func (g *guard) CheckPaymentStatus(ctx context.Context, providerTransactionID string) (*StatusResult, error) {
	return call(ctx, g, OpCheckPaymentStatus, func(ctx context.Context) (*StatusResult, error) {
		return g.inner.CheckPaymentStatus(ctx, providerTransactionID)
	})
}

func (g *guard) ProcessWebhook(payload []byte) (*WebhookEvent, error) {
	return g.inner.ProcessWebhook(payload)
}

func (g *guard) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*Result, error) {
	if err := g.validator.Validate(OpCreateSubscription, req.PaymentDetails); err != nil {
		return nil, err
	}
	return call(ctx, g, OpCreateSubscription, func(ctx context.Context) (*Result, error) {
		return g.inner.CreateSubscription(ctx, req)
	})
}

func (g *guard) CancelSubscription(ctx context.Context, providerSubscriptionID string) (*Result, error) {
	return call(ctx, g, OpCancelSubscription, func(ctx context.Context) (*Result, error) {
		return g.inner.CancelSubscription(ctx, providerSubscriptionID)
	})
}

func (g *guard) UpdateSubscription(ctx context.Context, providerSubscriptionID string, plan PlanChange) (*Result, error) {
	if plan.PaymentDetails != nil {
		if err := g.validator.Validate(OpUpdateSubscription, plan.PaymentDetails); err != nil {
			return nil, err
		}
	}
	return call(ctx, g, OpUpdateSubscription, func(ctx context.Context) (*Result, error) {
		return g.inner.UpdateSubscription(ctx, providerSubscriptionID, plan)
	})
}

// guardedCustomers runs CustomerManager calls through the provider's guard.
type guardedCustomers struct {
	g     *guard
	inner CustomerManager
}

func (c guardedCustomers) CreateCustomer(ctx context.Context, req CustomerRequest) (*CustomerResult, error) {
	return call(ctx, c.g, OpCreateCustomer, func(ctx context.Context) (*CustomerResult, error) {
		return c.inner.CreateCustomer(ctx, req)
	})
}

func (c guardedCustomers) HasPaymentMethod(ctx context.Context, providerCustomerID string) (bool, error) {
	return call(ctx, c.g, OpHasPaymentMethod, func(ctx context.Context) (bool, error) {
		return c.inner.HasPaymentMethod(ctx, providerCustomerID)
	})
}

func (c guardedCustomers) CreateSetupSession(ctx context.Context, req SetupSessionRequest) (*SetupSession, error) {
	return call(ctx, c.g, OpCreateSetupSession, func(ctx context.Context) (*SetupSession, error) {
		return c.inner.CreateSetupSession(ctx, req)
	})
}

func (c guardedCustomers) SetDefaultPaymentMethod(ctx context.Context, providerCustomerID string) (string, error) {
	return call(ctx, c.g, OpSetDefaultMethod, func(ctx context.Context) (string, error) {
		return c.inner.SetDefaultPaymentMethod(ctx, providerCustomerID)
	})
}

type guardedProducts struct {
	g     *guard
	inner ProductManager
}

func (p guardedProducts) CreateProductAndPrice(ctx context.Context, req ProductRequest) (*ProductResult, error) {
	return call(ctx, p.g, OpCreateProduct, func(ctx context.Context) (*ProductResult, error) {
		return p.inner.CreateProductAndPrice(ctx, req)
	})
}
