package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/cassiomorais/paygate/internal/infrastructure/observability"
)

const providerParam = "provider"

type MetricsOption func(*metricsOptions)

type metricsOptions struct {
	knownProvider func(string) bool
}

// WithProviderLabels replaces {provider} in the route label with the
// provider key when known reports it as registered, so webhook and
// provider-scoped traffic is counted per provider. Unknown keys keep the
// placeholder.
func WithProviderLabels(known func(string) bool) MetricsOption {
	return func(o *metricsOptions) { o.knownProvider = known }
}

// Metrics records request count and latency per method, route and status.
func Metrics(m *observability.Metrics, opts ...MetricsOption) func(http.Handler) http.Handler {
	var o metricsOptions
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := o.routeLabel(r)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(responseStatus(ww))).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func (o metricsOptions) routeLabel(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || rctx.RoutePattern() == "" {
		return r.URL.Path
	}
	route := rctx.RoutePattern()
	if o.knownProvider != nil && strings.Contains(route, "{"+providerParam+"}") {
		if key := rctx.URLParam(providerParam); key != "" && o.knownProvider(key) {
			route = strings.Replace(route, "{"+providerParam+"}", strings.ToLower(key), 1)
		}
	}
	return route
}

// responseStatus is 200 for handlers that wrote a body without calling
// WriteHeader.
func responseStatus(ww chimw.WrapResponseWriter) int {
	if ww.Status() == 0 {
		return http.StatusOK
	}
	return ww.Status()
}
