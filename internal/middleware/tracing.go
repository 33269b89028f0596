package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Tracing starts a server span per request, named "METHOD pattern" to keep
// span names low-cardinality. otelhttp formats the name again once the
// handler returns, so the chi route pattern is known by then.
func Tracing(opts ...otelhttp.Option) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "http.request", append([]otelhttp.Option{
			otelhttp.WithSpanNameFormatter(spanName),
		}, opts...)...)
	}
}

func spanName(_ string, r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return r.Method + " " + rctx.RoutePattern()
	}
	if r.Pattern != "" {
		return r.Pattern
	}
	return r.Method + " " + r.URL.Path
}
