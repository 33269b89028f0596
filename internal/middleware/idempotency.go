package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	infraRedis "github.com/cassiomorais/paygate/internal/infrastructure/redis"
)

const (
	IdempotencyHeader      = "Idempotency-Key"
	maxIdempotencyBodySize = 1 << 20
	inflightTTL            = time.Minute
)

// IdempotencyStore persists responses by scope and client key.
// *redis.IdempotencyStore implements it.
type IdempotencyStore interface {
	Get(ctx context.Context, scope, key string) (*infraRedis.StoredResponse, error)
	Reserve(ctx context.Context, scope, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, scope, key string) error
	Save(ctx context.Context, scope, key string, resp *infraRedis.StoredResponse) error
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Keys are scoped by method and route, so the same key on two endpoints
// does not collide. A key reused with a different body is a 422, and a key
// whose first request is still running is a 409. Store failures fall
// through to the handler.
func Idempotency(store IdempotencyStore, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > 255 {
				writeError(w, http.StatusBadRequest, "idempotency key too long", "validation_error")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotencyBodySize+1))
			if err != nil {
				writeError(w, http.StatusBadRequest, "unreadable request body", "validation_error")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			ctx := r.Context()
			scope := idempotencyScope(r)
			hash := requestHash(r, body)
			log := logger.With().Str("idempotency_key", key).Str("scope", scope).Logger()

			stored, err := store.Get(ctx, scope, key)
			if err != nil {
				log.Warn().Err(err).Msg("idempotency lookup failed")
				next.ServeHTTP(w, r)
				return
			}
			if stored != nil {
				if stored.RequestHash != "" && stored.RequestHash != hash {
					writeError(w, http.StatusUnprocessableEntity, "idempotency key reused with a different request", "idempotency_mismatch")
					return
				}
				replay(w, stored)
				return
			}

			reserved, err := store.Reserve(ctx, scope, key, inflightTTL)
			if err != nil {
				log.Warn().Err(err).Msg("idempotency reserve failed")
				next.ServeHTTP(w, r)
				return
			}
			if !reserved {
				writeError(w, http.StatusConflict, "a request with this idempotency key is in progress", "idempotency_in_progress")
				return
			}
			defer func() {
				if err := store.Release(context.WithoutCancel(ctx), scope, key); err != nil {
					log.Warn().Err(err).Msg("idempotency release failed")
				}
			}()

			// A first request may have saved and released between the
			// lookup and the reservation.
			if stored, err := store.Get(ctx, scope, key); err == nil && stored != nil {
				if stored.RequestHash != "" && stored.RequestHash != hash {
					writeError(w, http.StatusUnprocessableEntity, "idempotency key reused with a different request", "idempotency_mismatch")
					return
				}
				replay(w, stored)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			// Server errors stay retryable.
			if rec.statusCode >= 500 || rec.bodyTruncated {
				return
			}
			resp := &infraRedis.StoredResponse{
				StatusCode:  rec.statusCode,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
				RequestHash: hash,
				CreatedAt:   time.Now().UTC(),
			}
			if err := store.Save(context.WithoutCancel(ctx), scope, key, resp); err != nil {
				log.Warn().Err(err).Msg("idempotency save failed")
			}
		})
	}
}

func idempotencyScope(r *http.Request) string {
	route := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		route = rctx.RoutePattern()
	}
	return r.Method + " " + route
}

func requestHash(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.URL.RawQuery))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func replay(w http.ResponseWriter, stored *infraRedis.StoredResponse) {
	contentType := stored.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Idempotency-Replayed", "true")
	w.WriteHeader(stored.StatusCode)
	_, _ = w.Write(stored.Body)
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode    int
	body          *bytes.Buffer
	bodyTruncated bool
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.bodyTruncated {
		if r.body.Len()+len(b) > maxIdempotencyBodySize {
			r.bodyTruncated = true
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}
