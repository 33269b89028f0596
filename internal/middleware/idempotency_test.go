package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infraRedis "github.com/cassiomorais/paygate/internal/infrastructure/redis"
)

type memoryStore struct {
	mu       sync.Mutex
	entries  map[string]*infraRedis.StoredResponse
	inflight map[string]bool
	getErr   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: map[string]*infraRedis.StoredResponse{}, inflight: map[string]bool{}}
}

func (s *memoryStore) Get(_ context.Context, scope, key string) (*infraRedis.StoredResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.entries[scope+"|"+key], nil
}

func (s *memoryStore) Reserve(_ context.Context, scope, key string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scope + "|" + key
	if s.inflight[k] {
		return false, nil
	}
	s.inflight[k] = true
	return true, nil
}

func (s *memoryStore) Release(_ context.Context, scope, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, scope+"|"+key)
	return nil
}

func (s *memoryStore) Save(_ context.Context, scope, key string, resp *infraRedis.StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[scope+"|"+key] = resp
	return nil
}

func idempotentRouter(store IdempotencyStore, status int, calls *int) http.Handler {
	r := chi.NewRouter()
	r.With(Idempotency(store, zerolog.Nop())).Post("/transactions", func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"id":"tx-1"}`))
	})
	r.With(Idempotency(store, zerolog.Nop())).Post("/customers", func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.WriteHeader(http.StatusCreated)
	})
	return r
}

func post(h http.Handler, path, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	h := idempotentRouter(store, http.StatusCreated, &calls)

	first := post(h, "/transactions", "key-1", `{"amount":"10.00"}`)
	require.Equal(t, http.StatusCreated, first.Code)

	second := post(h, "/transactions", "key-1", `{"amount":"10.00"}`)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Replayed"))
	assert.JSONEq(t, `{"id":"tx-1"}`, second.Body.String())
	assert.Equal(t, 1, calls)
}

func TestIdempotency_NoKeyPassesThrough(t *testing.T) {
	calls := 0
	h := idempotentRouter(newMemoryStore(), http.StatusCreated, &calls)

	post(h, "/transactions", "", `{}`)
	post(h, "/transactions", "", `{}`)
	assert.Equal(t, 2, calls)
}

func TestIdempotency_ScopedByRoute(t *testing.T) {
	calls := 0
	h := idempotentRouter(newMemoryStore(), http.StatusCreated, &calls)

	post(h, "/transactions", "shared", `{}`)
	w := post(h, "/customers", "shared", `{}`)
	assert.Empty(t, w.Header().Get("X-Idempotency-Replayed"))
	assert.Equal(t, 2, calls)
}

func TestIdempotency_DifferentBodyIsRejected(t *testing.T) {
	calls := 0
	h := idempotentRouter(newMemoryStore(), http.StatusCreated, &calls)

	post(h, "/transactions", "key-1", `{"amount":"10.00"}`)
	w := post(h, "/transactions", "key-1", `{"amount":"99.00"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "idempotency_mismatch")
	assert.Equal(t, 1, calls)
}

func TestIdempotency_ServerErrorsAreNotStored(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	h := idempotentRouter(store, http.StatusServiceUnavailable, &calls)

	post(h, "/transactions", "key-1", `{}`)
	post(h, "/transactions", "key-1", `{}`)
	assert.Equal(t, 2, calls)
	assert.Empty(t, store.entries)
}

func TestIdempotency_InFlightConflict(t *testing.T) {
	store := newMemoryStore()
	_, err := store.Reserve(context.Background(), "POST /transactions", "key-1", time.Minute)
	require.NoError(t, err)

	calls := 0
	w := post(idempotentRouter(store, http.StatusCreated, &calls), "/transactions", "key-1", `{}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, calls)
}

func TestIdempotency_StoreFailureFallsThrough(t *testing.T) {
	store := newMemoryStore()
	store.getErr = errors.New("redis down")
	calls := 0

	w := post(idempotentRouter(store, http.StatusCreated, &calls), "/transactions", "key-1", `{}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotency_BodyVisibleToHandler(t *testing.T) {
	var got string
	r := chi.NewRouter()
	r.With(Idempotency(newMemoryStore(), zerolog.Nop())).Post("/x", func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		got = buf.String()
	})

	post(r, "/x", "k", `{"a":1}`)
	assert.Equal(t, `{"a":1}`, got)
}

func TestResponseRecorder_LargeBodyNotCaptured(t *testing.T) {
	inner := httptest.NewRecorder()
	rec := &responseRecorder{ResponseWriter: inner, body: &bytes.Buffer{}, statusCode: http.StatusOK}

	large := bytes.Repeat([]byte("x"), maxIdempotencyBodySize+100)
	_, err := rec.Write(large)
	require.NoError(t, err)

	assert.True(t, rec.bodyTruncated)
	assert.Zero(t, rec.body.Len())
	assert.Equal(t, len(large), inner.Body.Len(), "client still gets the full body")
}

// lateSaveStore saves a finished response just before the reservation is
// granted, as a concurrent first request would.
type lateSaveStore struct {
	*memoryStore
	saved *infraRedis.StoredResponse
}

func (s *lateSaveStore) Reserve(ctx context.Context, scope, key string, ttl time.Duration) (bool, error) {
	if s.saved != nil {
		_ = s.memoryStore.Save(ctx, scope, key, s.saved)
		s.saved = nil
	}
	return s.memoryStore.Reserve(ctx, scope, key, ttl)
}

func TestIdempotency_ResponseSavedDuringReservation(t *testing.T) {
	body := `{"amount":"10.00"}`
	store := &lateSaveStore{memoryStore: newMemoryStore()}
	calls := 0
	router := idempotentRouter(store, http.StatusCreated, &calls)

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(body))
	req.Header.Set(IdempotencyHeader, "seed")
	router.ServeHTTP(first, req)
	require.Equal(t, 1, calls)
	seeded, err := store.Get(context.Background(), "POST /transactions", "seed")
	require.NoError(t, err)
	require.NotNil(t, seeded)

	// Same body, new key: the lookup misses and the response lands before
	// Reserve returns.
	store.saved = seeded
	w := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(body))
	req.Header.Set(IdempotencyHeader, "raced")
	router.ServeHTTP(w, req)

	assert.Equal(t, 1, calls, "handler must not run twice")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "true", w.Header().Get("X-Idempotency-Replayed"))
	assert.JSONEq(t, `{"id":"tx-1"}`, w.Body.String())
}
