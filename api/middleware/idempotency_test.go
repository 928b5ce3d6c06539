package middleware

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

type memoryStore struct {
	values map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	value, ok := s.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (s *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = fmt.Sprint(value)
	return true, nil
}

func (s *memoryStore) IdempotencyKey(scope, id string) string {
	return "riceup:idempotency:" + scope + ":" + id
}

func (s *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.values, key)
	}
	return nil
}

func idempotentRouter(store *memoryStore, hits *atomic.Int32) http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(Idempotency(store, nil))
		r.Post("/v1/orders", func(w http.ResponseWriter, req *http.Request) {
			hits.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"data":{"order":1}}`))
		})
		r.Get("/v1/orders", func(w http.ResponseWriter, req *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusOK)
		})
	})
	return r
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newMemoryStore()
	var hits atomic.Int32
	router := idempotentRouter(store, &hits)

	body := `{"items":[{"product_id":"p","quantity":1}]}`
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "key-1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201 but got %d", i, w.Code)
		}
		payload, _ := io.ReadAll(w.Body)
		if !strings.Contains(string(payload), `"order":1`) {
			t.Fatalf("attempt %d: unexpected body %s", i, payload)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("handler should run once, ran %d times", got)
	}
}

func TestIdempotencyRejectsKeyReuseWithDifferentBody(t *testing.T) {
	store := newMemoryStore()
	var hits atomic.Int32
	router := idempotentRouter(store, &hits)

	first := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"qty":1}`))
	first.Header.Set("Idempotency-Key", "key-2")
	router.ServeHTTP(httptest.NewRecorder(), first)

	second := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"qty":2}`))
	second.Header.Set("Idempotency-Key", "key-2")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, second)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on body mismatch but got %d", w.Code)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("second request must not reach the handler, ran %d times", got)
	}
}

func TestIdempotencyRequiresKeyOnGuardedRoutes(t *testing.T) {
	store := newMemoryStore()
	var hits atomic.Int32
	router := idempotentRouter(store, &hits)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without Idempotency-Key but got %d", w.Code)
	}
	if got := hits.Load(); got != 0 {
		t.Fatalf("handler must not run without a key, ran %d times", got)
	}
}

func TestIdempotencyIgnoresUnguardedRoutes(t *testing.T) {
	store := newMemoryStore()
	var hits atomic.Int32
	router := idempotentRouter(store, &hits)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for unguarded route but got %d", w.Code)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("handler should run, ran %d times", got)
	}
}
