package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type stubStore struct {
	stored   bool
	storeErr error
	keys     []string
	ttl      time.Duration
	deleted  []string
}

func (s *stubStore) Get(context.Context, string) (string, error) { return "", nil }

func (s *stubStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	s.keys = append(s.keys, key)
	s.ttl = ttl
	return s.stored, s.storeErr
}

func (s *stubStore) IdempotencyKey(scope, id string) string {
	return "riceup:idempotency:" + scope + ":" + id
}

func (s *stubStore) Del(_ context.Context, keys ...string) error {
	s.deleted = append(s.deleted, keys...)
	return nil
}

func newManager(t *testing.T, store *stubStore, ttl time.Duration) *Manager {
	t.Helper()
	m, err := NewManager(store, ttl)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestCheckAndMarkProcessedFirstSeen(t *testing.T) {
	store := &stubStore{stored: true}
	m := newManager(t, store, 24*time.Hour)

	eventID := uuid.New()
	seen, err := m.CheckAndMarkProcessed(context.Background(), "domain-worker", eventID)
	if err != nil {
		t.Fatalf("CheckAndMarkProcessed: %v", err)
	}
	if seen {
		t.Fatal("first sighting reported as already processed")
	}

	want := "riceup:idempotency:evt:processed:domain-worker:" + eventID.String()
	if len(store.keys) != 1 || store.keys[0] != want {
		t.Fatalf("unexpected keys %v, want [%s]", store.keys, want)
	}
	if store.ttl != 24*time.Hour {
		t.Fatalf("unexpected ttl %v", store.ttl)
	}
}

func TestCheckAndMarkProcessedReplay(t *testing.T) {
	m := newManager(t, &stubStore{stored: false}, 12*time.Hour)

	seen, err := m.CheckAndMarkProcessed(context.Background(), "domain-worker", uuid.New())
	if err != nil {
		t.Fatalf("CheckAndMarkProcessed: %v", err)
	}
	if !seen {
		t.Fatal("replay not detected")
	}
}

func TestCheckAndMarkProcessedStoreError(t *testing.T) {
	m := newManager(t, &stubStore{storeErr: errors.New("redis down")}, time.Hour)

	if _, err := m.CheckAndMarkProcessed(context.Background(), "domain-worker", uuid.New()); err == nil {
		t.Fatal("expected store error to surface")
	}
}

func TestCheckAndMarkProcessedRejectsZeroInputs(t *testing.T) {
	m := newManager(t, &stubStore{}, time.Hour)

	if _, err := m.CheckAndMarkProcessed(context.Background(), "", uuid.New()); err == nil {
		t.Fatal("expected error for empty consumer")
	}
	if _, err := m.CheckAndMarkProcessed(context.Background(), "domain-worker", uuid.Nil); err == nil {
		t.Fatal("expected error for nil event id")
	}
}

func TestDeleteClearsMarker(t *testing.T) {
	store := &stubStore{}
	m := newManager(t, store, time.Hour)

	eventID := uuid.New()
	if err := m.Delete(context.Background(), "domain-worker", eventID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	want := "riceup:idempotency:evt:processed:domain-worker:" + eventID.String()
	if len(store.deleted) != 1 || store.deleted[0] != want {
		t.Fatalf("unexpected deletes %v, want [%s]", store.deleted, want)
	}
}
