package pendingtoken

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value.(string)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memoryStore) DeleteIfEquals(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[key] != value {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

func (m *memoryStore) PendingIntentKey(deviceID string) string {
	return "cp:pending_intent:" + deviceID
}

func TestSlotHoldPeekRelease(t *testing.T) {
	store := newMemoryStore()
	slot, err := NewSlot(store, 15*time.Minute)
	if err != nil {
		t.Fatalf("new slot: %v", err)
	}
	ctx := context.Background()
	token := uuid.New()

	if err := slot.Hold(ctx, "device-1", token); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if ttl := store.ttls["cp:pending_intent:device-1"]; ttl != 15*time.Minute {
		t.Fatalf("expected ttl 15m, got %s", ttl)
	}
	got, ok, err := slot.Peek(ctx, "device-1")
	if err != nil || !ok || got != token {
		t.Fatalf("peek = %s %v %v", got, ok, err)
	}
	if err := slot.Release(ctx, "device-1", token); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, _ := slot.Peek(ctx, "device-1"); ok {
		t.Fatalf("slot should be empty after release")
	}
}

func TestSlotLatestTokenWins(t *testing.T) {
	store := newMemoryStore()
	slot, _ := NewSlot(store, time.Minute)
	ctx := context.Background()
	older, newer := uuid.New(), uuid.New()

	_ = slot.Hold(ctx, "d", older)
	_ = slot.Hold(ctx, "d", newer)

	if err := slot.Release(ctx, "d", older); err != nil {
		t.Fatalf("release older: %v", err)
	}
	got, ok, _ := slot.Peek(ctx, "d")
	if !ok || got != newer {
		t.Fatalf("newer token must survive release of older, got %s %v", got, ok)
	}
}

func TestSlotEmptyDevice(t *testing.T) {
	slot, _ := NewSlot(newMemoryStore(), time.Minute)
	if err := slot.Hold(context.Background(), " ", uuid.New()); err == nil {
		t.Fatalf("expected error for empty device")
	}
	if _, ok, err := slot.Peek(context.Background(), ""); ok || err != nil {
		t.Fatalf("empty device peek should be a miss")
	}
}

func TestSlotIgnoresGarbage(t *testing.T) {
	store := newMemoryStore()
	store.data["cp:pending_intent:d"] = "not-a-uuid"
	slot, _ := NewSlot(store, time.Minute)
	if _, ok, err := slot.Peek(context.Background(), "d"); ok || err != nil {
		t.Fatalf("garbage should read as empty, ok=%v err=%v", ok, err)
	}
}

func TestNewSlotValidation(t *testing.T) {
	if _, err := NewSlot(nil, time.Minute); err == nil {
		t.Fatalf("expected nil store error")
	}
	if _, err := NewSlot(newMemoryStore(), 0); err == nil {
		t.Fatalf("expected ttl error")
	}
}
