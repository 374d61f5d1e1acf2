package intents

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpage-backend/internal/catalog"
	"github.com/angelmondragon/creatorpage-backend/pkg/config"
	"github.com/angelmondragon/creatorpage-backend/pkg/db/dbtest"
	"github.com/angelmondragon/creatorpage-backend/pkg/outbox"
)

type fakeSlot struct {
	mu    sync.Mutex
	slots map[string]uuid.UUID
}

func newFakeSlot() *fakeSlot {
	return &fakeSlot{slots: map[string]uuid.UUID{}}
}

func (f *fakeSlot) Hold(_ context.Context, deviceID string, token uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slots[deviceID] = token
	return nil
}

func (f *fakeSlot) Peek(_ context.Context, deviceID string) (uuid.UUID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.slots[deviceID]
	return token, ok, nil
}

func (f *fakeSlot) Release(_ context.Context, deviceID string, token uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.slots[deviceID] == token {
		delete(f.slots, deviceID)
	}
	return nil
}

type harness struct {
	conn     *gorm.DB
	slot     *fakeSlot
	resolver *Resolver
	gate     *Gate
	repo     Repository
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client, conn := dbtest.OpenClient(t)
	loader, err := catalog.NewLoader(catalog.NewRepository(conn))
	if err != nil {
		t.Fatalf("loader: %v", err)
	}
	repo := NewRepository(conn)
	slot := newFakeSlot()
	resolver, err := NewResolver(loader, repo, slot, config.IntentsConfig{TTL: 15 * time.Minute}, nil, nil)
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	gate, err := NewGate(repo, client, outbox.NewService(outbox.NewRepository(conn), nil), slot, nil, nil)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	return &harness{conn: conn, slot: slot, resolver: resolver, gate: gate, repo: repo}
}
