package pendingtoken

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Store is the subset of the redis client the slot relies on.
type Store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	DeleteIfEquals(ctx context.Context, key, value string) (bool, error)
	PendingIntentKey(deviceID string) string
}

// Slot keeps the latest unresolved intent token per device so it survives the
// full-page navigation to the identity provider and back. Holding a new token
// replaces the previous one; the replaced intent simply expires unconsumed.
type Slot struct {
	store Store
	ttl   time.Duration
}

func NewSlot(store Store, ttl time.Duration) (*Slot, error) {
	if store == nil {
		return nil, errors.New("redis store required")
	}
	if ttl <= 0 {
		return nil, errors.New("slot ttl must be positive")
	}
	return &Slot{store: store, ttl: ttl}, nil
}

// Hold records token as the pending intent for device.
func (s *Slot) Hold(ctx context.Context, deviceID string, token uuid.UUID) error {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return errors.New("device id required")
	}
	if err := s.store.Set(ctx, s.store.PendingIntentKey(deviceID), token.String(), s.ttl); err != nil {
		return fmt.Errorf("hold pending intent: %w", err)
	}
	return nil
}

// Peek returns the pending token for device. ok is false when the slot is empty.
func (s *Slot) Peek(ctx context.Context, deviceID string) (uuid.UUID, bool, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return uuid.Nil, false, nil
	}
	raw, err := s.store.Get(ctx, s.store.PendingIntentKey(deviceID))
	if errors.Is(err, goredis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("read pending intent: %w", err)
	}
	token, err := uuid.Parse(raw)
	if err != nil {
		// garbage in the slot behaves like an empty slot
		return uuid.Nil, false, nil
	}
	return token, true, nil
}

// Release clears the slot only while it still holds token, so resuming an
// older intent never wipes a newer one.
func (s *Slot) Release(ctx context.Context, deviceID string, token uuid.UUID) error {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil
	}
	if _, err := s.store.DeleteIfEquals(ctx, s.store.PendingIntentKey(deviceID), token.String()); err != nil {
		return fmt.Errorf("release pending intent: %w", err)
	}
	return nil
}
