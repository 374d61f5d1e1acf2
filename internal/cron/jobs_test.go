package cron

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/creatorpage-backend/internal/gateway"
	"github.com/angelmondragon/creatorpage-backend/pkg/db/dbtest"
	"github.com/angelmondragon/creatorpage-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpage-backend/pkg/enums"
	"github.com/angelmondragon/creatorpage-backend/pkg/logger"
	"github.com/angelmondragon/creatorpage-backend/pkg/outbox"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test"})
}

type stubExpirable struct {
	rows  []models.Intent
	grace time.Duration
}

func (s *stubExpirable) ListExpirable(_ context.Context, _ time.Time, grace time.Duration, limit int) ([]models.Intent, error) {
	s.grace = grace
	if len(s.rows) > limit {
		return s.rows[:limit], nil
	}
	return s.rows, nil
}

type stubExpirer struct {
	failFor uuid.UUID
	expired []uuid.UUID
}

func (s *stubExpirer) Expire(_ context.Context, intent *models.Intent) (bool, error) {
	if intent.ID == s.failFor {
		return false, errors.New("db down")
	}
	s.expired = append(s.expired, intent.ID)
	return true, nil
}

func TestIntentExpiryJobContinuesPastFailures(t *testing.T) {
	bad := uuid.New()
	reader := &stubExpirable{rows: []models.Intent{{ID: uuid.New()}, {ID: bad}, {ID: uuid.New()}}}
	expirer := &stubExpirer{failFor: bad}
	job, err := NewIntentExpiryJob(IntentExpiryJobParams{
		Logger:       testLogger(),
		Reader:       reader,
		Expirer:      expirer,
		ResumedGrace: 2 * time.Minute,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	err = job.Run(context.Background())
	if err == nil {
		t.Fatalf("expected aggregated error")
	}
	if len(expirer.expired) != 2 {
		t.Fatalf("expected 2 expired, got %d", len(expirer.expired))
	}
	if reader.grace != 2*time.Minute {
		t.Fatalf("grace not forwarded: %s", reader.grace)
	}
}

type stubOrders struct {
	pending []models.PaymentOrder
	created []models.PaymentOrder
	polled  int
	live    bool
}

func (s *stubOrders) ListStale(_ context.Context, status enums.OrderStatus, _ time.Time, _ int) ([]models.PaymentOrder, error) {
	if status == enums.OrderStatusCreated {
		return s.created, nil
	}
	return s.pending, nil
}

func (s *stubOrders) RecordPoll(context.Context, uuid.UUID) (bool, error) {
	s.polled++
	return s.live, nil
}

type stubResolver struct {
	gw        gateway.Gateway
	applied   map[uuid.UUID]gateway.Status
	expired   []uuid.UUID
	abandoned []uuid.UUID
}

func (s *stubResolver) Gateway() gateway.Gateway { return s.gw }

func (s *stubResolver) ApplyGatewayStatus(_ context.Context, id uuid.UUID, result *gateway.StatusResult) (enums.OrderStatus, error) {
	s.applied[id] = result.Status
	return enums.OrderStatusPaid, nil
}

func (s *stubResolver) Expire(_ context.Context, id uuid.UUID) (enums.OrderStatus, error) {
	s.expired = append(s.expired, id)
	return enums.OrderStatusExpired, nil
}

func (s *stubResolver) Abandon(_ context.Context, id uuid.UUID) (enums.OrderStatus, error) {
	s.abandoned = append(s.abandoned, id)
	return enums.OrderStatusFailed, nil
}

func sandboxOrder(t *testing.T, gw *gateway.SandboxGateway, createdAt time.Time) models.PaymentOrder {
	t.Helper()
	id := uuid.New()
	payable, err := gw.CreatePayable(context.Background(), gateway.PayableRequest{
		OrderID:        id,
		AmountMinor:    500,
		Currency:       "INR",
		PayeeReference: "creator@upi",
	})
	if err != nil {
		t.Fatalf("create payable: %v", err)
	}
	ref := payable.ExternalReference
	return models.PaymentOrder{
		ID:                id,
		Status:            enums.OrderStatusPendingConfirmation,
		ExternalReference: &ref,
		CreatedAt:         createdAt,
	}
}

func TestOrderSweepJobResolvesOrphans(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gw := gateway.NewSandboxGateway()

	settled := sandboxOrder(t, gw, now.Add(-time.Minute))
	paid := int64(500)
	if err := gw.Settle(*settled.ExternalReference, gateway.StatusPaid, &paid); err != nil {
		t.Fatalf("settle: %v", err)
	}
	young := sandboxOrder(t, gw, now.Add(-time.Minute))
	old := sandboxOrder(t, gw, now.Add(-time.Hour))
	stuck := models.PaymentOrder{ID: uuid.New(), Status: enums.OrderStatusCreated}

	orders := &stubOrders{pending: []models.PaymentOrder{settled, young, old}, created: []models.PaymentOrder{stuck}, live: true}
	svc := &stubResolver{gw: gw, applied: map[uuid.UUID]gateway.Status{}}
	job, err := NewOrderSweepJob(OrderSweepJobParams{
		Logger:     testLogger(),
		Orders:     orders,
		Svc:        svc,
		Orphaned:   15 * time.Second,
		Budget:     5 * time.Minute,
		CreatedTTL: 10 * time.Minute,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	job.(*orderSweepJob).now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if svc.applied[settled.ID] != gateway.StatusPaid {
		t.Fatalf("settled order should be applied, got %+v", svc.applied)
	}
	if len(svc.expired) != 1 || svc.expired[0] != old.ID {
		t.Fatalf("only the order past its budget should expire, got %v", svc.expired)
	}
	if len(svc.abandoned) != 1 || svc.abandoned[0] != stuck.ID {
		t.Fatalf("stuck created order should be abandoned, got %v", svc.abandoned)
	}
	if orders.polled != 3 {
		t.Fatalf("expected one recorded poll per orphan, got %d", orders.polled)
	}
}

func TestOrderSweepJobSkipsOrdersResolvedElsewhere(t *testing.T) {
	gw := gateway.NewSandboxGateway()
	order := sandboxOrder(t, gw, time.Now().Add(-time.Hour))
	orders := &stubOrders{pending: []models.PaymentOrder{order}, live: false}
	svc := &stubResolver{gw: gw, applied: map[uuid.UUID]gateway.Status{}}
	job, err := NewOrderSweepJob(OrderSweepJobParams{
		Logger:     testLogger(),
		Orders:     orders,
		Svc:        svc,
		Orphaned:   time.Second,
		Budget:     time.Minute,
		CreatedTTL: time.Minute,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(svc.expired) != 0 || len(svc.applied) != 0 {
		t.Fatalf("resolved order must not be touched")
	}
}

func TestNewOrderSweepJobValidatesWindows(t *testing.T) {
	_, err := NewOrderSweepJob(OrderSweepJobParams{
		Logger: testLogger(),
		Orders: &stubOrders{},
		Svc:    &stubResolver{},
	})
	if err == nil {
		t.Fatalf("expected window validation error")
	}
}

func TestOutboxRetentionDeletesOnlySettledRows(t *testing.T) {
	client, conn := dbtest.OpenClient(t)
	now := time.Now().UTC()
	old := now.Add(-10 * 24 * time.Hour)
	recent := now.Add(-time.Hour)

	insert := func(published, terminal *time.Time, eventType enums.OutboxEventType) uuid.UUID {
		row := models.OutboxEvent{
			ID:            uuid.New(),
			EventType:     eventType,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			PublishedAt:   published,
			TerminalAt:    terminal,
		}
		if err := conn.Create(&row).Error; err != nil {
			t.Fatalf("insert outbox row: %v", err)
		}
		return row.ID
	}
	oldPublished := insert(&old, nil, enums.EventOrderPaid)
	oldTerminal := insert(nil, &old, enums.EventOrderFailed)
	freshPublished := insert(&recent, nil, enums.EventOrderOpened)
	unpublished := insert(nil, nil, enums.EventOrderExpired)

	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		DB:         client,
		Repository: outbox.NewRepository(conn),
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	var remaining []models.OutboxEvent
	if err := conn.Find(&remaining).Error; err != nil {
		t.Fatalf("list: %v", err)
	}
	left := map[uuid.UUID]bool{}
	for _, r := range remaining {
		left[r.ID] = true
	}
	if left[oldPublished] || left[oldTerminal] {
		t.Fatalf("settled rows past retention should be deleted")
	}
	if !left[freshPublished] || !left[unpublished] {
		t.Fatalf("recent and pending rows must be kept")
	}
}
