package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpage-backend/internal/gateway"
	"github.com/angelmondragon/creatorpage-backend/pkg/config"
	"github.com/angelmondragon/creatorpage-backend/pkg/db/dbtest"
	"github.com/angelmondragon/creatorpage-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpage-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorpage-backend/pkg/errors"
	"github.com/angelmondragon/creatorpage-backend/pkg/outbox"
)

var errFlaky = errors.New("connection reset by peer")

// scriptedGateway replays lookups in order and then repeats the last one.
type scriptedGateway struct {
	mu          sync.Mutex
	createErrs  []error
	lookups     []*gateway.StatusResult
	lookupErr   error
	createCalls int
	lookupCalls int
}

func (g *scriptedGateway) Name() string { return "scripted" }

func (g *scriptedGateway) CreatePayable(_ context.Context, req gateway.PayableRequest) (*gateway.Payable, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if len(g.createErrs) > 0 {
		err := g.createErrs[0]
		g.createErrs = g.createErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &gateway.Payable{ExternalReference: "ref-" + req.OrderID.String(), Handle: "upi://pay"}, nil
}

func (g *scriptedGateway) LookupStatus(_ context.Context, _ string) (*gateway.StatusResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookupCalls++
	if g.lookupErr != nil {
		return nil, g.lookupErr
	}
	if len(g.lookups) == 0 {
		return &gateway.StatusResult{Status: gateway.StatusPending}, nil
	}
	next := g.lookups[0]
	if len(g.lookups) > 1 {
		g.lookups = g.lookups[1:]
	}
	return next, nil
}

func (g *scriptedGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lookupCalls
}

type recordingCompleter struct {
	mu        sync.Mutex
	completed []uuid.UUID
	closed    map[uuid.UUID]bool
}

func (c *recordingCompleter) EnsureAwaitingPayment(_ context.Context, intentID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed[intentID] {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "intent is expired and can no longer be paid")
	}
	return nil
}

func (c *recordingCompleter) close(intentID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed == nil {
		c.closed = map[uuid.UUID]bool{}
	}
	c.closed[intentID] = true
}

func (c *recordingCompleter) CompleteForOrder(_ context.Context, _ *gorm.DB, intentID, _ uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = append(c.completed, intentID)
	return nil
}

func (c *recordingCompleter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.completed)
}

type harness struct {
	conn       *gorm.DB
	gw         *scriptedGateway
	completer  *recordingCompleter
	svc        *Service
	repo       Repository
	supervisor *Supervisor
}

func newHarness(t *testing.T, attempts int) *harness {
	t.Helper()
	client, conn := dbtest.OpenClient(t)
	gw := &scriptedGateway{}
	completer := &recordingCompleter{}
	repo := NewRepository(conn)
	svc, err := NewService(repo, client, outbox.NewService(outbox.NewRepository(conn), nil), gw, completer,
		config.GatewayConfig{CreateAttempts: 3, Currency: "INR"}, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.backoff = time.Millisecond
	sup, err := NewSupervisor(svc, repo, config.SupervisorConfig{
		PollInterval: time.Millisecond,
		MaxAttempts:  attempts,
		PollTimeout:  time.Millisecond,
	}, nil, nil)
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}
	t.Cleanup(func() { _ = sup.Shutdown(context.Background()) })
	return &harness{conn: conn, gw: gw, completer: completer, svc: svc, repo: repo, supervisor: sup}
}

func (h *harness) open(t *testing.T, intentID *uuid.UUID) *models.PaymentOrder {
	t.Helper()
	order, err := h.svc.Open(context.Background(), OpenInput{
		IntentID:       intentID,
		AmountMinor:    50000,
		Currency:       "INR",
		PayeeReference: "payee@upi",
		PayerActor:     "user:" + uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("open order: %v", err)
	}
	return order
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *models.PaymentOrder {
	t.Helper()
	order, err := h.repo.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	return order
}

func (h *harness) countEvents(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	if err := h.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}

func amount(v int64) *int64 { return &v }
