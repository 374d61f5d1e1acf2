package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpage-backend/internal/catalog"
	"github.com/angelmondragon/creatorpage-backend/internal/gateway"
	"github.com/angelmondragon/creatorpage-backend/internal/intents"
	"github.com/angelmondragon/creatorpage-backend/internal/orders"
	"github.com/angelmondragon/creatorpage-backend/pkg/auth"
	"github.com/angelmondragon/creatorpage-backend/pkg/config"
	"github.com/angelmondragon/creatorpage-backend/pkg/db/dbtest"
	"github.com/angelmondragon/creatorpage-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpage-backend/pkg/enums"
	"github.com/angelmondragon/creatorpage-backend/pkg/outbox"
)

// upiGateway issues payables and answers lookups from a fixed script, holding
// the last answer once the script runs out.
type upiGateway struct {
	mu      sync.Mutex
	script  []gateway.Status
	creates int
	lookups int
}

func (g *upiGateway) Name() string { return "upi" }

func (g *upiGateway) CreatePayable(_ context.Context, req gateway.PayableRequest) (*gateway.Payable, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.creates++
	return &gateway.Payable{ExternalReference: "upi-" + req.OrderID.String(), Handle: "upi://pay?pa=" + req.PayeeReference}, nil
}

func (g *upiGateway) LookupStatus(_ context.Context, _ string) (*gateway.StatusResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookups++
	status := gateway.StatusPending
	if len(g.script) > 0 {
		status = g.script[0]
		if len(g.script) > 1 {
			g.script = g.script[1:]
		}
	}
	res := &gateway.StatusResult{Status: status}
	if status == gateway.StatusPaid {
		paid := int64(50000)
		res.AmountMinor = &paid
		res.Currency = "INR"
	}
	return res, nil
}

func (g *upiGateway) counts() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.creates, g.lookups
}

type flow struct {
	conn       *gorm.DB
	resolver   *intents.Resolver
	gate       *intents.Gate
	intents    intents.Repository
	orders     orders.Repository
	svc        *orders.Service
	gw         *upiGateway
	dispatcher *Dispatcher
	profile    models.Profile
	block      models.Block
}

// newFlow wires the real resolver, gate, order service and supervisor over
// one sqlite database. A supervised flow opens orders through the Supervisor.
func newFlow(t *testing.T, script []gateway.Status, supervised bool) *flow {
	t.Helper()
	client, conn := dbtest.OpenClient(t)
	events := outbox.NewService(outbox.NewRepository(conn), nil)

	loader, err := catalog.NewLoader(catalog.NewRepository(conn))
	require.NoError(t, err)
	intentRepo := intents.NewRepository(conn)
	resolver, err := intents.NewResolver(loader, intentRepo, noopSlot{}, config.IntentsConfig{TTL: 15 * time.Minute}, nil, nil)
	require.NoError(t, err)
	gate, err := intents.NewGate(intentRepo, client, events, noopSlot{}, nil, nil)
	require.NoError(t, err)

	gw := &upiGateway{script: script}
	orderRepo := orders.NewRepository(conn)
	svc, err := orders.NewService(orderRepo, client, events, gw, gate, config.GatewayConfig{CreateAttempts: 1, Currency: "INR"}, nil)
	require.NoError(t, err)

	var opener orderOpener = svc
	if supervised {
		sup, err := orders.NewSupervisor(svc, orderRepo, config.SupervisorConfig{
			PollInterval: 2 * time.Millisecond,
			MaxAttempts:  20,
			PollTimeout:  2 * time.Millisecond,
		}, nil, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = sup.Shutdown(context.Background()) })
		opener = sup
	}
	dispatcher, err := NewDispatcher(intentRepo, gate, NewLeadRepository(conn), opener, client, events, nil)
	require.NoError(t, err)

	profile := dbtest.SeedProfile(t, conn, nil)
	product := dbtest.SeedProduct(t, conn, profile.ID, 50000, nil)
	block := dbtest.SeedBlock(t, conn, profile.ID, enums.BlockCTABuyNow, func(b *models.Block) { b.ProductID = &product.ID })

	return &flow{
		conn:       conn,
		resolver:   resolver,
		gate:       gate,
		intents:    intentRepo,
		orders:     orderRepo,
		svc:        svc,
		gw:         gw,
		dispatcher: dispatcher,
		profile:    profile,
		block:      block,
	}
}

// resumedBuy creates the buy intent anonymously and resumes it as user.
func (f *flow) resumedBuy(t *testing.T, user auth.Actor) *models.Intent {
	t.Helper()
	res, err := f.resolver.CreateIntent(context.Background(), intents.ResolveInput{
		ProfileID: f.profile.ID,
		BlockID:   &f.block.ID,
		Actor:     auth.Anonymous(),
		DeviceID:  "device-1",
	})
	require.NoError(t, err)
	require.True(t, res.RequiresLogin)
	require.Equal(t, enums.CTAKindBuy, res.Intent.CTAKind)

	token := res.Intent.ID
	resumed, err := f.gate.Resume(context.Background(), intents.ResumeInput{Token: &token, Actor: user})
	require.NoError(t, err)
	require.Equal(t, intents.OutcomeDispatch, resumed.Outcome)
	require.Equal(t, int64(50000), resumed.Instruction.AmountMinor)
	return res.Intent
}

func (f *flow) countRows(t *testing.T, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(model).Where(where, args...).Count(&n).Error)
	return n
}

func TestBuyCompletesAfterPaymentConfirmed(t *testing.T) {
	f := newFlow(t, []gateway.Status{gateway.StatusPending, gateway.StatusPending, gateway.StatusPaid}, true)
	user := auth.UserActor(uuid.New())
	intent := f.resumedBuy(t, user)

	res, err := f.dispatcher.Dispatch(context.Background(), Input{IntentID: intent.ID, Actor: user})
	require.NoError(t, err)
	assert.Equal(t, intents.OutcomeDispatch, res.Outcome)
	require.NotNil(t, res.Effect.Order)
	assert.Equal(t, enums.OrderStatusPendingConfirmation, res.Effect.Order.Status)
	orderID := res.Effect.Order.ID

	require.Eventually(t, func() bool {
		stored, err := f.intents.FindByID(context.Background(), intent.ID)
		return err == nil && stored.Status == enums.IntentStatusCompleted
	}, 5*time.Second, 5*time.Millisecond)

	order, err := f.orders.FindByID(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, order.Status)
	assert.Equal(t, 3, order.PollAttempts)
	require.NotNil(t, order.AmountConfirmedMinor)
	assert.Equal(t, int64(50000), *order.AmountConfirmedMinor)

	creates, lookups := f.gw.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 3, lookups)
	assert.Equal(t, int64(1), f.countRows(t, &models.OutboxEvent{}, "event_type = ?", enums.EventOrderPaid))
	assert.Equal(t, int64(1), f.countRows(t, &models.OutboxEvent{}, "event_type = ?", enums.EventIntentCompleted))
}

func TestConcurrentBuyDispatchOpensOneOrder(t *testing.T) {
	f := newFlow(t, nil, false)
	user := auth.UserActor(uuid.New())
	intent := f.resumedBuy(t, user)

	const callers = 2
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make([]*Result, callers)
		errs    = make([]error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = f.dispatcher.Dispatch(context.Background(), Input{IntentID: intent.ID, Actor: user})
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, intents.OutcomeDispatch, results[i].Outcome)
		require.NotNil(t, results[i].Effect.Order)
	}
	assert.Equal(t, results[0].Effect.Order.ID, results[1].Effect.Order.ID)
	assert.Equal(t, int64(1), f.countRows(t, &models.PaymentOrder{}, "intent_id = ?", intent.ID))
	creates, _ := f.gw.counts()
	assert.Equal(t, 1, creates)
}
