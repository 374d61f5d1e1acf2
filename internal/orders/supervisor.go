package orders

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/creatorpage-backend/internal/gateway"
	"github.com/angelmondragon/creatorpage-backend/pkg/config"
	"github.com/angelmondragon/creatorpage-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpage-backend/pkg/enums"
	"github.com/angelmondragon/creatorpage-backend/pkg/logger"
	"github.com/angelmondragon/creatorpage-backend/pkg/metrics"
)

var errSupervisorClosed = errors.New("supervisor is shut down")

// Supervisor drives pending orders to a terminal state by polling the
// gateway on a fixed interval within a bounded attempt budget.
type Supervisor struct {
	svc      *Service
	repo     Repository
	interval time.Duration
	attempts int
	timeout  time.Duration
	metrics  *metrics.SupervisionMetrics
	logg     *logger.Logger

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
	wg      sync.WaitGroup
	root    context.Context
	stop    context.CancelFunc
	closed  bool
}

func NewSupervisor(svc *Service, repo Repository, cfg config.SupervisorConfig, m *metrics.SupervisionMetrics, logg *logger.Logger) (*Supervisor, error) {
	if svc == nil {
		return nil, errors.New("orders service required")
	}
	if repo == nil {
		return nil, errors.New("orders repository required")
	}
	if cfg.PollInterval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}
	if cfg.MaxAttempts <= 0 {
		return nil, errors.New("max attempts must be positive")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 || timeout > cfg.PollInterval {
		timeout = cfg.PollInterval
	}
	root, stop := context.WithCancel(context.Background())
	return &Supervisor{
		svc:      svc,
		repo:     repo,
		interval: cfg.PollInterval,
		attempts: cfg.MaxAttempts,
		timeout:  timeout,
		metrics:  m,
		logg:     logg,
		running:  map[uuid.UUID]context.CancelFunc{},
		root:     root,
		stop:     stop,
	}, nil
}

// Open creates the order and starts supervising it.
func (s *Supervisor) Open(ctx context.Context, input OpenInput) (*models.PaymentOrder, error) {
	order, err := s.svc.Open(ctx, input)
	if err != nil {
		return nil, err
	}
	if order.Status == enums.OrderStatusPendingConfirmation {
		s.Start(ctx, order.ID)
	}
	return order, nil
}

// Retry reopens a finished order and supervises the replacement.
func (s *Supervisor) Retry(ctx context.Context, orderID uuid.UUID, sourceToken string) (*models.PaymentOrder, error) {
	order, err := s.svc.Retry(ctx, orderID, sourceToken)
	if err != nil {
		return nil, err
	}
	if order.Status == enums.OrderStatusPendingConfirmation {
		s.Start(ctx, order.ID)
	}
	return order, nil
}

// Start supervises orderID in the background, detached from the request
// that opened it. Starting an order that is already supervised is a no-op.
func (s *Supervisor) Start(ctx context.Context, orderID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if _, ok := s.running[orderID]; ok {
		return false
	}
	runCtx, cancel := context.WithCancel(s.root)
	if s.logg != nil {
		runCtx = s.logg.WithOrderID(s.carryFields(ctx, runCtx), orderID.String())
	}
	s.running[orderID] = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.forget(orderID)
		defer cancel()
		if _, err := s.Supervise(runCtx, orderID); err != nil && !errors.Is(err, context.Canceled) && s.logg != nil {
			s.logg.Error(runCtx, "order supervision failed", err)
		}
	}()
	return true
}

// Cancel stops supervising orderID without changing its status.
func (s *Supervisor) Cancel(orderID uuid.UUID) bool {
	s.mu.Lock()
	cancel, ok := s.running[orderID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Active reports how many orders are being supervised.
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Shutdown cancels every run and waits for them to return.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Supervise polls until the order is terminal, the budget is spent, or ctx
// is cancelled. Cancellation leaves the order untouched; it is returned with
// the status it had and the context error.
func (s *Supervisor) Supervise(ctx context.Context, orderID uuid.UUID) (enums.OrderStatus, error) {
	order, err := s.svc.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.Status != enums.OrderStatusPendingConfirmation || order.ExternalReference == nil {
		return order.Status, nil
	}

	started := time.Now()
	s.metrics.Started()
	outcome := string(order.Status)
	defer func() { s.metrics.Finished(outcome, time.Since(started)) }()

	provider := s.svc.Provider()
	gw := s.svc.Gateway()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for attempt := order.PollAttempts; attempt < s.attempts; attempt++ {
		select {
		case <-ctx.Done():
			outcome = "cancelled"
			return order.Status, ctx.Err()
		case <-ticker.C:
		}

		live, err := s.repo.RecordPoll(ctx, orderID)
		if err != nil {
			s.warn(ctx, "record poll failed", err)
		} else if !live {
			// resolved elsewhere, usually by a webhook
			current, getErr := s.svc.Get(ctx, orderID)
			if getErr != nil {
				return "", getErr
			}
			outcome = string(current.Status)
			return current.Status, nil
		}

		result, err := s.lookup(ctx, gw, *order.ExternalReference)
		if err != nil {
			if ctx.Err() != nil {
				outcome = "cancelled"
				return order.Status, ctx.Err()
			}
			s.metrics.ObservePoll(provider, "error")
			s.warn(ctx, "status lookup failed", err)
			continue
		}
		s.metrics.ObservePoll(provider, string(result.Status))
		if result.Status == gateway.StatusPending {
			continue
		}

		next, err := s.svc.ApplyGatewayStatus(ctx, orderID, result)
		if err != nil {
			s.warn(ctx, "apply gateway status failed", err)
			continue
		}
		outcome = string(next)
		return next, nil
	}

	next, err := s.svc.Expire(ctx, orderID)
	if err != nil {
		return order.Status, err
	}
	outcome = string(next)
	return next, nil
}

func (s *Supervisor) lookup(ctx context.Context, gw gateway.Gateway, ref string) (*gateway.StatusResult, error) {
	pollCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return gw.LookupStatus(pollCtx, ref)
}

func (s *Supervisor) forget(orderID uuid.UUID) {
	s.mu.Lock()
	delete(s.running, orderID)
	s.mu.Unlock()
}

// carryFields copies the request's log fields onto the detached context.
func (s *Supervisor) carryFields(from, to context.Context) context.Context {
	return s.logg.Inherit(from, to)
}

func (s *Supervisor) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(ctx, msg+": "+err.Error())
}
