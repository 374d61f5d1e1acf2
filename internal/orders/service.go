package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpage-backend/internal/gateway"
	"github.com/angelmondragon/creatorpage-backend/pkg/config"
	dbpkg "github.com/angelmondragon/creatorpage-backend/pkg/db"
	"github.com/angelmondragon/creatorpage-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpage-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorpage-backend/pkg/errors"
	"github.com/angelmondragon/creatorpage-backend/pkg/logger"
	"github.com/angelmondragon/creatorpage-backend/pkg/outbox"
	"github.com/angelmondragon/creatorpage-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/creatorpage-backend/pkg/types"
)

const (
	ReasonAmountMismatch     = "amount_mismatch"
	ReasonGatewayUnavailable = "gateway_unavailable"
	ReasonTimedOut           = "timed_out"
	ReasonAbandoned          = "abandoned"

	createBackoff = 200 * time.Millisecond
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// IntentCompleter finishes the intent bound to an order once it is paid.
type IntentCompleter interface {
	CompleteForOrder(ctx context.Context, tx *gorm.DB, intentID, orderID uuid.UUID) error
	EnsureAwaitingPayment(ctx context.Context, intentID uuid.UUID) error
}

// OpenInput describes a new payment order.
type OpenInput struct {
	IntentID       *uuid.UUID
	AmountMinor    int64
	Currency       string
	PayeeReference string
	PayerActor     string
	SourceToken    string
}

// Service owns every payment order state change.
type Service struct {
	repo           Repository
	tx             txRunner
	outbox         outboxPublisher
	gw             gateway.Gateway
	completer      IntentCompleter
	createAttempts int
	backoff        time.Duration
	defaultCcy     string
	logg           *logger.Logger
	now            func() time.Time
}

func NewService(repo Repository, tx txRunner, outbox outboxPublisher, gw gateway.Gateway, completer IntentCompleter, cfg config.GatewayConfig, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if gw == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if completer == nil {
		return nil, fmt.Errorf("intent completer required")
	}
	attempts := cfg.CreateAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &Service{
		repo:           repo,
		tx:             tx,
		outbox:         outbox,
		gw:             gw,
		completer:      completer,
		createAttempts: attempts,
		backoff:        createBackoff,
		defaultCcy:     cfg.Currency,
		logg:           logg,
		now:            func() time.Time { return time.Now().UTC() },
	}, nil
}

// Provider names the gateway orders are opened against.
func (s *Service) Provider() string { return s.gw.Name() }

// Gateway exposes the configured gateway to the supervisor.
func (s *Service) Gateway() gateway.Gateway { return s.gw }

// Get returns an order by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.PaymentOrder, error) {
	order, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// Open creates an order and asks the gateway for a payable. Opening again for
// an intent that already has a live order returns that order.
func (s *Service) Open(ctx context.Context, input OpenInput) (*models.PaymentOrder, error) {
	if input.AmountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	payee := strings.TrimSpace(input.PayeeReference)
	if payee == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payee reference is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = strings.ToUpper(s.defaultCcy)
	}
	if len(currency) != 3 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "currency must be a 3-letter code")
	}

	if input.IntentID != nil {
		existing, err := s.repo.FindActiveByIntent(ctx, *input.IntentID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active order")
		}
	}

	order := &models.PaymentOrder{
		ID:             uuid.New(),
		IntentID:       input.IntentID,
		Provider:       s.gw.Name(),
		AmountMinor:    input.AmountMinor,
		Currency:       currency,
		PayeeReference: payee,
		PayerActor:     input.PayerActor,
		Status:         enums.OrderStatusCreated,
	}
	if err := s.repo.Create(ctx, order); err != nil {
		if input.IntentID != nil && (dbpkg.IsUniqueViolation(err, activeIntentIndex) || dbpkg.IsUniqueViolation(err, activeIntentColumn)) {
			existing, findErr := s.repo.FindActiveByIntent(ctx, *input.IntentID)
			if findErr == nil {
				return existing, nil
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
	}
	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithOrderID(ctx, order.ID.String())
	}

	payable, err := s.createPayable(logCtx, order, input.SourceToken)
	if err != nil {
		reason := ReasonGatewayUnavailable
		if !gateway.IsTransient(err) {
			reason = "gateway_rejected"
		}
		if _, failErr := s.resolve(ctx, order.ID, enums.OrderStatusCreated, enums.OrderStatusFailed, nil, reason); failErr != nil && s.logg != nil {
			s.logg.Error(logCtx, "mark order failed", failErr)
		}
		if pkgerrors.As(err) != nil && !gateway.IsTransient(err) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway unavailable")
	}

	now := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).Transition(ctx, order.ID, enums.OrderStatusCreated, enums.OrderStatusPendingConfirmation, map[string]any{
			"external_reference": payable.ExternalReference,
			"payable_handle":     payable.Handle,
		})
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order left created state")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderOpened,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{ID: order.PayerActor},
			Data: payloads.OrderOpenedEvent{
				OrderID:           order.ID,
				IntentID:          order.IntentID,
				AmountMinor:       order.AmountMinor,
				Currency:          order.Currency,
				PayeeReference:    order.PayeeReference,
				Provider:          order.Provider,
				ExternalReference: payable.ExternalReference,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open order")
	}

	order.Status = enums.OrderStatusPendingConfirmation
	order.ExternalReference = &payable.ExternalReference
	order.PayableHandle = &payable.Handle
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(logCtx, "external_reference", payable.ExternalReference), "order opened")
	}
	return order, nil
}

func (s *Service) createPayable(ctx context.Context, order *models.PaymentOrder, sourceToken string) (*gateway.Payable, error) {
	req := gateway.PayableRequest{
		OrderID:        order.ID,
		AmountMinor:    order.AmountMinor,
		Currency:       order.Currency,
		PayeeReference: order.PayeeReference,
		PayerActor:     order.PayerActor,
		SourceToken:    sourceToken,
		IdempotencyKey: order.ID.String(),
	}
	var lastErr error
	for attempt := 1; attempt <= s.createAttempts; attempt++ {
		payable, err := s.gw.CreatePayable(ctx, req)
		if err == nil {
			return payable, nil
		}
		lastErr = err
		if !gateway.IsTransient(err) {
			return nil, err
		}
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "create payable failed: "+err.Error())
		}
		if attempt == s.createAttempts {
			break
		}
		timer := time.NewTimer(time.Duration(attempt) * s.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

// ApplyGatewayStatus folds one gateway observation into the order. Polling
// and push confirmations both land here. Terminal orders ignore late
// observations and the persisted status is returned.
func (s *Service) ApplyGatewayStatus(ctx context.Context, orderID uuid.UUID, result *gateway.StatusResult) (enums.OrderStatus, error) {
	if result == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "gateway result required")
	}
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.Status.IsTerminal() {
		s.logIgnored(ctx, order, result.Status)
		return order.Status, nil
	}
	if order.Status != enums.OrderStatusPendingConfirmation {
		return order.Status, nil
	}

	confirmed, matches := confirmedAmount(order, result)
	switch result.Status {
	case gateway.StatusPaid:
		if !matches {
			return s.resolve(ctx, orderID, enums.OrderStatusPendingConfirmation, enums.OrderStatusFailed, confirmed, ReasonAmountMismatch)
		}
		if confirmed == nil {
			confirmed = &order.AmountMinor
		}
		return s.resolve(ctx, orderID, enums.OrderStatusPendingConfirmation, enums.OrderStatusPaid, confirmed, "")
	case gateway.StatusFailed:
		reason := result.Reason
		if reason == "" {
			reason = "declined"
		}
		return s.resolve(ctx, orderID, enums.OrderStatusPendingConfirmation, enums.OrderStatusFailed, confirmed, reason)
	default:
		return order.Status, nil
	}
}

// confirmedAmount reads the gateway-reported amount in the order's minor
// units. A reported currency other than the order's, or an amount the order
// currency cannot represent, never matches. A nil amount with matches set
// means the gateway reported no amount.
func confirmedAmount(order *models.PaymentOrder, result *gateway.StatusResult) (*int64, bool) {
	if result.Currency != "" && !strings.EqualFold(result.Currency, order.Currency) {
		return nil, false
	}
	switch {
	case result.AmountMinor != nil:
		minor := *result.AmountMinor
		return &minor, minor == order.AmountMinor
	case result.Amount != nil:
		minor, err := types.MinorUnitsFromDecimal(*result.Amount, order.Currency)
		if err != nil {
			return nil, false
		}
		return &minor, minor == order.AmountMinor
	default:
		return nil, true
	}
}

// Expire closes an order whose confirmation budget ran out.
func (s *Service) Expire(ctx context.Context, orderID uuid.UUID) (enums.OrderStatus, error) {
	return s.resolve(ctx, orderID, enums.OrderStatusPendingConfirmation, enums.OrderStatusExpired, nil, ReasonTimedOut)
}

// Abandon fails an order that never reached the gateway.
func (s *Service) Abandon(ctx context.Context, orderID uuid.UUID) (enums.OrderStatus, error) {
	return s.resolve(ctx, orderID, enums.OrderStatusCreated, enums.OrderStatusFailed, nil, ReasonAbandoned)
}

// Retry opens a fresh order with the terms of one that expired or failed.
// An order bound to an intent is only retried while that intent can still be
// completed by a payment.
func (s *Service) Retry(ctx context.Context, orderID uuid.UUID, sourceToken string) (*models.PaymentOrder, error) {
	prev, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if prev.Status != enums.OrderStatusExpired && prev.Status != enums.OrderStatusFailed {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is %s and cannot be retried", prev.Status).
			WithField("order_id", orderID.String())
	}
	if prev.IntentID != nil {
		if err := s.completer.EnsureAwaitingPayment(ctx, *prev.IntentID); err != nil {
			return nil, err
		}
	}
	return s.Open(ctx, OpenInput{
		IntentID:       prev.IntentID,
		AmountMinor:    prev.AmountMinor,
		Currency:       prev.Currency,
		PayeeReference: prev.PayeeReference,
		PayerActor:     prev.PayerActor,
		SourceToken:    sourceToken,
	})
}

func (s *Service) resolve(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, confirmed *int64, reason string) (enums.OrderStatus, error) {
	now := s.now()
	var (
		won   bool
		order *models.PaymentOrder
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		set := map[string]any{"resolved_at": now}
		if confirmed != nil {
			set["amount_confirmed_minor"] = *confirmed
		}
		if reason != "" {
			set["failure_reason"] = reason
		}
		ok, err := repo.Transition(ctx, orderID, from, to, set)
		if err != nil {
			return err
		}
		order, err = repo.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		won = true

		event := payloads.OrderResolvedEvent{
			OrderID:              order.ID,
			IntentID:             order.IntentID,
			Status:               to,
			AmountMinor:          order.AmountMinor,
			AmountConfirmedMinor: order.AmountConfirmedMinor,
			Currency:             order.Currency,
			FailureReason:        order.FailureReason,
			ResolvedAt:           now,
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventFor(to),
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data:          event,
			OccurredAt:    now,
		}); err != nil {
			return err
		}
		if to == enums.OrderStatusPaid && order.IntentID != nil {
			return s.completer.CompleteForOrder(ctx, tx, *order.IntentID, order.ID)
		}
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve order")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, orderID.String()), map[string]any{
			"from":   from,
			"to":     to,
			"status": order.Status,
			"reason": reason,
		})
		if won {
			s.logg.Info(logCtx, "order resolved")
		} else {
			s.logg.Info(logCtx, "order already resolved")
		}
	}
	return order.Status, nil
}

func (s *Service) logIgnored(ctx context.Context, order *models.PaymentOrder, observed gateway.Status) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
		"status":   order.Status,
		"observed": observed,
	})
	s.logg.Info(logCtx, "late gateway status ignored")
}

func eventFor(status enums.OrderStatus) enums.OutboxEventType {
	switch status {
	case enums.OrderStatusPaid:
		return enums.EventOrderPaid
	case enums.OrderStatusExpired:
		return enums.EventOrderExpired
	default:
		return enums.EventOrderFailed
	}
}
