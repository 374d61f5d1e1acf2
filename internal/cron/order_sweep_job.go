package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/creatorpage-backend/internal/gateway"
	"github.com/angelmondragon/creatorpage-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpage-backend/pkg/enums"
	"github.com/angelmondragon/creatorpage-backend/pkg/logger"
)

type staleOrderReader interface {
	ListStale(ctx context.Context, status enums.OrderStatus, updatedBefore time.Time, limit int) ([]models.PaymentOrder, error)
	RecordPoll(ctx context.Context, id uuid.UUID) (bool, error)
}

type orderResolver interface {
	Gateway() gateway.Gateway
	ApplyGatewayStatus(ctx context.Context, orderID uuid.UUID, result *gateway.StatusResult) (enums.OrderStatus, error)
	Expire(ctx context.Context, orderID uuid.UUID) (enums.OrderStatus, error)
	Abandon(ctx context.Context, orderID uuid.UUID) (enums.OrderStatus, error)
}

type OrderSweepJobParams struct {
	Logger *logger.Logger
	Orders staleOrderReader
	Svc    orderResolver
	// Orphaned is how long a pending order may go unpolled before the
	// sweep takes over.
	Orphaned time.Duration
	// Budget is the full confirmation window measured from creation.
	Budget time.Duration
	// CreatedTTL fails orders that never reached the gateway.
	CreatedTTL  time.Duration
	PollTimeout time.Duration
	BatchSize   int
}

// NewOrderSweepJob picks up orders whose in-process supervision was lost,
// for example to a restart, and drives them toward a terminal state.
func NewOrderSweepJob(params OrderSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Svc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Orphaned <= 0 || params.Budget <= 0 || params.CreatedTTL <= 0 {
		return nil, fmt.Errorf("sweep windows must be positive")
	}
	if params.PollTimeout <= 0 {
		params.PollTimeout = 5 * time.Second
	}
	if params.BatchSize <= 0 {
		params.BatchSize = 100
	}
	return &orderSweepJob{params: params, now: func() time.Time { return time.Now().UTC() }}, nil
}

type orderSweepJob struct {
	params OrderSweepJobParams
	now    func() time.Time
}

func (j *orderSweepJob) Name() string { return "order-sweep" }

func (j *orderSweepJob) Run(ctx context.Context) error {
	now := j.now()
	var errs error

	orphans, err := j.params.Orders.ListStale(ctx, enums.OrderStatusPendingConfirmation, now.Add(-j.params.Orphaned), j.params.BatchSize)
	if err != nil {
		return fmt.Errorf("list orphaned orders: %w", err)
	}
	for i := range orphans {
		if err := j.sweepPending(ctx, &orphans[i], now); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("sweep order %s: %w", orphans[i].ID, err))
		}
	}

	stuck, err := j.params.Orders.ListStale(ctx, enums.OrderStatusCreated, now.Add(-j.params.CreatedTTL), j.params.BatchSize)
	if err != nil {
		return multierr.Append(errs, fmt.Errorf("list stuck orders: %w", err))
	}
	for _, order := range stuck {
		if _, err := j.params.Svc.Abandon(ctx, order.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("abandon order %s: %w", order.ID, err))
		}
	}

	j.params.Logger.Info(j.params.Logger.WithFields(ctx, map[string]any{
		"orphaned": len(orphans),
		"stuck":    len(stuck),
	}), "order sweep complete")
	return errs
}

// sweepPending makes one final lookup. A settled payable is applied; an
// unsettled one is expired once the confirmation window has passed.
func (j *orderSweepJob) sweepPending(ctx context.Context, order *models.PaymentOrder, now time.Time) error {
	if order.ExternalReference != nil {
		if live, err := j.params.Orders.RecordPoll(ctx, order.ID); err != nil {
			return err
		} else if !live {
			return nil
		}
		pollCtx, cancel := context.WithTimeout(ctx, j.params.PollTimeout)
		result, err := j.params.Svc.Gateway().LookupStatus(pollCtx, *order.ExternalReference)
		cancel()
		if err == nil && result.Status != gateway.StatusPending {
			_, err = j.params.Svc.ApplyGatewayStatus(ctx, order.ID, result)
			return err
		}
		if err != nil {
			j.params.Logger.Warn(j.params.Logger.WithOrderID(ctx, order.ID.String()), "sweep lookup failed: "+err.Error())
		}
	}
	if now.Sub(order.CreatedAt) < j.params.Budget {
		return nil
	}
	_, err := j.params.Svc.Expire(ctx, order.ID)
	return err
}
