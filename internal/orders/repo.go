package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpage-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpage-backend/pkg/enums"
)

const (
	activeIntentIndex = "ux_payment_orders_active_intent"
	// sqlite names the column instead of the index
	activeIntentColumn = "payment_orders.intent_id"
)

// Repository persists payment orders. Status only changes through Transition.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.PaymentOrder) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentOrder, error)
	FindActiveByIntent(ctx context.Context, intentID uuid.UUID) (*models.PaymentOrder, error)
	FindByExternalReference(ctx context.Context, provider, reference string) (*models.PaymentOrder, error)
	Transition(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, set map[string]any) (bool, error)
	RecordPoll(ctx context.Context, id uuid.UUID) (bool, error)
	ListStale(ctx context.Context, status enums.OrderStatus, updatedBefore time.Time, limit int) ([]models.PaymentOrder, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.PaymentOrder) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindActiveByIntent(ctx context.Context, intentID uuid.UUID) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	err := r.db.WithContext(ctx).
		Where("intent_id = ? AND status IN ?", intentID, []enums.OrderStatus{
			enums.OrderStatusCreated,
			enums.OrderStatusPendingConfirmation,
		}).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByExternalReference(ctx context.Context, provider, reference string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	err := r.db.WithContext(ctx).
		Where("provider = ? AND external_reference = ?", provider, reference).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Transition is a compare-and-swap on status. False means the row was no
// longer in from.
func (r *repository) Transition(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, set map[string]any) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range set {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.PaymentOrder{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RecordPoll bumps the poll counter of an order still awaiting confirmation.
// False means the order left pending_confirmation.
func (r *repository) RecordPoll(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentOrder{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusPendingConfirmation).
		Updates(map[string]any{
			"poll_attempts": gorm.Expr("poll_attempts + 1"),
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListStale(ctx context.Context, status enums.OrderStatus, updatedBefore time.Time, limit int) ([]models.PaymentOrder, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.PaymentOrder
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at <= ?", status, updatedBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
