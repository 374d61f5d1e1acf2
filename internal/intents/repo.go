package intents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpage-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpage-backend/pkg/enums"
)

// Repository persists intents. Status changes only go through Transition.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, intent *models.Intent) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Intent, error)
	Transition(ctx context.Context, in TransitionInput) (bool, error)
	ListExpirable(ctx context.Context, now time.Time, resumedGrace time.Duration, limit int) ([]models.Intent, error)
}

// TransitionInput describes one compare-and-swap status change.
type TransitionInput struct {
	ID   uuid.UUID
	From enums.IntentStatus
	To   enums.IntentStatus
	// Set carries extra columns written with the status.
	Set map[string]any
	// LiveAt, when non-zero, only matches rows with expires_at > LiveAt.
	LiveAt time.Time
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an intent repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, intent *models.Intent) error {
	if intent.ID == uuid.Nil {
		intent.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Intent, error) {
	var intent models.Intent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

// Transition applies the change only when the row is still in the From status.
// It reports false when another writer got there first.
func (r *repository) Transition(ctx context.Context, in TransitionInput) (bool, error) {
	updates := map[string]any{
		"status":     in.To,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range in.Set {
		updates[k] = v
	}

	query := r.db.WithContext(ctx).
		Model(&models.Intent{}).
		Where("id = ? AND status = ?", in.ID, in.From)
	if !in.LiveAt.IsZero() {
		query = query.Where("expires_at > ?", in.LiveAt)
	}
	res := query.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListExpirable returns pending intents past their TTL and resumed intents
// past TTL plus the grace window, oldest first.
func (r *repository) ListExpirable(ctx context.Context, now time.Time, resumedGrace time.Duration, limit int) ([]models.Intent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Intent
	err := r.db.WithContext(ctx).
		Where("(status = ? AND expires_at <= ?) OR (status = ? AND expires_at <= ?)",
			enums.IntentStatusPending, now,
			enums.IntentStatusResumed, now.Add(-resumedGrace)).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
