package dispatch

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpage-backend/pkg/db/models"
)

// LeadRepository stores enquiries.
type LeadRepository interface {
	WithTx(tx *gorm.DB) LeadRepository
	Create(ctx context.Context, lead *models.Lead) error
	FindByIntent(ctx context.Context, intentID uuid.UUID) (*models.Lead, error)
}

type leadRepository struct {
	db *gorm.DB
}

func NewLeadRepository(db *gorm.DB) LeadRepository {
	return &leadRepository{db: db}
}

func (r *leadRepository) WithTx(tx *gorm.DB) LeadRepository {
	if tx == nil {
		return r
	}
	return &leadRepository{db: tx}
}

func (r *leadRepository) Create(ctx context.Context, lead *models.Lead) error {
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(lead).Error
}

func (r *leadRepository) FindByIntent(ctx context.Context, intentID uuid.UUID) (*models.Lead, error) {
	var lead models.Lead
	if err := r.db.WithContext(ctx).Where("intent_id = ?", intentID).First(&lead).Error; err != nil {
		return nil, err
	}
	return &lead, nil
}
