package catalog

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpage-backend/pkg/db/models"
)

// Repository reads the seller configuration the intent resolver depends on.
// Catalog CRUD lives in another service; this side is read-only.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ReadConsistent(ctx context.Context, fn func(Repository) error) error
	FindProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	FindBlock(ctx context.Context, id uuid.UUID) (*models.Block, error)
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// ReadConsistent runs fn inside one read-only repeatable-read transaction so
// every lookup sees the same committed catalog.
func (r *repository) ReadConsistent(ctx context.Context, fn func(Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repository{db: tx})
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
}

func (r *repository) FindProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repository) FindBlock(ctx context.Context, id uuid.UUID) (*models.Block, error) {
	var block models.Block
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&block).Error; err != nil {
		return nil, err
	}
	return &block, nil
}

func (r *repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}
