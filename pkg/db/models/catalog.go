package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/creatorpage-backend/pkg/enums"
)

// Profile is the seller page owner. Only the fields read while resolving
// intents are mapped.
type Profile struct {
	ID                     uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Handle                 string    `gorm:"column:handle;not null"`
	PayeeReference         string    `gorm:"column:payee_reference;not null"`
	Currency               string    `gorm:"column:currency;not null"`
	AllowAnonymousEnquiry  bool      `gorm:"column:allow_anonymous_enquiry;not null;default:false"`
	AllowAnonymousPurchase bool      `gorm:"column:allow_anonymous_purchase;not null;default:false"`
	IsPublished            bool      `gorm:"column:is_published;not null;default:true"`
	CreatedAt              time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Profile) TableName() string { return "profiles" }

// Block is a configurable element on a profile page.
type Block struct {
	ID                    uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	ProfileID             uuid.UUID      `gorm:"column:profile_id;type:uuid;not null"`
	ProductID             *uuid.UUID     `gorm:"column:product_id;type:uuid"`
	CTA                   enums.BlockCTA `gorm:"column:cta;not null;default:'none'"`
	TargetURL             *string        `gorm:"column:target_url"`
	AllowAnonymousEnquiry *bool          `gorm:"column:allow_anonymous_enquiry"`
	IsVisible             bool           `gorm:"column:is_visible;not null;default:true"`
	CreatedAt             time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Block) TableName() string { return "blocks" }

// Product is a sellable item owned by a profile.
type Product struct {
	ID                     uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProfileID              uuid.UUID `gorm:"column:profile_id;type:uuid;not null"`
	Title                  string    `gorm:"column:title;not null"`
	PriceMinor             int64     `gorm:"column:price_minor;not null"`
	Currency               *string   `gorm:"column:currency"`
	AllowAnonymousPurchase *bool     `gorm:"column:allow_anonymous_purchase"`
	IsActive               bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt              time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }
