package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/creatorpage-backend/pkg/enums"
)

// Intent is a durable record of a visitor action captured on a creator page.
// Its ID doubles as the opaque resume token.
type Intent struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ProfileID      uuid.UUID          `gorm:"column:profile_id;type:uuid;not null"`
	BlockID        *uuid.UUID         `gorm:"column:block_id;type:uuid"`
	ProductID      *uuid.UUID         `gorm:"column:product_id;type:uuid"`
	Actor          string             `gorm:"column:actor;not null"`
	CTAKind        enums.CTAKind      `gorm:"column:cta_kind;type:cta_kind;not null"`
	RequiresLogin  bool               `gorm:"column:requires_login;not null"`
	Status         enums.IntentStatus `gorm:"column:status;type:intent_status;not null;default:'pending'"`
	AmountMinor    int64              `gorm:"column:amount_minor;not null;default:0"`
	Currency       string             `gorm:"column:currency;not null"`
	PayeeReference *string            `gorm:"column:payee_reference"`
	TargetURL      *string            `gorm:"column:target_url"`
	ExpiresAt      time.Time          `gorm:"column:expires_at;not null"`
	ResumedAt      *time.Time         `gorm:"column:resumed_at"`
	CompletedAt    *time.Time         `gorm:"column:completed_at"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (Intent) TableName() string { return "intents" }

// IsExpiredAt reports whether the intent TTL elapsed at now.
func (i Intent) IsExpiredAt(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}
