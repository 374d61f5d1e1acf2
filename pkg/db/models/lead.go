package models

import (
	"time"

	"github.com/google/uuid"
)

// Lead records an enquiry a visitor sent to a creator.
type Lead struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	IntentID  uuid.UUID  `gorm:"column:intent_id;type:uuid;not null;uniqueIndex"`
	ProfileID uuid.UUID  `gorm:"column:profile_id;type:uuid;not null"`
	BlockID   *uuid.UUID `gorm:"column:block_id;type:uuid"`
	ProductID *uuid.UUID `gorm:"column:product_id;type:uuid"`
	Actor     string     `gorm:"column:actor;not null"`
	Name      string     `gorm:"column:name;not null"`
	Email     *string    `gorm:"column:email"`
	Phone     *string    `gorm:"column:phone"`
	Message   string     `gorm:"column:message;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (Lead) TableName() string { return "leads" }
