package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/creatorpage-backend/pkg/enums"
)

// PaymentOrder is an externally settled payment supervised until it resolves.
type PaymentOrder struct {
	ID                   uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	IntentID             *uuid.UUID        `gorm:"column:intent_id;type:uuid"`
	Provider             string            `gorm:"column:provider;not null"`
	AmountMinor          int64             `gorm:"column:amount_minor;not null"`
	Currency             string            `gorm:"column:currency;not null"`
	PayeeReference       string            `gorm:"column:payee_reference;not null"`
	PayerActor           string            `gorm:"column:payer_actor;not null"`
	Status               enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'created'"`
	ExternalReference    *string           `gorm:"column:external_reference"`
	PayableHandle        *string           `gorm:"column:payable_handle"`
	PollAttempts         int               `gorm:"column:poll_attempts;not null;default:0"`
	AmountConfirmedMinor *int64            `gorm:"column:amount_confirmed_minor"`
	FailureReason        *string           `gorm:"column:failure_reason"`
	ResolvedAt           *time.Time        `gorm:"column:resolved_at"`
	CreatedAt            time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentOrder) TableName() string { return "payment_orders" }
