package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/creatorpage-backend/pkg/enums"
)

// IntentResumedEvent is emitted when an intent is claimed after the identity detour
// or directly by a caller that needs no login.
type IntentResumedEvent struct {
	IntentID  uuid.UUID     `json:"intent_id"`
	ProfileID uuid.UUID     `json:"profile_id"`
	CTAKind   enums.CTAKind `json:"cta_kind"`
	Actor     string        `json:"actor"`
	ResumedAt time.Time     `json:"resumed_at"`
}

// IntentCompletedEvent is emitted when an intent reaches its terminal success state.
type IntentCompletedEvent struct {
	IntentID    uuid.UUID     `json:"intent_id"`
	ProfileID   uuid.UUID     `json:"profile_id"`
	CTAKind     enums.CTAKind `json:"cta_kind"`
	Actor       string        `json:"actor"`
	OrderID     *uuid.UUID    `json:"order_id,omitempty"`
	CompletedAt time.Time     `json:"completed_at"`
}

// IntentExpiredEvent is emitted when an intent TTL lapses before completion.
type IntentExpiredEvent struct {
	IntentID      uuid.UUID          `json:"intent_id"`
	ProfileID     uuid.UUID          `json:"profile_id"`
	PreviousState enums.IntentStatus `json:"previous_status"`
	ExpiredAt     time.Time          `json:"expired_at"`
}

// LeadRecordedEvent notifies the creator about a new enquiry.
type LeadRecordedEvent struct {
	LeadID    uuid.UUID  `json:"lead_id"`
	IntentID  uuid.UUID  `json:"intent_id"`
	ProfileID uuid.UUID  `json:"profile_id"`
	ProductID *uuid.UUID `json:"product_id,omitempty"`
	Name      string     `json:"name"`
	Email     *string    `json:"email,omitempty"`
	Phone     *string    `json:"phone,omitempty"`
}

// OrderOpenedEvent is emitted once the gateway issued a payable reference.
type OrderOpenedEvent struct {
	OrderID           uuid.UUID  `json:"order_id"`
	IntentID          *uuid.UUID `json:"intent_id,omitempty"`
	AmountMinor       int64      `json:"amount_minor"`
	Currency          string     `json:"currency"`
	PayeeReference    string     `json:"payee_reference"`
	Provider          string     `json:"provider"`
	ExternalReference string     `json:"external_reference"`
}

// OrderResolvedEvent covers order_paid, order_failed and order_expired.
type OrderResolvedEvent struct {
	OrderID              uuid.UUID         `json:"order_id"`
	IntentID             *uuid.UUID        `json:"intent_id,omitempty"`
	Status               enums.OrderStatus `json:"status"`
	AmountMinor          int64             `json:"amount_minor"`
	AmountConfirmedMinor *int64            `json:"amount_confirmed_minor,omitempty"`
	Currency             string            `json:"currency"`
	FailureReason        *string           `json:"failure_reason,omitempty"`
	ResolvedAt           time.Time         `json:"resolved_at"`
}

// Correlation returns the ids subscribers filter on. Every event payload
// implements it.
func (e IntentResumedEvent) Correlation() map[string]string {
	return map[string]string{"intent_id": e.IntentID.String(), "profile_id": e.ProfileID.String(), "cta_kind": string(e.CTAKind)}
}

func (e IntentCompletedEvent) Correlation() map[string]string {
	out := map[string]string{"intent_id": e.IntentID.String(), "profile_id": e.ProfileID.String(), "cta_kind": string(e.CTAKind)}
	if e.OrderID != nil {
		out["order_id"] = e.OrderID.String()
	}
	return out
}

func (e IntentExpiredEvent) Correlation() map[string]string {
	return map[string]string{"intent_id": e.IntentID.String(), "profile_id": e.ProfileID.String()}
}

func (e LeadRecordedEvent) Correlation() map[string]string {
	return map[string]string{"lead_id": e.LeadID.String(), "intent_id": e.IntentID.String(), "profile_id": e.ProfileID.String()}
}

func (e OrderOpenedEvent) Correlation() map[string]string {
	return withIntent(map[string]string{"order_id": e.OrderID.String(), "provider": e.Provider}, e.IntentID)
}

func (e OrderResolvedEvent) Correlation() map[string]string {
	return withIntent(map[string]string{"order_id": e.OrderID.String(), "order_status": string(e.Status)}, e.IntentID)
}

func withIntent(out map[string]string, intentID *uuid.UUID) map[string]string {
	if intentID != nil {
		out["intent_id"] = intentID.String()
	}
	return out
}
