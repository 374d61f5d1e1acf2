package gateway

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/creatorpage-backend/pkg/errors"
)

// Status is the gateway-side state of a payable.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

// PayableRequest asks the gateway for something the payer can settle.
type PayableRequest struct {
	OrderID        uuid.UUID
	AmountMinor    int64
	Currency       string
	PayeeReference string
	PayerActor     string
	SourceToken    string
	IdempotencyKey string
}

// Payable is the gateway handle for an order.
type Payable struct {
	ExternalReference string
	// Handle is what the payer acts on: a UPI deep link, QR payload or receipt URL.
	Handle string
}

// StatusResult is one observation of a payable. Providers that report minor
// units set AmountMinor; providers that report a major-unit decimal set
// Amount and leave the conversion to the order's currency. An empty Currency
// means the provider did not report one.
type StatusResult struct {
	Status      Status
	AmountMinor *int64
	Amount      *decimal.Decimal
	Currency    string
	Reason      string
}

// Gateway is the boundary to the third party that settles payments. It is
// treated as an opaque order-status resource.
type Gateway interface {
	Name() string
	CreatePayable(ctx context.Context, req PayableRequest) (*Payable, error)
	LookupStatus(ctx context.Context, externalReference string) (*StatusResult, error)
}

// IsTransient reports whether a gateway failure is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if typed := pkgerrors.As(err); typed != nil {
		return pkgerrors.IsRetryable(err)
	}
	return true
}
