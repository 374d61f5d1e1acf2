package enums

import "fmt"

// OrderStatus tracks an externally settled payment order.
type OrderStatus string

const (
	OrderStatusCreated             OrderStatus = "created"
	OrderStatusPendingConfirmation OrderStatus = "pending_confirmation"
	OrderStatusPaid                OrderStatus = "paid"
	OrderStatusFailed              OrderStatus = "failed"
	OrderStatusExpired             OrderStatus = "expired"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusCreated,
	OrderStatusPendingConfirmation,
	OrderStatusPaid,
	OrderStatusFailed,
	OrderStatusExpired,
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:             {OrderStatusPendingConfirmation, OrderStatusFailed},
	OrderStatusPendingConfirmation: {OrderStatusPaid, OrderStatusFailed, OrderStatusExpired},
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the order has been resolved.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid || s == OrderStatusFailed || s == OrderStatusExpired
}

// CanTransitionTo reports whether s -> next is a permitted forward edge.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, candidate := range orderTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

// PaymentResult is the normalized status reported by a payment gateway.
type PaymentResult string

const (
	PaymentResultPending PaymentResult = "pending"
	PaymentResultPaid    PaymentResult = "paid"
	PaymentResultFailed  PaymentResult = "failed"
)

// OrderStatus maps a terminal gateway result onto the order lifecycle.
func (r PaymentResult) OrderStatus() (OrderStatus, bool) {
	switch r {
	case PaymentResultPaid:
		return OrderStatusPaid, true
	case PaymentResultFailed:
		return OrderStatusFailed, true
	default:
		return "", false
	}
}
