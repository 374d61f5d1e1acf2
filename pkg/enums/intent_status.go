package enums

import "fmt"

// IntentStatus tracks the lifecycle of a visitor intent.
type IntentStatus string

const (
	IntentStatusPending   IntentStatus = "pending"
	IntentStatusResumed   IntentStatus = "resumed"
	IntentStatusCompleted IntentStatus = "completed"
	IntentStatusAbandoned IntentStatus = "abandoned"
	IntentStatusExpired   IntentStatus = "expired"
)

var validIntentStatuses = []IntentStatus{
	IntentStatusPending,
	IntentStatusResumed,
	IntentStatusCompleted,
	IntentStatusAbandoned,
	IntentStatusExpired,
}

// intentTransitions lists every forward edge. Anything else is rejected.
var intentTransitions = map[IntentStatus][]IntentStatus{
	IntentStatusPending: {IntentStatusResumed, IntentStatusAbandoned, IntentStatusExpired},
	IntentStatusResumed: {IntentStatusCompleted, IntentStatusAbandoned, IntentStatusExpired},
}

// String implements fmt.Stringer.
func (s IntentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known IntentStatus.
func (s IntentStatus) IsValid() bool {
	for _, candidate := range validIntentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition may leave this status.
func (s IntentStatus) IsTerminal() bool {
	return s == IntentStatusCompleted || s == IntentStatusAbandoned || s == IntentStatusExpired
}

// CanTransitionTo reports whether s -> next is a permitted forward edge.
func (s IntentStatus) CanTransitionTo(next IntentStatus) bool {
	for _, candidate := range intentTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseIntentStatus converts raw input into an IntentStatus.
func ParseIntentStatus(value string) (IntentStatus, error) {
	for _, candidate := range validIntentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid intent status %q", value)
}
