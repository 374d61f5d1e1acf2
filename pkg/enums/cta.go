package enums

import "fmt"

// CTAKind is the flow shape an intent resolves to.
type CTAKind string

const (
	CTAKindRedirect CTAKind = "redirect"
	CTAKindEnquiry  CTAKind = "enquiry"
	CTAKindBuy      CTAKind = "buy"
	CTAKindNone     CTAKind = "none"
)

var validCTAKinds = []CTAKind{
	CTAKindRedirect,
	CTAKindEnquiry,
	CTAKindBuy,
	CTAKindNone,
}

// String implements fmt.Stringer.
func (k CTAKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known CTAKind.
func (k CTAKind) IsValid() bool {
	for _, candidate := range validCTAKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// IsActionable reports whether the kind leads to a dispatchable flow.
func (k CTAKind) IsActionable() bool {
	return k == CTAKindRedirect || k == CTAKindEnquiry || k == CTAKindBuy
}

// ParseCTAKind converts raw input into a CTAKind.
func ParseCTAKind(value string) (CTAKind, error) {
	for _, candidate := range validCTAKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cta kind %q", value)
}

// BlockCTA is the call to action a creator configured on a page block.
type BlockCTA string

const (
	BlockCTAVisitLink BlockCTA = "visit_link"
	BlockCTAEnquire   BlockCTA = "enquire"
	BlockCTABuyNow    BlockCTA = "buy_now"
	BlockCTANone      BlockCTA = "none"
)

// Kind maps the configured block CTA onto an intent flow.
func (b BlockCTA) Kind() CTAKind {
	switch b {
	case BlockCTAVisitLink:
		return CTAKindRedirect
	case BlockCTAEnquire:
		return CTAKindEnquiry
	case BlockCTABuyNow:
		return CTAKindBuy
	default:
		return CTAKindNone
	}
}
