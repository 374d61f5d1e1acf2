package types

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeAmount     = errors.New("amount must not be negative")
	ErrFractionalMinor    = errors.New("amount has more precision than the currency allows")
	ErrAmountOutOfRange   = errors.New("amount is out of range")
	maxMinorUnits         = decimal.NewFromInt(math.MaxInt64)
	zeroDecimalCurrencies = map[string]struct{}{
		"JPY": {},
		"KRW": {},
		"VND": {},
		"CLP": {},
	}
)

// NormalizeCurrency upper-cases an ISO-4217 code and falls back to def when empty.
func NormalizeCurrency(code, def string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return strings.ToUpper(strings.TrimSpace(def))
	}
	return code
}

// CurrencyExponent returns the number of minor-unit digits for the currency.
func CurrencyExponent(currency string) int32 {
	if _, ok := zeroDecimalCurrencies[strings.ToUpper(currency)]; ok {
		return 0
	}
	return 2
}

// MinorUnitsFromDecimal converts a major-unit decimal into exact minor units.
// Values that would need rounding are rejected.
func MinorUnitsFromDecimal(amount decimal.Decimal, currency string) (int64, error) {
	if amount.IsNegative() {
		return 0, ErrNegativeAmount
	}
	scaled := amount.Shift(CurrencyExponent(currency))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, ErrFractionalMinor
	}
	if scaled.GreaterThan(maxMinorUnits) {
		return 0, ErrAmountOutOfRange
	}
	return scaled.IntPart(), nil
}

// ParseMinorUnits parses a decimal string such as "500" or "12.50".
func ParseMinorUnits(raw, currency string) (int64, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return MinorUnitsFromDecimal(amount, currency)
}

// DecimalFromMinorUnits is the inverse of MinorUnitsFromDecimal.
func DecimalFromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-CurrencyExponent(currency))
}

// FormatMinorUnits renders minor units with the currency's fixed precision.
func FormatMinorUnits(minor int64, currency string) string {
	exp := CurrencyExponent(currency)
	return DecimalFromMinorUnits(minor, currency).StringFixed(exp)
}
