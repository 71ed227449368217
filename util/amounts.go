package util

import (
	"math"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var maxInt64 = decimal.NewFromInt(math.MaxInt64)

// AmountFromDecimal converts a whole-unit decimal amount (e.g. 10.5) into
// integer base units. Amounts with more than AMOUNT_DECIMALS fractional
// digits, or which overflow int64, are rejected.
func AmountFromDecimal(d decimal.Decimal) (int64, error) {
	return UnitsFromDecimal(d, AMOUNT_DECIMALS)
}

// UnitsFromDecimal converts a balance of something divisible to places
// decimals into its smallest indivisible units. Assets carry their own
// places (0 for unique-count tokens); the native currency uses AMOUNT_DECIMALS.
func UnitsFromDecimal(d decimal.Decimal, places int32) (int64, error) {

	if places < 0 || places > AMOUNT_DECIMALS {
		return 0, errors.Errorf("Invalid divisibility %d", places)
	}

	units := d.Shift(places)
	if !units.Equal(units.Truncate(0)) {
		return 0, errors.Errorf("Amount %s has more than %d decimal places", d.String(), places)
	}

	if units.Abs().GreaterThan(maxInt64) {
		return 0, errors.Errorf("Amount %s out of range", d.String())
	}

	return units.IntPart(), nil
}

// ParseAmount parses a decimal string into integer base units
func ParseAmount(s string) (int64, error) {

	d, err := decimal.NewFromString(StripQuote(s))
	if err != nil {
		return 0, errors.Wrapf(err, "Invalid amount '%s'", s)
	}

	return AmountFromDecimal(d)
}

// FormatAmount renders base units as a fixed-point decimal string
func FormatAmount(units int64) string {
	return decimal.New(units, -AMOUNT_DECIMALS).StringFixed(AMOUNT_DECIMALS)
}

// DecimalFromAmount is the inverse of AmountFromDecimal
func DecimalFromAmount(units int64) decimal.Decimal {
	return decimal.New(units, -AMOUNT_DECIMALS)
}
