package billing

import "github.com/shopspring/decimal"

// minorUnitExponent is the exponent of the provider's integer amounts for
// two-decimal currencies (cents).
const minorUnitExponent = -2

// MajorUnits converts a provider minor-unit amount into major units without
// going through floating point: 150000 -> 1500.00.
func MajorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, minorUnitExponent)
}

// MinorUnits converts a major-unit amount back into provider minor units.
// It is exact for any value with at most two decimal digits.
func MinorUnits(major decimal.Decimal) int64 {
	return major.Shift(-minorUnitExponent).Round(0).IntPart()
}
