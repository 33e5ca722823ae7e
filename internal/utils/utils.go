package utils

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// RoundPrice rounds a price to the given number of decimal places using
// banker's rounding (round half to even). The same rule is applied to every
// leg of a bracket so rounding never skews the reward-to-risk ratio.
func RoundPrice(price decimal.Decimal, precision int32) decimal.Decimal {
	return price.RoundBank(precision)
}

// PrecisionFromTick derives the number of decimal places from a tick size,
// e.g. 0.00001 -> 5. A non-positive tick yields 0.
func PrecisionFromTick(tick decimal.Decimal) int32 {
	if tick.Sign() <= 0 {
		return 0
	}
	p := int32(0)
	one := decimal.NewFromInt(1)
	for tick.LessThan(one) && p < 12 {
		tick = tick.Shift(1)
		p++
	}
	return p
}

// FloorToLot rounds a quantity down to the nearest multiple of the lot unit.
func FloorToLot(qty, lotUnit int64) int64 {
	if lotUnit <= 0 {
		return qty
	}
	return qty - qty%lotUnit
}

// FormatQty renders an integer unit quantity for wire payloads.
func FormatQty(qty int64) string {
	return strconv.FormatInt(qty, 10)
}
