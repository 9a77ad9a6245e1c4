package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"ledgersync/internal/shared/flexjson"
)

// MinorUnitExponent is the number of decimal places stored for every currency.
const MinorUnitExponent = 2

// ErrNotANumber is returned when a reported amount cannot be read as a number.
var ErrNotANumber = errors.New("amount is not a number")

// ToMinor converts a decimal major-unit amount to integer minor units,
// rounding half away from zero.
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Shift(MinorUnitExponent).Round(0).IntPart()
}

// FromMinor converts integer minor units back to a decimal amount.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -MinorUnitExponent)
}

// Signed applies the ledger sign convention: outflows negative, inflows positive.
func Signed(minor int64, outflow bool) int64 {
	if minor < 0 {
		minor = -minor
	}
	if outflow {
		return -minor
	}
	return minor
}

// Amount is a money value as reported by the aggregator.
type Amount struct {
	Amount   flexjson.Decimal `json:"amount"`
	Currency flexjson.Text    `json:"currency"`
}

// Minor returns the amount in minor units.
func (a *Amount) Minor() (int64, error) {
	if !a.Amount.Valid {
		return 0, fmt.Errorf("%w: %s", ErrNotANumber, a.Amount.Literal)
	}
	return ToMinor(a.Amount.Value), nil
}
