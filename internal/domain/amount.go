package domain

import (
	"github.com/shopspring/decimal"

	"p2p-ledger/internal/errors"
)

// MaxAmountCents is the largest amount a single payment may carry.
const MaxAmountCents int64 = 999_999_999

// Amount is a non-negative number of minor currency units (cents).
type Amount struct {
	cents int64
}

func NewAmount(cents int64) (Amount, error) {
	if cents < 0 || cents > MaxAmountCents {
		return Amount{}, errors.ErrInvalidAmount.WithDetails(decimal.NewFromInt(cents).String())
	}
	return Amount{cents: cents}, nil
}

// ParseAmount accepts a decimal string of cents, such as a JSON number.
// Fractional cents are rejected rather than rounded.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, errors.ErrInvalidAmount.WithDetails(err.Error())
	}
	if !d.IsInteger() {
		return Amount{}, errors.ErrInvalidAmount.WithDetails("fractional cents: " + s)
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(MaxAmountCents)) {
		return Amount{}, errors.ErrInvalidAmount.WithDetails(s)
	}
	return Amount{cents: d.IntPart()}, nil
}

func (a Amount) Cents() int64 {
	return a.cents
}

func (a Amount) IsZero() bool {
	return a.cents == 0
}

// Decimal returns the amount in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(a.cents, -2)
}

// String formats the amount in major units with two decimals, e.g. "20.00".
func (a Amount) String() string {
	return a.Decimal().StringFixed(2)
}

// FormatCents renders an arbitrary cents value (such as an account balance)
// the same way Amount.String does.
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
