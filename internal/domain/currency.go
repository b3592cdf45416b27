package domain

import (
	"strings"

	"p2p-ledger/internal/errors"
)

var supportedCurrencies = map[string]struct{}{
	"USD": {},
	"EUR": {},
	"CNY": {},
}

// Currency is a supported ISO-4217 code. The zero value is not valid.
type Currency struct {
	code string
}

// NewCurrency trims and upper-cases code before checking it is supported.
func NewCurrency(code string) (Currency, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if len(normalized) != 3 {
		return Currency{}, errors.ErrInvalidCurrency.WithDetails("currency code must have 3 letters: " + code)
	}
	if _, ok := supportedCurrencies[normalized]; !ok {
		return Currency{}, errors.ErrInvalidCurrency.WithDetails(normalized)
	}
	return Currency{code: normalized}, nil
}

func (c Currency) Code() string {
	return c.code
}

func (c Currency) String() string {
	return c.code
}
