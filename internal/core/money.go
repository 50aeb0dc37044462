// Package core provides money parsing and handling utilities.
//
// Amounts are held as integer paise. Parsing and multiplication go through
// shopspring/decimal so rounding happens exactly once, at the paise boundary.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount of Indian Rupees in paise.
type Money struct {
	Paise int64
}

// MaxPaise bounds any single amount: one lakh crore rupees.
const MaxPaise int64 = 1_000_000_000_000_000

var (
	hundred  = decimal.NewFromInt(100)
	maxPaise = decimal.NewFromInt(MaxPaise)
)

// Rupees builds Money from a whole rupee value.
func Rupees(r int64) Money {
	return Money{Paise: r * 100}
}

// MoneyFromDecimal rounds a rupee decimal half-up to the nearest paisa. Values
// beyond ±MaxPaise are rejected with ErrInvalidAmount.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	return paiseFromDecimal(d.Mul(hundred))
}

func paiseFromDecimal(p decimal.Decimal) (Money, error) {
	p = p.Round(0)
	if p.Abs().GreaterThan(maxPaise) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Paise: p.IntPart()}, nil
}

// ParseMoney converts a rupee string to Money.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. Signs, zero and anything that is
// not a plain decimal number are rejected with ErrInvalidAmount.
//
// Examples:
//
//	ParseMoney("12.34")  -> 1234 paise
//	ParseMoney("12,345") -> 1235 paise
//	ParseMoney("-1")     -> ErrInvalidAmount
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") || strings.ContainsAny(s, "eE") {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	m, err := MoneyFromDecimal(d)
	if err != nil {
		return Money{}, err
	}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// ParseQuantity parses an item unit count. Fractional units are allowed.
func ParseQuantity(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, ErrInvalidUnit
	}
	return d, nil
}

// Validate rejects zero, negative and out-of-range amounts. It applies to input,
// never to aggregates, which may legitimately be negative.
func (m Money) Validate() error {
	if m.Paise <= 0 || m.Paise > MaxPaise {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Add(o Money) Money {
	return Money{Paise: m.Paise + o.Paise}
}

func (m Money) Sub(o Money) Money {
	return Money{Paise: m.Paise - o.Paise}
}

func (m Money) IsNegative() bool {
	return m.Paise < 0
}

// Decimal returns the rupee value.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Paise, -2)
}

// String renders the rupee value with two decimals, e.g. "1234.50".
// Currency symbols and digit grouping belong to the presentation layer.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON encodes Money as a JSON number of rupees.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string of rupees.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*m = Money{}
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("amount %s: %w", s, ErrInvalidAmount)
	}
	parsed, err := MoneyFromDecimal(d)
	if err != nil {
		return fmt.Errorf("amount %s: %w", s, err)
	}
	*m = parsed
	return nil
}
