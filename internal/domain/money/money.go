package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitsPerMajor is the number of minor units (paise) in one rupee
const MinorUnitsPerMajor = 100

var (
	// ErrInvalidAmount is returned when a textual amount cannot be parsed
	ErrInvalidAmount = errors.New("invalid money amount")

	// ErrInvalidRate is returned when a percentage rate cannot be parsed
	ErrInvalidRate = errors.New("invalid percentage rate")

	// ErrOutOfRange is returned when a result does not fit in int64 minor units
	ErrOutOfRange = errors.New("money amount out of range")
)

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// Money is an exact amount expressed as an integer count of minor units.
// Arithmetic on Money never goes through floating point.
type Money int64

// Zero is the zero amount
const Zero Money = 0

// FromMinor creates Money from a count of minor units
func FromMinor(minor int64) Money {
	return Money(minor)
}

// FromMajor creates Money from a whole number of major units
func FromMajor(major int64) Money {
	return Money(major * MinorUnitsPerMajor)
}

// Parse parses a decimal string such as "2124.00" or "15.5".
// More than two fractional digits is an error.
func Parse(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	minor := d.Shift(2)
	if !minor.IsInteger() {
		return Zero, fmt.Errorf("%w: %q has more than two decimal places", ErrInvalidAmount, s)
	}
	m, err := fromMinorDecimal(minor)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}
	return m, nil
}

// fromMinorDecimal converts an integral count of minor units
func fromMinorDecimal(d decimal.Decimal) (Money, error) {
	if d.GreaterThan(maxMinor) || d.LessThan(minMinor) {
		return Zero, ErrOutOfRange
	}
	return Money(d.IntPart()), nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Minor returns the amount in minor units
func (m Money) Minor() int64 {
	return int64(m)
}

// Decimal returns the amount in major units as a decimal
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

// String formats the amount with exactly two decimal places
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Add returns m + o
func (m Money) Add(o Money) Money {
	return m + o
}

// Sub returns m - o
func (m Money) Sub(o Money) Money {
	return m - o
}

// CheckedAdd returns m + o, or ErrOutOfRange when the sum overflows
func (m Money) CheckedAdd(o Money) (Money, error) {
	s := m + o
	if (o > 0 && s < m) || (o < 0 && s > m) {
		return Zero, ErrOutOfRange
	}
	return s, nil
}

// Mul returns m multiplied by an integer quantity, or ErrOutOfRange when
// the product does not fit
func (m Money) Mul(qty int64) (Money, error) {
	return fromMinorDecimal(decimal.NewFromInt(int64(m)).Mul(decimal.NewFromInt(qty)))
}

// Percent returns rate percent of m, rounded half-up to the nearest minor unit.
// This is the only rounding step used for discounts and tax.
func (m Money) Percent(rate decimal.Decimal) (Money, error) {
	return fromMinorDecimal(decimal.NewFromInt(int64(m)).Mul(rate).Shift(-2).Round(0))
}

func (m Money) IsZero() bool     { return m == 0 }
func (m Money) IsNegative() bool { return m < 0 }
func (m Money) IsPositive() bool { return m > 0 }

// Sum adds all amounts
func Sum(amounts ...Money) Money {
	var total Money
	for _, a := range amounts {
		total += a
	}
	return total
}

// MarshalJSON encodes the amount as a two-decimal string
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts either a decimal string or a JSON number
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseRate parses a percentage rate such as "18" or "12.5"
func ParseRate(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}
	return d, nil
}
