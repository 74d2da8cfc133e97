// Package model holds the shared data types that flow between the
// store, indexer, aggregator, and signal packages. Keeping them in one
// leaf package (rather than defining them inside store and importing
// store everywhere) avoids the import cycles a persistence-owned model
// package would otherwise create.
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Scale is the implied fractional precision of every Amount: six
// decimal digits, matching the indexer's decimal-string wire format
// for size, price, and volume fields.
const Scale int64 = 1_000_000

// Amount is a fixed-point quantity with six fractional digits, carried
// as an int64 to avoid the rounding drift of float64 across millions of
// fills. There is no third-party decimal dependency in the corpus that
// fits a fixed-scale domain this narrow; see DESIGN.md.
type Amount int64

// Zero is the additive identity.
const Zero Amount = 0

// ParseAmount parses a decimal-string wire value (e.g. "12.345000" or
// "12") into an Amount; digits past the sixth fractional place are
// truncated.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	wholeVal, err := strconv.ParseInt(whole, 10, 63)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	var fracVal int64
	if hasFrac {
		if len(frac) > 6 {
			frac = frac[:6]
		}
		for len(frac) < 6 {
			frac += "0"
		}
		fracVal, err = strconv.ParseInt(frac, 10, 63)
		if err != nil {
			return 0, fmt.Errorf("parse amount %q: %w", s, err)
		}
	}
	v := wholeVal*Scale + fracVal
	if neg {
		v = -v
	}
	return Amount(v), nil
}

// FromFloat converts a float64 dollar/unit value into an Amount.
func FromFloat(f float64) Amount {
	return Amount(int64(f*float64(Scale) + sign(f)*0.5))
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}

// ToFloat converts an Amount back to a float64. Only used at
// presentation boundaries (signal scoring math, CLI output) — never in
// the aggregator's accumulation of many fills, where integer math
// avoids drift.
func (a Amount) ToFloat() float64 {
	return float64(a) / float64(Scale)
}

// Add returns a+b.
func (a Amount) Add(b Amount) Amount { return a + b }

// Sub returns a-b.
func (a Amount) Sub(b Amount) Amount { return a - b }

// Mul multiplies two six-decimal fixed-point values, rescaling the
// product back down to six decimals (the product of two 1e6-scaled
// integers is 1e12-scaled).
func (a Amount) Mul(b Amount) Amount {
	return Amount((int64(a) * int64(b)) / Scale)
}

// Div divides a by b, returning a six-decimal fixed-point quotient.
// Division by zero returns 0.
func (a Amount) Div(b Amount) Amount {
	if b == 0 {
		return 0
	}
	return Amount((int64(a) * Scale) / int64(b))
}

// String renders the amount with six fractional digits trimmed to a
// human scale (two decimals for display), matching the teacher's
// currency-formatting idiom adapted for USD instead of Rupiah.
func (a Amount) String() string {
	return FormatUSD(a)
}

// FormatUSD renders an Amount as a "$"-prefixed, thousands-grouped
// string with two decimal places.
func FormatUSD(a Amount) string {
	neg := a < 0
	if neg {
		a = -a
	}
	whole := int64(a) / Scale
	cents := (int64(a) % Scale) / (Scale / 100)

	digits := strconv.FormatInt(whole, 10)
	var grouped strings.Builder
	n := len(digits)
	for i, d := range digits {
		if i > 0 && (n-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(d)
	}

	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s$%s.%02d", sign, grouped.String(), cents)
}
