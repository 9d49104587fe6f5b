// Package money does invoice arithmetic in integer minor units.
package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cents is an amount in currency minor units.
type Cents int64

// Percent is a percentage in basis points: 1000 is 10%.
type Percent int64

const (
	ZeroPercent Percent = 0
	FullPercent Percent = 10000
)

var (
	ErrNegativeQuantity = errors.New("quantity must not be negative")
	ErrNegativePrice    = errors.New("unit price must not be negative")
	ErrPercentRange     = errors.New("percent must be between 0 and 100")
)

// ParseCents reads a decimal amount like "12", "12.5" or "-3.07".
func ParseCents(s string) (Cents, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" && (!hasFrac || frac == "") {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("invalid amount %q: more than two decimals", s)
	}
	if !digits(whole) || !digits(frac) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	var units int64
	if whole != "" {
		v, err := strconv.ParseInt(whole, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
		units = v
	}
	var minor int64
	if frac != "" {
		v, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
		if len(frac) == 1 {
			v *= 10
		}
		minor = v
	}
	c := Cents(units*100 + minor)
	if neg {
		c = -c
	}
	return c, nil
}

// RoundCents is ParseCents for amounts with more than two decimals, such as
// numeric(10,3) columns. The extra digits round half away from zero.
func RoundCents(s string) (Cents, error) {
	t := strings.TrimSpace(s)
	whole, frac, ok := strings.Cut(t, ".")
	if !ok || len(frac) <= 2 {
		return ParseCents(t)
	}
	if !digits(frac) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	c, err := ParseCents(whole + "." + frac[:2])
	if err != nil {
		return 0, err
	}
	if frac[2] >= '5' {
		if strings.HasPrefix(whole, "-") {
			c--
		} else {
			c++
		}
	}
	return c, nil
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FromFloat rounds a JSON number to cents. Only use it where a float already
// crossed the wire.
func FromFloat(f float64) Cents {
	return Cents(math.Round(f * 100))
}

// String formats c as a plain decimal, e.g. "1234.50".
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Format renders c with a currency code and thousands separators.
func (c Cents) Format(currency string) string {
	v := int64(c)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	units := strconv.FormatInt(v/100, 10)
	var b strings.Builder
	for i, r := range units {
		if i > 0 && (len(units)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := fmt.Sprintf("%s%s.%02d", sign, b.String(), v%100)
	if currency == "" {
		return out
	}
	return currency + " " + out
}

// PercentFromFloat converts 12.5 into 1250 basis points.
func PercentFromFloat(p float64) Percent {
	return Percent(math.Round(p * 100))
}

// ParsePercent reads "12.5" or "12.5%".
func ParsePercent(s string) (Percent, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	if s == "" {
		return 0, nil
	}
	c, err := ParseCents(s)
	if err != nil {
		return 0, fmt.Errorf("invalid percent %q", s)
	}
	return Percent(c), nil
}

func (p Percent) String() string {
	s := Cents(p).String()
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return s + "%"
}

// Valid reports whether p lies within 0–100%.
func (p Percent) Valid() bool { return p >= ZeroPercent && p <= FullPercent }

// Of applies p to amount with half-up rounding. amount must be non-negative.
func (p Percent) Of(amount Cents) Cents {
	return Cents((int64(amount)*int64(p) + int64(FullPercent)/2) / int64(FullPercent))
}
