package lending

import (
	"fmt"
	"strconv"
	"strings"
)

// Money is an amount in cents.
type Money int64

func (m Money) String() string {
	sign := ""
	if m < 0 {
		sign = "-"
		m = -m
	}
	return fmt.Sprintf("%s%d.%02d", sign, int64(m)/100, int64(m)%100)
}

func (m Money) Times(n int) Money {
	return m * Money(n)
}

// ParseMoney reads a non-negative decimal amount with at most two fractional digits.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" && !hasFrac {
		return 0, ErrResponseInvalidArgument.WithDetail("empty amount")
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 || (hasFrac && frac == "") {
		return 0, ErrResponseInvalidArgument.WithDetail("amount %q must have at most two decimals", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	units, err := strconv.ParseUint(whole, 10, 62)
	if err != nil {
		return 0, ErrResponseInvalidArgument.WithDetail("amount %q is not a number", s)
	}
	cents, err := strconv.ParseUint(frac, 10, 8)
	if err != nil {
		return 0, ErrResponseInvalidArgument.WithDetail("amount %q is not a number", s)
	}
	return Money(units*100 + cents), nil
}

func (m Money) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Money) UnmarshalText(text []byte) error {
	parsed, err := ParseMoney(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
