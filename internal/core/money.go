// Package core provides the domain types shared by the report pipeline
// and the CRUD layer.
//
// This file contains money parsing and formatting. Amounts are stored as
// integer cents so that report aggregation is exact and deterministic;
// decimal input is parsed with shopspring/decimal and rendered in the
// Brazilian locale (R$, thousands dot, decimal comma).
package core

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a monetary amount in cents of Brazilian real.
type Money struct {
	Cents int64
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// ParseDecimalToCents converts a decimal string to cents.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted and
// the third decimal place is rounded half-up. Only positive amounts are
// valid.
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if d.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	cents := d.Shift(2).Round(0)
	if !cents.IsInteger() || cents.Cmp(decimal.NewFromInt(1)) < 0 {
		return 0, ErrInvalidAmount
	}
	v := cents.IntPart()
	if v <= 0 {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// FormatBRL renders cents in the pt-BR currency convention: "R$ 1.234,56".
// Negative amounts carry a leading minus: "-R$ 1,00".
func FormatBRL(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	reais := cents / 100
	rem := cents % 100

	digits := strconv.FormatInt(reais, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	out := "R$ " + b.String() + "," + pad2(rem)
	if neg {
		return "-" + out
	}
	return out
}

// FormatBRL renders the amount, see FormatBRL.
func (m Money) FormatBRL() string {
	return FormatBRL(m.Cents)
}

func pad2(v int64) string {
	if v < 10 {
		return "0" + strconv.FormatInt(v, 10)
	}
	return strconv.FormatInt(v, 10)
}
