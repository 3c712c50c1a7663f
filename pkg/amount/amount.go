// Package amount normalizes and compares currency amounts as they appear in
// the portal ("$1,431.43", "USD 452.67", "1431.43").
package amount

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Normalize strips everything except digits and the decimal point.
// When more than one '.' survives only the last one is kept, so thousands
// separators written as dots collapse too. Normalize is idempotent.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	s := b.String()

	last := strings.LastIndexByte(s, '.')
	if last == -1 || strings.Count(s, ".") == 1 {
		return s
	}
	return strings.ReplaceAll(s[:last], ".", "") + s[last:]
}

// HasDigits reports whether raw contains at least one digit
func HasDigits(raw string) bool {
	return strings.IndexAny(raw, "0123456789") >= 0
}

// Parse converts a raw amount into a decimal
func Parse(raw string) (decimal.Decimal, error) {
	return decimal.NewFromString(Normalize(raw))
}

// Equal compares two raw amounts by value, so "500" equals "$500.00".
// Amounts that cannot be parsed fall back to comparing normalized text.
func Equal(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	da, errA := decimal.NewFromString(na)
	db, errB := decimal.NewFromString(nb)
	if errA != nil || errB != nil {
		return na == nb
	}
	return da.Equal(db)
}

// Looks reports whether text is shaped like a currency amount: it must carry
// a decimal part or a currency marker so bare identifiers are not mistaken
// for amounts.
func Looks(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" || len(t) > 32 || !HasDigits(t) {
		return false
	}
	hasMarker := strings.ContainsAny(t, "$€£¥") || strings.Contains(strings.ToUpper(t), "USD")
	n := Normalize(t)
	dot := strings.LastIndexByte(n, '.')
	hasCents := dot >= 0 && len(n)-dot-1 == 2
	if !hasMarker && !hasCents {
		return false
	}
	for _, r := range t {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			if !strings.Contains(strings.ToUpper(t), "USD") {
				return false
			}
		}
	}
	return true
}
