package model

import (
	"fmt"
	"strconv"
	"strings"
)

// moneyScale is the number of fractional decimal digits Money keeps exactly,
// per spec.md §4.3 ("fixed-point USD with four decimal places").
const moneyScale = 4

var moneyScaleFactor = int64(10000) // 10^moneyScale

// Money is a fixed-point USD amount stored as an integer count of
// ten-thousandths of a dollar. All arithmetic is integer arithmetic; Money
// never round-trips through float64. This is the only numeric type cost
// accounting, budget reservation, and decision-log cost fields use.
type Money struct {
	micros int64 // units of 1/10000 USD; negative values are not expected but not rejected
}

// Zero is the additive identity.
var Zero = Money{}

// NewMoneyFromString parses a decimal string like "2.50" or "0.0031" into a
// Money value, rounding to four fractional digits (half-away-from-zero on
// the fifth digit, if present) without ever parsing through float64.
func NewMoneyFromString(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, fmt.Errorf("money: empty string")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	intPart := s
	fracPart := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart = s[:idx]
		fracPart = s[idx+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	whole, err := strconv.ParseInt(intPart, 10, 63)
	if err != nil {
		return Zero, fmt.Errorf("money: invalid integer part %q: %w", intPart, err)
	}

	// Pad/truncate-with-rounding the fractional part to moneyScale digits.
	roundUp := false
	if len(fracPart) > moneyScale {
		roundUp = fracPart[moneyScale] >= '5'
		fracPart = fracPart[:moneyScale]
	}
	for len(fracPart) < moneyScale {
		fracPart += "0"
	}
	var fracUnits int64
	if fracPart != "" {
		fracUnits, err = strconv.ParseInt(fracPart, 10, 63)
		if err != nil {
			return Zero, fmt.Errorf("money: invalid fractional part %q: %w", fracPart, err)
		}
	}
	if roundUp {
		fracUnits++
	}

	total := whole*moneyScaleFactor + fracUnits
	if neg {
		total = -total
	}
	return Money{micros: total}, nil
}

// MoneyFromMicros constructs a Money directly from its ten-thousandths-of-a-
// dollar representation; used by decision-log deserialization.
func MoneyFromMicros(micros int64) Money {
	return Money{micros: micros}
}

// Micros returns the raw ten-thousandths-of-a-dollar integer.
func (m Money) Micros() int64 {
	return m.micros
}

// MoneyFromWeightedFraction returns total * fraction, rounded to the nearest
// ten-thousandth. Used only for budget allocation weighting (spec.md §4.3's
// duration/genre-count/BPM-window weights), never for price-per-token cost
// conversion, which must stay in MulTokens' pure integer path.
func MoneyFromWeightedFraction(total Money, fraction float64) Money {
	scaled := float64(total.micros) * fraction
	if scaled >= 0 {
		return Money{micros: int64(scaled + 0.5)}
	}
	return Money{micros: int64(scaled - 0.5)}
}

// DivideEvenly splits m into n equal shares, distributing the remainder
// ten-thousandths one unit at a time to the first shares so the parts sum
// back to exactly m.
func (m Money) DivideEvenly(n int) []Money {
	if n <= 0 {
		return nil
	}
	base := m.micros / int64(n)
	remainder := m.micros % int64(n)
	shares := make([]Money, n)
	for i := range shares {
		v := base
		if int64(i) < remainder {
			v++
		}
		shares[i] = Money{micros: v}
	}
	return shares
}

func (m Money) Add(other Money) Money {
	return Money{micros: m.micros + other.micros}
}

func (m Money) Sub(other Money) Money {
	return Money{micros: m.micros - other.micros}
}

// MulTokens multiplies a per-1000-unit rate by a token count, dividing by
// 1000 with integer rounding. This is the only path cost accounting uses to
// turn (price-per-1K, token-count) into a cost, so the multiplication never
// passes through float64 per spec.md §9's budget-arithmetic note.
func (m Money) MulTokens(tokens int64) Money {
	// m.micros is "money per 1000 tokens" in 1/10000-dollar units.
	num := m.micros * tokens
	// round to nearest, half away from zero
	if num >= 0 {
		return Money{micros: (num + 500) / 1000}
	}
	return Money{micros: (num - 500) / 1000}
}

func (m Money) Cmp(other Money) int {
	switch {
	case m.micros < other.micros:
		return -1
	case m.micros > other.micros:
		return 1
	default:
		return 0
	}
}

func (m Money) IsZero() bool { return m.micros == 0 }
func (m Money) IsNeg() bool  { return m.micros < 0 }

// String renders the amount as a fixed decimal string, e.g. "2.5000".
func (m Money) String() string {
	neg := m.micros < 0
	v := m.micros
	if neg {
		v = -v
	}
	whole := v / moneyScaleFactor
	frac := v % moneyScaleFactor
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s%d.%04d", sign, whole, frac)
}

// MarshalJSON renders Money as a JSON string so the decision log and sidecar
// JSON never pass cost figures through a float64 JSON number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := NewMoneyFromString(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
