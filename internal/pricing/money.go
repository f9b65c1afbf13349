package pricing

import (
	"encoding/json"
	"fmt"
	"math"
)

// Money is an amount in minor currency units (cents).
type Money int64

// FromDecimal converts a major-unit amount such as 192.50.
func FromDecimal(amount float64) Money {
	return Money(math.Round(amount * 100))
}

// Decimal returns the amount in major units.
func (m Money) Decimal() float64 {
	return float64(m) / 100
}

func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON renders major units.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Decimal())
}

// UnmarshalJSON accepts major units.
func (m *Money) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("pricing: invalid amount %s", string(data))
	}
	*m = FromDecimal(f)
	return nil
}
