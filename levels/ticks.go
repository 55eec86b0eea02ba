package levels

import (
	"github.com/shopspring/decimal"
)

// DefaultTickSize is the NSE cash-segment tick size.
const DefaultTickSize = 0.05

// RoundToTick rounds price to the nearest multiple of tick. Decimal
// arithmetic keeps rounded levels exact (99.95, not 99.94999...), which
// matters because levels are compared against bar extremes with plain
// float comparisons downstream.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	p := decimal.NewFromFloat(price)
	t := decimal.NewFromFloat(tick)
	ticks := p.Div(t).Round(0)
	out, _ := ticks.Mul(t).Float64()
	return out
}
