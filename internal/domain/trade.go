package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeFill a single executed fill from the account trade history.
type TradeFill struct {
	Quantity decimal.Decimal
	Price    decimal.Decimal
	// IsBuyer false for sells.
	IsBuyer bool
	Time    time.Time
}

// VWAP returns the volume-weighted average price of the buy fills.
// ok is false when there is no buy volume.
func VWAP(fills []TradeFill) (price decimal.Decimal, ok bool) {
	notional := decimal.Zero
	volume := decimal.Zero
	for _, f := range fills {
		if !f.IsBuyer || !f.Quantity.IsPositive() || !f.Price.IsPositive() {
			continue
		}
		notional = notional.Add(f.Quantity.Mul(f.Price))
		volume = volume.Add(f.Quantity)
	}
	if !volume.IsPositive() {
		return decimal.Zero, false
	}

	return notional.Div(volume), true
}
