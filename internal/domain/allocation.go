package domain

import "github.com/shopspring/decimal"

// Allocation candidate order produced by sizing. Lives for one cycle only.
type Allocation struct {
	Action            Side
	Quantity          decimal.Decimal
	EstimatedNotional decimal.Decimal
}

// MarketSnapshot instrument state an allocation is computed from.
type MarketSnapshot struct {
	Rules        TradingRules
	QuoteBalance decimal.Decimal
	BaseBalance  decimal.Decimal
	Price        decimal.Decimal
}
