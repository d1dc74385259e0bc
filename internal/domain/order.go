package domain

import "github.com/shopspring/decimal"

// Side order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType order type.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus normalised exchange order status.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
	OrderStatusUnknown         OrderStatus = "UNKNOWN"
)

// OrderRequest order to be submitted.
type OrderRequest struct {
	Pair     Pair
	Side     Side
	Type     OrderType
	Quantity decimal.Decimal
	// Price is only used for limit orders.
	Price         decimal.Decimal
	ClientOrderID string
}

// OrderResult outcome of an order submission.
type OrderResult struct {
	Success        bool
	OrderID        string
	FilledQuantity decimal.Decimal
	AveragePrice   decimal.Decimal
	Status         OrderStatus
}

// Working reports whether part of the order may still execute.
func (r OrderResult) Working() bool {
	return r.Status == OrderStatusNew || r.Status == OrderStatusPartiallyFilled
}
