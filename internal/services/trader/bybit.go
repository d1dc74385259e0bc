package trader

import (
	"context"

	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/signalbot/internal/domain"
)

// bybitOrderGone is returned when cancelling an order that already finished.
const bybitOrderGone = 170213

// spot only status, not enumerated by the client library
const bybitPartiallyFilledCanceled = bybit.OrderStatus("PartiallyFilledCanceled")

// Bybit submits spot orders through the Bybit v5 API.
type Bybit struct {
	client *bybit.Client
}

// NewBybit creates a Bybit order executor.
func NewBybit(client *bybit.Client) *Bybit {
	return &Bybit{client: client}
}

// SubmitOrder places the order, then reads back its execution state.
func (t *Bybit) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if !req.Quantity.IsPositive() {
		return domain.OrderResult{}, errors.Errorf("order quantity must be positive, got %s", req.Quantity)
	}
	if err := ctx.Err(); err != nil {
		return domain.OrderResult{}, err
	}

	// spot market buys are sized in quote coin unless told otherwise
	unit := bybit.MarketUnitBaseCoin
	param := bybit.V5CreateOrderParam{
		Category:   bybit.CategoryV5Spot,
		Symbol:     bybit.SymbolV5(req.Pair.Symbol()),
		Side:       bybitSide(req.Side),
		OrderType:  bybit.OrderTypeMarket,
		Qty:        req.Quantity.String(),
		MarketUnit: &unit,
	}
	if req.Type == domain.OrderTypeLimit {
		if !req.Price.IsPositive() {
			return domain.OrderResult{}, errors.New("limit order requires a positive price")
		}
		price := req.Price.String()
		param.OrderType = bybit.OrderTypeLimit
		param.Price = &price
		param.MarketUnit = nil
	}
	if req.ClientOrderID != "" {
		linkID := req.ClientOrderID
		param.OrderLinkID = &linkID
	}

	created, err := t.client.V5().Order().CreateOrder(param)
	if err != nil {
		return domain.OrderResult{}, errors.Wrapf(err, "create bybit %s order for %s", req.Side, req.Pair.String())
	}
	orderID := created.Result.OrderID

	if err := ctx.Err(); err != nil {
		return domain.OrderResult{OrderID: orderID, Status: domain.OrderStatusUnknown}, nil
	}

	order, err := t.lookupOrder(req.Pair, orderID)
	if err != nil {
		// the order is placed; report it so the caller can still cancel a remainder
		return domain.OrderResult{OrderID: orderID, Status: domain.OrderStatusUnknown}, nil
	}

	return bybitResult(order)
}

func (t *Bybit) lookupOrder(pair domain.Pair, orderID string) (bybit.V5GetOrder, error) {
	symbol := bybit.SymbolV5(pair.Symbol())
	id := orderID

	open, err := t.client.V5().Order().GetOpenOrders(bybit.V5GetOpenOrdersParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   &symbol,
		OrderID:  &id,
	})
	if err == nil && len(open.Result.List) > 0 {
		return open.Result.List[0], nil
	}

	history, err := t.client.V5().Order().GetHistoryOrders(bybit.V5GetHistoryOrdersParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   &symbol,
		OrderID:  &id,
	})
	if err != nil {
		return bybit.V5GetOrder{}, errors.Wrapf(err, "get bybit order %s", orderID)
	}
	if len(history.Result.List) == 0 {
		return bybit.V5GetOrder{}, errors.Errorf("bybit order %s not found", orderID)
	}

	return history.Result.List[0], nil
}

// CancelOrder cancels a working order. Orders that already finished are ignored.
func (t *Bybit) CancelOrder(ctx context.Context, pair domain.Pair, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id := orderID
	_, err := t.client.V5().Order().CancelOrder(bybit.V5CancelOrderParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   bybit.SymbolV5(pair.Symbol()),
		OrderID:  &id,
	})
	if err != nil {
		var apiErr *bybit.ErrorResponse
		if errors.As(err, &apiErr) && apiErr.RetCode == bybitOrderGone {
			return nil
		}
		return errors.Wrapf(err, "cancel bybit order %s", orderID)
	}

	return nil
}

func bybitResult(order bybit.V5GetOrder) (domain.OrderResult, error) {
	executed := decimal.Zero
	if order.CumExecQty != "" {
		v, err := decimal.NewFromString(order.CumExecQty)
		if err != nil {
			return domain.OrderResult{}, errors.Wrap(err, "parse cumulative executed quantity")
		}
		executed = v
	}

	avgPrice := decimal.Zero
	if order.AvgPrice != "" {
		v, err := decimal.NewFromString(order.AvgPrice)
		if err != nil {
			return domain.OrderResult{}, errors.Wrap(err, "parse average price")
		}
		avgPrice = v
	}
	if !avgPrice.IsPositive() && executed.IsPositive() && order.CumExecValue != "" {
		value, err := decimal.NewFromString(order.CumExecValue)
		if err != nil {
			return domain.OrderResult{}, errors.Wrap(err, "parse cumulative executed value")
		}
		avgPrice = value.Div(executed)
	}

	status := bybitStatus(order.OrderStatus, executed)

	return domain.OrderResult{
		Success:        executed.IsPositive() && (status == domain.OrderStatusFilled || status == domain.OrderStatusPartiallyFilled),
		OrderID:        order.OrderID,
		FilledQuantity: executed,
		AveragePrice:   avgPrice,
		Status:         status,
	}, nil
}

func bybitSide(side domain.Side) bybit.Side {
	if side == domain.SideSell {
		return bybit.SideSell
	}
	return bybit.SideBuy
}

// bybitStatus maps order status. Spot market orders that stop early end as
// cancelled with a partial fill, which is reported as partially filled.
func bybitStatus(status bybit.OrderStatus, executed decimal.Decimal) domain.OrderStatus {
	switch status {
	case bybit.OrderStatusCreated, bybit.OrderStatusNew, bybit.OrderStatusUntriggered, bybit.OrderStatusActive:
		return domain.OrderStatusNew
	case bybit.OrderStatusPartiallyFilled, bybitPartiallyFilledCanceled:
		return domain.OrderStatusPartiallyFilled
	case bybit.OrderStatusFilled:
		return domain.OrderStatusFilled
	case bybit.OrderStatusCancelled, bybit.OrderStatusPendingCancel, bybit.OrderStatusDeactivated:
		if executed.IsPositive() {
			return domain.OrderStatusPartiallyFilled
		}
		return domain.OrderStatusCanceled
	case bybit.OrderStatusRejected:
		return domain.OrderStatusRejected
	default:
		return domain.OrderStatusUnknown
	}
}
