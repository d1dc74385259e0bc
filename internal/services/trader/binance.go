// Package trader submits and cancels orders on exchanges or a paper account.
package trader

import (
	"context"
	"strconv"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/signalbot/internal/domain"
)

// binance error codes
const (
	binanceUnknownOrder = -2011
)

// Binance submits spot orders through the Binance REST API.
// Submissions are never retried: a retry could place the order twice.
type Binance struct {
	client *binance.Client
}

// NewBinance creates a Binance order executor.
func NewBinance(client *binance.Client) *Binance {
	return &Binance{client: client}
}

// SubmitOrder places the order and reports what executed immediately.
func (t *Binance) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if !req.Quantity.IsPositive() {
		return domain.OrderResult{}, errors.Errorf("order quantity must be positive, got %s", req.Quantity)
	}

	svc := t.client.NewCreateOrderService().
		Symbol(req.Pair.Symbol()).
		Side(binanceSide(req.Side)).
		Quantity(req.Quantity.String()).
		NewOrderRespType(binance.NewOrderRespTypeFULL)

	switch req.Type {
	case domain.OrderTypeLimit:
		if !req.Price.IsPositive() {
			return domain.OrderResult{}, errors.New("limit order requires a positive price")
		}
		svc = svc.Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Price(req.Price.String())
	default:
		svc = svc.Type(binance.OrderTypeMarket)
	}
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return domain.OrderResult{}, errors.Wrapf(err, "create binance %s order for %s", req.Side, req.Pair.String())
	}

	return binanceResult(resp)
}

// CancelOrder cancels a working order. Orders the exchange no longer knows are
// treated as already finished.
func (t *Binance) CancelOrder(ctx context.Context, pair domain.Pair, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "invalid binance order id %q", orderID)
	}

	_, err = t.client.NewCancelOrderService().
		Symbol(pair.Symbol()).
		OrderID(id).
		Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == binanceUnknownOrder {
			return nil
		}
		return errors.Wrapf(err, "cancel binance order %s", orderID)
	}

	return nil
}

func binanceResult(resp *binance.CreateOrderResponse) (domain.OrderResult, error) {
	if resp == nil {
		return domain.OrderResult{}, errors.New("empty binance order response")
	}

	executed, err := decimal.NewFromString(resp.ExecutedQuantity)
	if err != nil {
		return domain.OrderResult{}, errors.Wrap(err, "parse executed quantity")
	}

	avgPrice := decimal.Zero
	if executed.IsPositive() {
		cumQuote, err := decimal.NewFromString(resp.CummulativeQuoteQuantity)
		if err != nil {
			return domain.OrderResult{}, errors.Wrap(err, "parse cumulative quote quantity")
		}
		avgPrice = cumQuote.Div(executed)
	}

	status := binanceStatus(resp.Status)

	return domain.OrderResult{
		Success:        executed.IsPositive() && (status == domain.OrderStatusFilled || status == domain.OrderStatusPartiallyFilled),
		OrderID:        strconv.FormatInt(resp.OrderID, 10),
		FilledQuantity: executed,
		AveragePrice:   avgPrice,
		Status:         status,
	}, nil
}

func binanceSide(side domain.Side) binance.SideType {
	if side == domain.SideSell {
		return binance.SideTypeSell
	}
	return binance.SideTypeBuy
}

func binanceStatus(status binance.OrderStatusType) domain.OrderStatus {
	switch status {
	case binance.OrderStatusTypeNew:
		return domain.OrderStatusNew
	case binance.OrderStatusTypePartiallyFilled:
		return domain.OrderStatusPartiallyFilled
	case binance.OrderStatusTypeFilled:
		return domain.OrderStatusFilled
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypePendingCancel:
		return domain.OrderStatusCanceled
	case binance.OrderStatusTypeRejected:
		return domain.OrderStatusRejected
	case binance.OrderStatusTypeExpired:
		return domain.OrderStatusExpired
	default:
		return domain.OrderStatusUnknown
	}
}
