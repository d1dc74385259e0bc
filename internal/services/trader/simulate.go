package trader

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/signalbot/internal/domain"
	"github.com/vadiminshakov/signalbot/internal/storage/simstate"
	"go.uber.org/zap"
)

// DefaultPaperBalance is the quote balance of a fresh paper account.
var DefaultPaperBalance = decimal.NewFromInt(10000)

// Pricer returns the last traded price of a pair.
type Pricer interface {
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}

type stateStore interface {
	Load() (*simstate.State, error)
	Save(state simstate.State) error
}

// Simulate is a spot paper account. Orders fill completely at the last price;
// limit orders that are not marketable expire immediately.
type Simulate struct {
	mu          sync.RWMutex
	pair        domain.Pair
	l           *zap.Logger
	wallet      map[string]decimal.Decimal
	fills       []domain.TradeFill
	lastOrderID int64
	pricer      Pricer
	store       stateStore
	now         func() time.Time
}

// NewSimulate creates a paper account funded with initialQuote, or restores
// the persisted one when store holds state.
func NewSimulate(pair domain.Pair, pricer Pricer, store stateStore, initialQuote decimal.Decimal, l *zap.Logger) (*Simulate, error) {
	if l == nil {
		l = zap.NewNop()
	}
	if pricer == nil {
		return nil, errors.New("pricer is required for paper trading")
	}
	if !initialQuote.IsPositive() {
		initialQuote = DefaultPaperBalance
	}

	t := &Simulate{
		pair:   pair,
		l:      l,
		wallet: map[string]decimal.Decimal{pair.From: decimal.Zero, pair.To: initialQuote},
		pricer: pricer,
		store:  store,
		now:    time.Now,
	}
	if err := t.restoreState(); err != nil {
		return nil, errors.Wrap(err, "restore paper account")
	}

	l.Info("paper account ready",
		zap.String("pair", pair.String()),
		zap.String("base", t.wallet[pair.From].String()),
		zap.String("quote", t.wallet[pair.To].String()),
		zap.Int("fills", len(t.fills)))

	return t, nil
}

// SubmitOrder fills the order against the last price.
func (t *Simulate) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if req.Pair != t.pair {
		return domain.OrderResult{}, errors.Errorf("paper account trades %s, got %s", t.pair.String(), req.Pair.String())
	}
	if !req.Quantity.IsPositive() {
		return domain.OrderResult{}, errors.Errorf("order quantity must be positive, got %s", req.Quantity)
	}

	price, err := t.pricer.GetPrice(ctx, t.pair)
	if err != nil {
		return domain.OrderResult{}, errors.Wrap(err, "get price for paper order")
	}
	if !price.IsPositive() {
		return domain.OrderResult{}, errors.Errorf("invalid price %s for paper order", price)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastOrderID++
	orderID := strconv.FormatInt(t.lastOrderID, 10)

	if req.Type == domain.OrderTypeLimit && !marketable(req, price) {
		t.persist()
		return domain.OrderResult{OrderID: orderID, Status: domain.OrderStatusExpired}, nil
	}

	base, quote := t.pair.From, t.pair.To
	notional := req.Quantity.Mul(price)

	switch req.Side {
	case domain.SideBuy:
		if t.wallet[quote].LessThan(notional) {
			t.l.Warn("paper order rejected: insufficient balance",
				zap.String("asset", quote),
				zap.String("have", t.wallet[quote].String()),
				zap.String("need", notional.String()))
			t.persist()
			return domain.OrderResult{OrderID: orderID, Status: domain.OrderStatusRejected}, nil
		}
		t.wallet[quote] = t.wallet[quote].Sub(notional)
		t.wallet[base] = t.wallet[base].Add(req.Quantity)
	case domain.SideSell:
		if t.wallet[base].LessThan(req.Quantity) {
			t.l.Warn("paper order rejected: insufficient balance",
				zap.String("asset", base),
				zap.String("have", t.wallet[base].String()),
				zap.String("need", req.Quantity.String()))
			t.persist()
			return domain.OrderResult{OrderID: orderID, Status: domain.OrderStatusRejected}, nil
		}
		t.wallet[base] = t.wallet[base].Sub(req.Quantity)
		t.wallet[quote] = t.wallet[quote].Add(notional)
	default:
		return domain.OrderResult{}, errors.Errorf("unknown order side %q", req.Side)
	}

	t.fills = append(t.fills, domain.TradeFill{
		Quantity: req.Quantity,
		Price:    price,
		IsBuyer:  req.Side == domain.SideBuy,
		Time:     t.now(),
	})
	t.persist()

	t.l.Info("paper order filled",
		zap.String("id", orderID),
		zap.String("client_order_id", req.ClientOrderID),
		zap.String("side", string(req.Side)),
		zap.String("quantity", req.Quantity.String()),
		zap.String("price", price.String()))

	return domain.OrderResult{
		Success:        true,
		OrderID:        orderID,
		FilledQuantity: req.Quantity,
		AveragePrice:   price,
		Status:         domain.OrderStatusFilled,
	}, nil
}

// CancelOrder is a no-op: paper orders never rest.
func (t *Simulate) CancelOrder(ctx context.Context, pair domain.Pair, orderID string) error {
	return ctx.Err()
}

// GetBalance returns the paper balance of asset.
func (t *Simulate) GetBalance(_ context.Context, asset string) (domain.Balance, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	free, ok := t.wallet[asset]
	if !ok {
		free = decimal.Zero
	}

	return domain.Balance{Asset: asset, Free: free, Locked: decimal.Zero}, nil
}

// GetTradeHistory returns paper fills, oldest first.
func (t *Simulate) GetTradeHistory(_ context.Context, pair domain.Pair) ([]domain.TradeFill, error) {
	if pair != t.pair {
		return nil, nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	fills := make([]domain.TradeFill, len(t.fills))
	copy(fills, t.fills)

	return fills, nil
}

func marketable(req domain.OrderRequest, last decimal.Decimal) bool {
	if req.Side == domain.SideBuy {
		return last.LessThanOrEqual(req.Price)
	}
	return last.GreaterThanOrEqual(req.Price)
}

func (t *Simulate) restoreState() error {
	if t.store == nil {
		return nil
	}
	state, err := t.store.Load()
	if err != nil || state == nil {
		return err
	}

	for currency, balanceStr := range state.Wallet {
		if balanceStr == "" {
			t.wallet[currency] = decimal.Zero
			continue
		}
		parsed, err := decimal.NewFromString(balanceStr)
		if err != nil {
			return errors.Wrapf(err, "decode %s balance", currency)
		}
		t.wallet[currency] = parsed
	}

	fills := make([]domain.TradeFill, 0, len(state.Fills))
	for _, sf := range state.Fills {
		f, err := sf.ToFill()
		if err != nil {
			return err
		}
		fills = append(fills, f)
	}
	t.fills = fills
	t.lastOrderID = state.LastOrderID

	return nil
}

// persist must be called with t.mu held.
func (t *Simulate) persist() {
	if t.store == nil {
		return
	}

	state := simstate.State{
		Pair:        t.pair.String(),
		Wallet:      make(map[string]string, len(t.wallet)),
		Fills:       make([]simstate.StoredFill, 0, len(t.fills)),
		LastOrderID: t.lastOrderID,
	}
	for currency, balance := range t.wallet {
		state.Wallet[currency] = balance.String()
	}
	for _, f := range t.fills {
		state.Fills = append(state.Fills, simstate.NewStoredFill(f))
	}

	if err := t.store.Save(state); err != nil {
		t.l.Warn("failed to persist paper account", zap.Error(err))
	}
}
