// Package position keeps the durable record of positions of one instrument.
package position

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/signalbot/internal/domain"
	"go.uber.org/zap"
)

// Updatable fields accepted by UpdatePosition.
const (
	FieldCurrentPrice = "current_price"
	FieldTrailingStop = "trailing_stop"
	FieldStatus       = "status"
	FieldQuantity     = "quantity"
)

// Updates field name to textual value. Decimals are given in their exact
// string form, an empty trailing_stop clears it.
type Updates map[string]string

type store interface {
	Load() ([]domain.Position, error)
	Save(positions []domain.Position) error
}

type account interface {
	GetBalance(ctx context.Context, asset string) (domain.Balance, error)
	GetTradeHistory(ctx context.Context, pair domain.Pair) ([]domain.TradeFill, error)
}

// Manager owns the positions of one pair. Every read-modify-write runs under
// the manager mutex, so one manager per pair gives single-writer access.
type Manager struct {
	pair         domain.Pair
	store        store
	account      account
	profitLevels []decimal.Decimal
	l            *zap.Logger
	now          func() time.Time

	mu sync.Mutex
}

// NewManager creates a position manager.
func NewManager(pair domain.Pair, store store, account account, profitLevels []decimal.Decimal, l *zap.Logger) *Manager {
	if l == nil {
		l = zap.NewNop()
	}
	return &Manager{
		pair:         pair,
		store:        store,
		account:      account,
		profitLevels: append([]decimal.Decimal(nil), profitLevels...),
		l:            l,
		now:          time.Now,
	}
}

// CreatePosition opens a new position and returns its id.
func (m *Manager) CreatePosition(entryPrice, quantity decimal.Decimal, typ domain.PositionType, trailingStop *decimal.Decimal) (string, error) {
	p, err := m.newPosition(entryPrice, quantity, typ, trailingStop)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	positions, err := m.store.Load()
	if err != nil {
		return "", errors.Wrap(err, "load positions")
	}
	if err := m.open(positions, p); err != nil {
		return "", err
	}

	return p.ID, nil
}

func (m *Manager) newPosition(entryPrice, quantity decimal.Decimal, typ domain.PositionType, trailingStop *decimal.Decimal) (domain.Position, error) {
	if !entryPrice.IsPositive() {
		return domain.Position{}, errors.Wrapf(ErrInvalidPositionData, "entry price must be positive, got %s", entryPrice.String())
	}
	if !quantity.IsPositive() {
		return domain.Position{}, errors.Wrapf(ErrInvalidPositionData, "quantity must be positive, got %s", quantity.String())
	}
	if !typ.Valid() {
		return domain.Position{}, errors.Wrapf(ErrInvalidPositionData, "unknown position type %q", typ)
	}
	if trailingStop != nil && !trailingStop.IsPositive() {
		return domain.Position{}, errors.Wrapf(ErrInvalidPositionData, "trailing stop must be positive, got %s", trailingStop.String())
	}

	p := domain.Position{
		ID:           uuid.NewString(),
		Symbol:       m.pair.Symbol(),
		Status:       domain.PositionStatusOpen,
		Type:         typ,
		EntryPrice:   entryPrice,
		Quantity:     quantity,
		CurrentPrice: entryPrice,
		EntryTime:    m.now(),
	}
	if trailingStop != nil {
		ts := *trailingStop
		p.TrailingStop = &ts
	}

	return p, nil
}

// open appends p to positions and persists them. Caller holds m.mu.
func (m *Manager) open(positions []domain.Position, p domain.Position) error {
	if err := m.store.Save(append(positions, p)); err != nil {
		return errors.Wrap(err, "save positions")
	}

	m.l.Info("position opened",
		zap.String("id", p.ID),
		zap.String("pair", m.pair.String()),
		zap.String("type", string(p.Type)),
		zap.String("entry_price", p.EntryPrice.String()),
		zap.String("quantity", p.Quantity.String()),
		zap.String("notional", p.Notional().String()))

	return nil
}

// UpdatePosition applies updates atomically: either all fields change or none.
func (m *Manager) UpdatePosition(id string, updates Updates) (domain.Position, error) {
	var updated domain.Position
	err := m.mutate(id, func(p *domain.Position) error {
		next, err := m.applyUpdates(*p, updates)
		if err != nil {
			return err
		}
		*p = next
		updated = next.Clone()
		return nil
	})

	return updated, err
}

// ClosePosition marks the position closed and stamps its exit time.
func (m *Manager) ClosePosition(id string) error {
	return m.mutate(id, func(p *domain.Position) error {
		if !p.IsOpen() {
			return errors.Wrapf(ErrPositionConflict, "position %s is already closed", id)
		}
		m.close(p)
		return nil
	})
}

// GetPosition returns a position by id.
func (m *Manager) GetPosition(id string) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	positions, err := m.store.Load()
	if err != nil {
		return domain.Position{}, errors.Wrap(err, "load positions")
	}
	for _, p := range positions {
		if p.ID == id {
			return p.Clone(), nil
		}
	}

	return domain.Position{}, errors.Wrapf(ErrPositionNotFound, "id %s", id)
}

// GetActivePositions returns open positions, oldest first.
func (m *Manager) GetActivePositions() ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	positions, err := m.store.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load positions")
	}

	return activeOf(positions), nil
}

// AddProfitLevel records a taken take-profit level from the configured set.
func (m *Manager) AddProfitLevel(id string, level decimal.Decimal) error {
	if !m.knownProfitLevel(level) {
		return errors.Wrapf(ErrInvalidPositionData, "profit level %s is not configured", level.String())
	}

	return m.mutate(id, func(p *domain.Position) error {
		if !p.IsOpen() {
			return errors.Wrapf(ErrPositionConflict, "position %s is closed", id)
		}
		if p.HasProfitLevel(level) {
			return errors.Wrapf(ErrPositionConflict, "profit level %s already taken for %s", level.String(), id)
		}
		p.ProfitLevels = append(p.ProfitLevels, level)
		return nil
	})
}

// Reduction outcome of ReducePositions.
type Reduction struct {
	Closed  []string
	Reduced []string
	// Unmatched part of the quantity not covered by tracked positions.
	Unmatched decimal.Decimal
}

// ReducePositions applies a sold quantity to open positions first in, first out.
// Positions fully covered are closed, the first partially covered one shrinks.
func (m *Manager) ReducePositions(quantity decimal.Decimal) (Reduction, error) {
	if !quantity.IsPositive() {
		return Reduction{}, errors.Wrapf(ErrInvalidPositionData, "reduce quantity must be positive, got %s", quantity.String())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	positions, err := m.store.Load()
	if err != nil {
		return Reduction{}, errors.Wrap(err, "load positions")
	}

	remaining := quantity
	var res Reduction
	for _, idx := range activeIndexes(positions) {
		if !remaining.IsPositive() {
			break
		}
		p := &positions[idx]
		if remaining.GreaterThanOrEqual(p.Quantity) {
			remaining = remaining.Sub(p.Quantity)
			m.close(p)
			res.Closed = append(res.Closed, p.ID)
			continue
		}
		p.Quantity = p.Quantity.Sub(remaining)
		remaining = decimal.Zero
		res.Reduced = append(res.Reduced, p.ID)
	}
	res.Unmatched = remaining

	if len(res.Closed) == 0 && len(res.Reduced) == 0 {
		return res, nil
	}
	if err := m.store.Save(positions); err != nil {
		return Reduction{}, errors.Wrap(err, "save positions")
	}

	return res, nil
}

// MarkToMarket sets current price on every open position.
func (m *Manager) MarkToMarket(price decimal.Decimal) error {
	if !price.IsPositive() {
		return errors.Wrapf(ErrInvalidPositionData, "price must be positive, got %s", price.String())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	positions, err := m.store.Load()
	if err != nil {
		return errors.Wrap(err, "load positions")
	}
	idxs := activeIndexes(positions)
	if len(idxs) == 0 {
		return nil
	}
	for _, idx := range idxs {
		positions[idx].CurrentPrice = price
	}

	return errors.Wrap(m.store.Save(positions), "save positions")
}

func (m *Manager) mutate(id string, fn func(p *domain.Position) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	positions, err := m.store.Load()
	if err != nil {
		return errors.Wrap(err, "load positions")
	}

	for i := range positions {
		if positions[i].ID != id {
			continue
		}
		if err := fn(&positions[i]); err != nil {
			return err
		}
		return errors.Wrap(m.store.Save(positions), "save positions")
	}

	return errors.Wrapf(ErrPositionNotFound, "id %s", id)
}

func (m *Manager) applyUpdates(p domain.Position, updates Updates) (domain.Position, error) {
	next := p.Clone()
	closing := false

	for field, raw := range updates {
		switch field {
		case FieldCurrentPrice:
			v, err := positiveDecimal(field, raw)
			if err != nil {
				return p, err
			}
			next.CurrentPrice = v
		case FieldQuantity:
			v, err := positiveDecimal(field, raw)
			if err != nil {
				return p, err
			}
			next.Quantity = v
		case FieldTrailingStop:
			if strings.TrimSpace(raw) == "" {
				next.TrailingStop = nil
				continue
			}
			v, err := positiveDecimal(field, raw)
			if err != nil {
				return p, err
			}
			next.TrailingStop = &v
		case FieldStatus:
			status := domain.PositionStatus(strings.ToLower(strings.TrimSpace(raw)))
			switch status {
			case domain.PositionStatusClosed:
				closing = true
			case domain.PositionStatusOpen:
				if !p.IsOpen() {
					return p, errors.Wrapf(ErrInvalidPositionData, "position %s cannot be reopened", p.ID)
				}
			default:
				return p, errors.Wrapf(ErrInvalidPositionData, "unknown status %q", raw)
			}
		default:
			return p, errors.Wrapf(ErrInvalidPositionData, "unknown field %q", field)
		}
	}

	if !p.IsOpen() {
		return p, errors.Wrapf(ErrPositionConflict, "position %s is closed", p.ID)
	}
	if closing {
		m.close(&next)
	}

	return next, nil
}

func (m *Manager) close(p *domain.Position) {
	exit := m.now()
	p.Status = domain.PositionStatusClosed
	p.ExitTime = &exit

	m.l.Info("position closed",
		zap.String("id", p.ID),
		zap.String("pair", m.pair.String()),
		zap.String("quantity", p.Quantity.String()))
}

func (m *Manager) knownProfitLevel(level decimal.Decimal) bool {
	for _, l := range m.profitLevels {
		if l.Equal(level) {
			return true
		}
	}
	return false
}

func positiveDecimal(field, raw string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, errors.Wrapf(ErrInvalidPositionData, "%s: %q is not a decimal", field, raw)
	}
	if !v.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrInvalidPositionData, "%s must be positive, got %s", field, raw)
	}
	return v, nil
}

func activeIndexes(positions []domain.Position) []int {
	var idxs []int
	for i, p := range positions {
		if p.IsOpen() {
			idxs = append(idxs, i)
		}
	}
	sort.SliceStable(idxs, func(a, b int) bool {
		return positions[idxs[a]].EntryTime.Before(positions[idxs[b]].EntryTime)
	})
	return idxs
}

func activeOf(positions []domain.Position) []domain.Position {
	idxs := activeIndexes(positions)
	res := make([]domain.Position, 0, len(idxs))
	for _, idx := range idxs {
		res = append(res, positions[idx].Clone())
	}
	return res
}
