package position

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/signalbot/internal/domain"
	"go.uber.org/zap"
)

// SyncWithExchange adopts base balance that no open position accounts for.
// The untracked part becomes a LONG position priced at the VWAP of the account
// fills. Failures are logged and leave state untouched.
func (m *Manager) SyncWithExchange(ctx context.Context) {
	if m.account == nil {
		return
	}

	balance, err := m.account.GetBalance(ctx, m.pair.From)
	if err != nil {
		m.l.Warn("reconciliation: failed to get balance", zap.String("asset", m.pair.From), zap.Error(err))
		return
	}
	total := balance.Total()
	if !total.IsPositive() {
		return
	}

	active, err := m.GetActivePositions()
	if err != nil {
		m.l.Error("reconciliation: failed to load positions", zap.Error(err))
		return
	}
	if tracked := trackedLong(active); !total.Sub(tracked).IsPositive() {
		if total.LessThan(tracked) {
			m.l.Warn("reconciliation: tracked quantity exceeds exchange balance",
				zap.String("tracked", tracked.String()),
				zap.String("balance", total.String()))
		}
		return
	}

	fills, err := m.account.GetTradeHistory(ctx, m.pair)
	if err != nil {
		m.l.Warn("reconciliation: failed to get trade history", zap.Error(err))
		return
	}
	entry, ok := entryPrice(fills)
	if !ok {
		m.l.Info("reconciliation: no trade history to price untracked balance",
			zap.String("balance", total.String()))
		return
	}

	if err := m.adoptUntracked(total, entry); err != nil {
		m.l.Error("reconciliation: failed to adopt untracked balance", zap.Error(err))
	}
}

// adoptUntracked opens a LONG for the part of total no open position holds.
// The tracked sum is taken again under the lock, so a position opened while
// trade history was fetched is not adopted twice.
func (m *Manager) adoptUntracked(total, entry decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	positions, err := m.store.Load()
	if err != nil {
		return errors.Wrap(err, "load positions")
	}

	tracked := trackedLong(activeOf(positions))
	untracked := total.Sub(tracked)
	if !untracked.IsPositive() {
		if untracked.IsNegative() {
			m.l.Warn("reconciliation: tracked quantity exceeds exchange balance",
				zap.String("tracked", tracked.String()),
				zap.String("balance", total.String()))
		}
		return nil
	}

	p, err := m.newPosition(entry, untracked, domain.PositionTypeLong, nil)
	if err != nil {
		return err
	}
	if err := m.open(positions, p); err != nil {
		return err
	}

	m.l.Info("reconciliation: adopted untracked balance",
		zap.String("id", p.ID),
		zap.String("quantity", untracked.String()),
		zap.String("entry_price", entry.String()))

	return nil
}

func trackedLong(active []domain.Position) decimal.Decimal {
	tracked := decimal.Zero
	for _, p := range active {
		if p.Type == domain.PositionTypeLong {
			tracked = tracked.Add(p.Quantity)
		}
	}
	return tracked
}

// entryPrice VWAP of buy fills, or of all fills when the side is unknown.
func entryPrice(fills []domain.TradeFill) (decimal.Decimal, bool) {
	if price, ok := domain.VWAP(fills); ok {
		return price, true
	}

	all := make([]domain.TradeFill, len(fills))
	for i, f := range fills {
		f.IsBuyer = true
		all[i] = f
	}
	return domain.VWAP(all)
}
