package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus lifecycle state of a position.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// Valid reports whether the status is known.
func (s PositionStatus) Valid() bool {
	return s == PositionStatusOpen || s == PositionStatusClosed
}

// PositionType direction of a position.
type PositionType string

const (
	PositionTypeLong  PositionType = "LONG"
	PositionTypeShort PositionType = "SHORT"
)

// Valid reports whether the type is known.
func (t PositionType) Valid() bool {
	return t == PositionTypeLong || t == PositionTypeShort
}

// Position tracked holding of one instrument.
type Position struct {
	ID           string
	Symbol       string
	Status       PositionStatus
	Type         PositionType
	EntryPrice   decimal.Decimal
	Quantity     decimal.Decimal
	CurrentPrice decimal.Decimal
	TrailingStop *decimal.Decimal
	ProfitLevels []decimal.Decimal
	EntryTime    time.Time
	// ExitTime is set iff the position is closed.
	ExitTime *time.Time
}

// IsOpen reports whether the position is open.
func (p Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}

// HasProfitLevel reports whether level was already taken.
func (p Position) HasProfitLevel(level decimal.Decimal) bool {
	for _, l := range p.ProfitLevels {
		if l.Equal(level) {
			return true
		}
	}
	return false
}

// Notional entry value of the position in quote currency.
func (p Position) Notional() decimal.Decimal {
	return p.EntryPrice.Mul(p.Quantity)
}

// UnrealizedPnL profit or loss at the given price.
func (p Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	diff := price.Sub(p.EntryPrice)
	if p.Type == PositionTypeShort {
		diff = diff.Neg()
	}
	return diff.Mul(p.Quantity)
}

// Clone returns a deep copy.
func (p Position) Clone() Position {
	c := p
	if p.TrailingStop != nil {
		ts := *p.TrailingStop
		c.TrailingStop = &ts
	}
	if p.ExitTime != nil {
		et := *p.ExitTime
		c.ExitTime = &et
	}
	if p.ProfitLevels != nil {
		c.ProfitLevels = append([]decimal.Decimal(nil), p.ProfitLevels...)
	}
	return c
}
