// Package positions persists tracked positions of one instrument in a WAL.
package positions

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/signalbot/internal/domain"
)

const (
	DefaultDir   = "./wal/positions"
	segmentLimit = 100
	maxSegments  = 5

	positionsKeyPrefix = "positions_"
)

// WALStore append-only position store. Every Save appends a full snapshot,
// replay keeps the latest one, so dropping old segments acts as compaction.
type WALStore struct {
	wal    *gowal.Wal
	key    string
	mu     sync.RWMutex
	latest []StoredPosition
}

// StoredPosition serialisable form of domain.Position with decimals kept as text.
type StoredPosition struct {
	ID           string     `json:"id"`
	Symbol       string     `json:"symbol"`
	Status       string     `json:"status"`
	Type         string     `json:"type"`
	EntryPrice   string     `json:"entry_price"`
	Quantity     string     `json:"quantity"`
	CurrentPrice string     `json:"current_price,omitempty"`
	TrailingStop *string    `json:"trailing_stop,omitempty"`
	ProfitLevels []string   `json:"profit_levels,omitempty"`
	EntryTime    time.Time  `json:"entry_time"`
	ExitTime     *time.Time `json:"exit_time,omitempty"`
}

// NewWALStore opens the store for pair under dir and replays it.
func NewWALStore(dir string, pair domain.Pair) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              filepath.Join(dir, strings.ToLower(pair.String())),
		Prefix:           "positions_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init positions WAL")
	}

	s := &WALStore{wal: wal, key: fmt.Sprintf("%s%s", positionsKeyPrefix, pair.Symbol())}
	for msg := range wal.Iterator() {
		if msg.Key != s.key {
			continue
		}
		var snapshot []StoredPosition
		if err := json.Unmarshal(msg.Value, &snapshot); err != nil {
			return nil, errors.Wrapf(err, "decode positions snapshot %s", msg.Key)
		}
		s.latest = snapshot
	}

	return s, nil
}

// Load returns the latest persisted positions.
func (s *WALStore) Load() ([]domain.Position, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("positions store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]domain.Position, 0, len(s.latest))
	for i := range s.latest {
		p, err := s.latest[i].ToPosition()
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}

	return res, nil
}

// Save appends a full snapshot of positions.
func (s *WALStore) Save(positions []domain.Position) error {
	if s == nil || s.wal == nil {
		return errors.New("positions store is not initialized")
	}

	snapshot := make([]StoredPosition, 0, len(positions))
	for _, p := range positions {
		snapshot = append(snapshot, NewStoredPosition(p))
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "marshal positions snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(nextIndex, s.key, payload); err != nil {
		return errors.Wrap(err, "write positions snapshot")
	}
	s.latest = snapshot

	return nil
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("positions store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}

// NewStoredPosition converts domain.Position into its stored representation.
func NewStoredPosition(p domain.Position) StoredPosition {
	sp := StoredPosition{
		ID:         p.ID,
		Symbol:     p.Symbol,
		Status:     string(p.Status),
		Type:       string(p.Type),
		EntryPrice: p.EntryPrice.String(),
		Quantity:   p.Quantity.String(),
		EntryTime:  p.EntryTime,
	}
	if !p.CurrentPrice.IsZero() {
		sp.CurrentPrice = p.CurrentPrice.String()
	}
	if p.TrailingStop != nil {
		ts := p.TrailingStop.String()
		sp.TrailingStop = &ts
	}
	for _, l := range p.ProfitLevels {
		sp.ProfitLevels = append(sp.ProfitLevels, l.String())
	}
	if p.ExitTime != nil {
		et := *p.ExitTime
		sp.ExitTime = &et
	}
	return sp
}

// ToPosition restores the exact decimal values from their textual form.
func (sp StoredPosition) ToPosition() (domain.Position, error) {
	entryPrice, err := decimal.NewFromString(sp.EntryPrice)
	if err != nil {
		return domain.Position{}, errors.Wrapf(err, "decode entry price of %s", sp.ID)
	}
	qty, err := decimal.NewFromString(sp.Quantity)
	if err != nil {
		return domain.Position{}, errors.Wrapf(err, "decode quantity of %s", sp.ID)
	}

	p := domain.Position{
		ID:         sp.ID,
		Symbol:     sp.Symbol,
		Status:     domain.PositionStatus(sp.Status),
		Type:       domain.PositionType(sp.Type),
		EntryPrice: entryPrice,
		Quantity:   qty,
		EntryTime:  sp.EntryTime,
	}
	if sp.CurrentPrice != "" {
		if p.CurrentPrice, err = decimal.NewFromString(sp.CurrentPrice); err != nil {
			return domain.Position{}, errors.Wrapf(err, "decode current price of %s", sp.ID)
		}
	}
	if sp.TrailingStop != nil {
		ts, err := decimal.NewFromString(*sp.TrailingStop)
		if err != nil {
			return domain.Position{}, errors.Wrapf(err, "decode trailing stop of %s", sp.ID)
		}
		p.TrailingStop = &ts
	}
	for _, raw := range sp.ProfitLevels {
		l, err := decimal.NewFromString(raw)
		if err != nil {
			return domain.Position{}, errors.Wrapf(err, "decode profit level of %s", sp.ID)
		}
		p.ProfitLevels = append(p.ProfitLevels, l)
	}
	if sp.ExitTime != nil {
		et := *sp.ExitTime
		p.ExitTime = &et
	}

	return p, nil
}
