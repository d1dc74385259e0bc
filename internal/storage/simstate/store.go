// Package simstate persists the paper trading account between restarts.
package simstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/signalbot/internal/domain"
)

// DefaultDir is used when neither config nor SIGNALBOT_SIMULATE_STATE_DIR set a directory.
const DefaultDir = "./wal/simulate"

// Store keeps one JSON document per trading pair.
type Store struct {
	path string
}

func stateDir(dir string) string {
	if dir != "" {
		return dir
	}
	if env := os.Getenv("SIGNALBOT_SIMULATE_STATE_DIR"); env != "" {
		return env
	}
	return DefaultDir
}

// NewStore creates a state store for pair under dir.
func NewStore(dir string, pair domain.Pair) (*Store, error) {
	dir = stateDir(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create simulate state dir")
	}

	name := fmt.Sprintf("%s.json", strings.ToLower(pair.String()))

	return &Store{path: filepath.Join(dir, name)}, nil
}

// State is the persisted paper account.
type State struct {
	Pair        string            `json:"pair"`
	Wallet      map[string]string `json:"wallet"`
	Fills       []StoredFill      `json:"fills"`
	LastOrderID int64             `json:"last_order_id"`
}

// StoredFill is a serializable domain.TradeFill.
type StoredFill struct {
	Quantity string    `json:"quantity"`
	Price    string    `json:"price"`
	IsBuyer  bool      `json:"is_buyer"`
	Time     time.Time `json:"time"`
}

// Load reads the state. A missing or empty file yields nil state.
func (s *Store) Load() (*State, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "read simulate state")
	}

	if len(payload) == 0 {
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "decode simulate state")
	}

	return &state, nil
}

// Save writes state atomically via a temp file.
func (s *Store) Save(state State) error {
	if s == nil || s.path == "" {
		return nil
	}

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode simulate state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write simulate state temp file")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist simulate state")
	}

	return nil
}

// NewStoredFill converts a fill to its stored form.
func NewStoredFill(f domain.TradeFill) StoredFill {
	return StoredFill{
		Quantity: f.Quantity.String(),
		Price:    f.Price.String(),
		IsBuyer:  f.IsBuyer,
		Time:     f.Time,
	}
}

// ToFill decodes a stored fill.
func (sf StoredFill) ToFill() (domain.TradeFill, error) {
	qty, err := decimal.NewFromString(sf.Quantity)
	if err != nil {
		return domain.TradeFill{}, errors.Wrap(err, "decode fill quantity")
	}
	price, err := decimal.NewFromString(sf.Price)
	if err != nil {
		return domain.TradeFill{}, errors.Wrap(err, "decode fill price")
	}

	return domain.TradeFill{Quantity: qty, Price: price, IsBuyer: sf.IsBuyer, Time: sf.Time}, nil
}
