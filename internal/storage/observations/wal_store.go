// Package observations keeps collected recommendation batches in a WAL.
package observations

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/signalbot/internal/domain"
)

const (
	DefaultDir   = "./wal/observations"
	segmentLimit = 500
	maxSegments  = 4

	observationKeyPrefix = "observations_"
)

type storedBatch struct {
	Pair         string            `json:"pair"`
	CollectedAt  time.Time         `json:"collected_at"`
	Observations map[string]string `json:"observations"`
}

// WALStore persists observation batches of all pairs. The latest batch of
// each pair is kept in memory.
type WALStore struct {
	wal    *gowal.Wal
	mu     sync.RWMutex
	latest map[string]domain.ObservationBatch
}

// NewWALStore opens the store under dir and replays it.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "observations_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init observations WAL")
	}

	s := &WALStore{wal: wal, latest: make(map[string]domain.ObservationBatch)}
	for msg := range wal.Iterator() {
		var sb storedBatch
		if err := json.Unmarshal(msg.Value, &sb); err != nil {
			return nil, errors.Wrapf(err, "decode observation batch %s", msg.Key)
		}
		s.latest[sb.Pair] = domain.ObservationBatch{
			Pair:         sb.Pair,
			CollectedAt:  sb.CollectedAt,
			Observations: sb.Observations,
		}
	}

	return s, nil
}

// Save appends a batch.
func (s *WALStore) Save(batch domain.ObservationBatch) error {
	if s == nil || s.wal == nil {
		return errors.New("observations store is not initialized")
	}
	if batch.Pair == "" {
		return errors.New("observation batch pair is required")
	}

	payload, err := json.Marshal(storedBatch{
		Pair:         batch.Pair,
		CollectedAt:  batch.CollectedAt,
		Observations: batch.Observations,
	})
	if err != nil {
		return errors.Wrap(err, "marshal observation batch")
	}

	key := fmt.Sprintf("%s%s", observationKeyPrefix, batch.Pair)

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(nextIndex, key, payload); err != nil {
		return errors.Wrap(err, "write observation batch")
	}
	s.latest[batch.Pair] = batch

	return nil
}

// Latest returns the most recent batch of pair.
func (s *WALStore) Latest(pair string) (domain.ObservationBatch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.latest[pair]
	return b, ok
}

// Fresh returns the latest batch of pair unless it is older than maxAge at now.
func (s *WALStore) Fresh(pair string, now time.Time, maxAge time.Duration) (domain.ObservationBatch, bool) {
	b, ok := s.Latest(pair)
	if !ok || b.Stale(now, maxAge) {
		return domain.ObservationBatch{}, false
	}
	return b, true
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("observations store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
