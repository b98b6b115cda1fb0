// Package store persists the engine's carried state between process runs.
// The host normally hands the token back every tick; the checkpoint lets a
// restarted host resume from the last token instead of warming up again.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
)

// Checkpoint is the last token written for one trader
type Checkpoint struct {
	Token     string    `json:"token"`
	Timestamp int64     `json:"timestamp"` // tick timestamp
	SavedAt   time.Time `json:"saved_at"`
}

// PebbleStore keeps checkpoints and the decision journal in pebble
type PebbleStore struct {
	db *pebble.DB
}

// Open opens (or creates) a store on disk
func Open(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

// OpenInMemory opens a store backed by an in-memory filesystem
func OpenInMemory() (*PebbleStore, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// keys: t:<trader> checkpoint, d:<trader>:<8-byte ts> journal
func kCheckpoint(trader string) []byte { return []byte("t:" + trader) }
func kDecisionPrefix(trader string) []byte {
	return []byte("d:" + trader + ":")
}
func kDecision(trader string, ts int64) []byte {
	return binary.BigEndian.AppendUint64(kDecisionPrefix(trader), uint64(ts))
}

// SaveCheckpoint overwrites the checkpoint of a trader
func (s *PebbleStore) SaveCheckpoint(trader string, cp Checkpoint) error {
	if cp.SavedAt.IsZero() {
		cp.SavedAt = time.Now()
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := s.db.Set(kCheckpoint(trader), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint returns the checkpoint of a trader; ok is false when none was saved
func (s *PebbleStore) LoadCheckpoint(trader string) (Checkpoint, bool, error) {
	data, closer, err := s.db.Get(kCheckpoint(trader))
	if err == pebble.ErrNotFound {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	defer closer.Close()

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return cp, true, nil
}

// AppendDecision journals a decision under its tick timestamp. Timestamps are
// assumed non-negative; a repeated timestamp replaces the earlier entry.
func (s *PebbleStore) AppendDecision(trader string, d market.Decision) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal decision: %w", err)
	}
	if err := s.db.Set(kDecision(trader, d.Timestamp), data, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to journal decision: %w", err)
	}
	return nil
}

// Decisions returns up to limit journaled decisions with timestamp >= from, oldest first.
// limit <= 0 means no limit.
func (s *PebbleStore) Decisions(trader string, from int64, limit int) ([]market.Decision, error) {
	prefix := kDecisionPrefix(trader)
	upper := append([]byte(nil), prefix...)
	upper[len(upper)-1]++ // ':' -> ';'

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: kDecision(trader, max(from, 0)),
		UpperBound: upper,
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []market.Decision
	for iter.First(); iter.Valid(); iter.Next() {
		var d market.Decision
		if err := json.Unmarshal(iter.Value(), &d); err != nil {
			return nil, fmt.Errorf("failed to unmarshal decision: %w", err)
		}
		out = append(out, d)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}

// Flush forces journaled decisions to disk
func (s *PebbleStore) Flush() error {
	return s.db.Flush()
}
