package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/store"
)

// BeatStore keeps beats in process memory. Each id's slice is kept sorted by
// (Timestamp, Seq) ascending, so the latest record is always the last one.
type BeatStore struct {
	mu    sync.RWMutex
	seq   int64
	beats map[string][]store.BeatRecord
}

func New() *BeatStore {
	return &BeatStore{
		beats: make(map[string][]store.BeatRecord),
	}
}

var _ store.BeatStore = (*BeatStore)(nil)

func (s *BeatStore) RecordBeat(_ context.Context, serviceID string, rec store.BeatRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	rec.Timestamp = rec.Timestamp.UTC()
	rec.ServiceID = serviceID
	rec.Details = maps.Clone(rec.Details)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	rec.Seq = s.seq

	recs := s.beats[serviceID]
	// rec has the highest seq, so it goes after every record with an equal
	// or earlier timestamp.
	i := sort.Search(len(recs), func(i int) bool { return recs[i].Timestamp.After(rec.Timestamp) })
	recs = append(recs, store.BeatRecord{})
	copy(recs[i+1:], recs[i:])
	recs[i] = rec
	s.beats[serviceID] = recs
	return nil
}

func (s *BeatStore) LatestBeat(_ context.Context, serviceID string) (store.BeatRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.beats[serviceID]
	if len(recs) == 0 {
		return store.BeatRecord{}, false, nil
	}
	return cloneRecord(recs[len(recs)-1]), true, nil
}

func (s *BeatStore) ListBeats(_ context.Context, serviceID string, limit int) ([]store.BeatRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.beats[serviceID]
	n := len(recs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]store.BeatRecord, 0, n)
	for i := len(recs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, cloneRecord(recs[i]))
	}
	return out, nil
}

func (s *BeatStore) ListServiceIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.beats))
	for id, recs := range s.beats {
		if len(recs) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *BeatStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, recs := range s.beats {
		// Sorted ascending: everything before i is older than cutoff.
		i := sort.Search(len(recs), func(i int) bool { return !recs[i].Timestamp.Before(cutoff) })
		if i == 0 {
			continue
		}
		deleted += int64(i)
		if i == len(recs) {
			delete(s.beats, id)
			continue
		}
		s.beats[id] = append([]store.BeatRecord(nil), recs[i:]...)
	}
	return deleted, nil
}

func (s *BeatStore) Ping(context.Context) error { return nil }

func cloneRecord(rec store.BeatRecord) store.BeatRecord {
	rec.Details = maps.Clone(rec.Details)
	return rec
}
