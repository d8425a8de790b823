package store

import (
	"context"
	"time"
)

// BeatRecord is one liveness report. Records are never updated.
type BeatRecord struct {
	Seq       int64 // insertion order, assigned by the store
	ServiceID string
	Timestamp time.Time // UTC
	Details   map[string]string
}

// BeatStore is the append-only beat log.
//
// LatestBeat and ListBeats order by Timestamp descending; records with equal
// timestamps are ordered by Seq descending, so the most recently inserted wins.
type BeatStore interface {
	RecordBeat(ctx context.Context, serviceID string, rec BeatRecord) error
	LatestBeat(ctx context.Context, serviceID string) (BeatRecord, bool, error)
	// ListBeats returns up to limit records, newest first. limit <= 0 means all.
	ListBeats(ctx context.Context, serviceID string, limit int) ([]BeatRecord, error)
	// ListServiceIDs returns the distinct ids that have beaten, sorted.
	ListServiceIDs(ctx context.Context) ([]string, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Ping(ctx context.Context) error
}
