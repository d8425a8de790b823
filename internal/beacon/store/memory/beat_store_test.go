package memory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/store"
	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/store/memory"
)

func TestBeatStore_LatestBeat(t *testing.T) {
	ctx := context.Background()
	bs := memory.New()

	_, ok, err := bs.LatestBeat(ctx, "svc")
	require.NoError(t, err)
	assert.False(t, ok)

	base := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	for _, off := range []time.Duration{2 * time.Minute, time.Minute, 3 * time.Minute, 0} {
		require.NoError(t, bs.RecordBeat(ctx, "svc", store.BeatRecord{Timestamp: base.Add(off)}))
	}

	rec, ok, err := bs.LatestBeat(ctx, "svc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, rec.Timestamp.Equal(base.Add(3*time.Minute)))
	assert.Equal(t, "svc", rec.ServiceID)
}

func TestBeatStore_TieBreakHighestSeq(t *testing.T) {
	ctx := context.Background()
	bs := memory.New()

	ts := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, bs.RecordBeat(ctx, "svc", store.BeatRecord{Timestamp: ts, Details: map[string]string{"n": "1"}}))
	require.NoError(t, bs.RecordBeat(ctx, "svc", store.BeatRecord{Timestamp: ts, Details: map[string]string{"n": "2"}}))
	// Older beat inserted last must not win.
	require.NoError(t, bs.RecordBeat(ctx, "svc", store.BeatRecord{Timestamp: ts.Add(-time.Second), Details: map[string]string{"n": "3"}}))

	rec, ok, err := bs.LatestBeat(ctx, "svc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", rec.Details["n"])

	history, err := bs.ListBeats(ctx, "svc", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []string{"2", "1", "3"}, []string{history[0].Details["n"], history[1].Details["n"], history[2].Details["n"]})
}

func TestBeatStore_ReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	bs := memory.New()

	details := map[string]string{"k": "v"}
	require.NoError(t, bs.RecordBeat(ctx, "svc", store.BeatRecord{Details: details}))
	details["k"] = "mutated"

	rec, _, err := bs.LatestBeat(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, "v", rec.Details["k"])

	rec.Details["k"] = "again"
	rec2, _, _ := bs.LatestBeat(ctx, "svc")
	assert.Equal(t, "v", rec2.Details["k"])
}

func TestBeatStore_ListServiceIDsAndPrune(t *testing.T) {
	ctx := context.Background()
	bs := memory.New()

	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, bs.RecordBeat(ctx, "old", store.BeatRecord{Timestamp: now.AddDate(0, 0, -40)}))
	require.NoError(t, bs.RecordBeat(ctx, "mixed", store.BeatRecord{Timestamp: now.AddDate(0, 0, -40)}))
	require.NoError(t, bs.RecordBeat(ctx, "mixed", store.BeatRecord{Timestamp: now.AddDate(0, 0, -1)}))

	ids, err := bs.ListServiceIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mixed", "old"}, ids)

	deleted, err := bs.PruneOlderThan(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	ids, err = bs.ListServiceIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mixed"}, ids)
}

func TestBeatStore_ConcurrentDistinctServices(t *testing.T) {
	ctx := context.Background()
	bs := memory.New()

	const services, beats = 16, 50
	var wg sync.WaitGroup
	for s := 0; s < services; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			id := fmt.Sprintf("svc-%d", s)
			for i := 0; i < beats; i++ {
				_ = bs.RecordBeat(ctx, id, store.BeatRecord{Details: map[string]string{"i": fmt.Sprint(i)}})
				_, _, _ = bs.LatestBeat(ctx, id)
			}
		}(s)
	}
	wg.Wait()

	for s := 0; s < services; s++ {
		recs, err := bs.ListBeats(ctx, fmt.Sprintf("svc-%d", s), 0)
		require.NoError(t, err)
		assert.Len(t, recs, beats)
	}
}
