package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/store"
	dbpkg "github.com/BrandonDHaskell/Beacon/server/internal/db"
)

type BeatStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewBeatStore(db *sql.DB, writer *dbpkg.Worker) *BeatStore {
	return &BeatStore{db: db, writer: writer}
}

var _ store.BeatStore = (*BeatStore)(nil)

func (s *BeatStore) RecordBeat(ctx context.Context, serviceID string, rec store.BeatRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	atNs := rec.Timestamp.UTC().UnixNano()

	details, err := encodeDetails(rec.Details)
	if err != nil {
		return fmt.Errorf("RecordBeat: %w", err)
	}

	err = s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO beats(service_id, beat_at_ns, details)
VALUES (?, ?, ?);
`, serviceID, atNs, details); err != nil {
			return fmt.Errorf("insert beat: %w", err)
		}
		return nil
	})
	if err != nil {
		return store.Unavailable("RecordBeat", err)
	}
	return nil
}

func (s *BeatStore) LatestBeat(ctx context.Context, serviceID string) (store.BeatRecord, bool, error) {
	var (
		rec   store.BeatRecord
		found bool
	)
	err := withConn(ctx, s.db, "LatestBeat", func(conn *sql.Conn) error {
		var (
			atNs    int64
			details sql.NullString
		)
		err := conn.QueryRowContext(ctx, `
SELECT id, beat_at_ns, details
FROM beats
WHERE service_id = ?
ORDER BY beat_at_ns DESC, id DESC
LIMIT 1;
`, serviceID).Scan(&rec.Seq, &atNs, &details)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		rec.ServiceID = serviceID
		rec.Timestamp = time.Unix(0, atNs).UTC()
		if rec.Details, err = decodeDetails(details); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return store.BeatRecord{}, false, err
	}
	return rec, found, nil
}

func (s *BeatStore) ListBeats(ctx context.Context, serviceID string, limit int) ([]store.BeatRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	var out []store.BeatRecord
	err := withConn(ctx, s.db, "ListBeats", func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `
SELECT id, beat_at_ns, details
FROM beats
WHERE service_id = ?
ORDER BY beat_at_ns DESC, id DESC
LIMIT ?;
`, serviceID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				rec     store.BeatRecord
				atNs    int64
				details sql.NullString
			)
			if err := rows.Scan(&rec.Seq, &atNs, &details); err != nil {
				return err
			}
			rec.ServiceID = serviceID
			rec.Timestamp = time.Unix(0, atNs).UTC()
			if rec.Details, err = decodeDetails(details); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BeatStore) ListServiceIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0)
	err := withConn(ctx, s.db, "ListServiceIDs", func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `SELECT DISTINCT service_id FROM beats ORDER BY service_id ASC;`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// PruneOlderThan deletes beats recorded before cutoff and returns the number
// of rows removed. Uses the idx_beats_time index for the range scan.
func (s *BeatStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffNs := cutoff.UTC().UnixNano()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM beats WHERE beat_at_ns < ?;`, cutoffNs)
		if err != nil {
			return err
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, store.Unavailable("PruneOlderThan", err)
	}
	return deleted, nil
}

func (s *BeatStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return store.Unavailable("Ping", err)
	}
	return nil
}
