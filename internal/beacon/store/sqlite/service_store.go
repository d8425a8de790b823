package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/store"
	dbpkg "github.com/BrandonDHaskell/Beacon/server/internal/db"
)

type ServiceStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewServiceStore(db *sql.DB, writer *dbpkg.Worker) *ServiceStore {
	return &ServiceStore{db: db, writer: writer}
}

var _ store.ServiceStore = (*ServiceStore)(nil)

func (s *ServiceStore) CreateService(ctx context.Context, rec store.ServiceRecord) (store.ServiceRecord, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	createdMs := rec.CreatedAt.UTC().UnixMilli()

	var url, timeoutMs any
	if rec.URL != "" {
		url = rec.URL
	}
	if rec.Timeout > 0 {
		timeoutMs = rec.Timeout.Milliseconds()
	}

	var duplicate bool
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		// Checked inside the write transaction so concurrent creates serialize.
		var existing int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM services WHERE name = ?;`, rec.Name).Scan(&existing)
		if err == nil {
			duplicate = true
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lookup service: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
INSERT INTO services(name, url, created_at_ms, timeout_ms)
VALUES (?, ?, ?, ?);
`, rec.Name, url, createdMs, timeoutMs)
		if err != nil {
			return fmt.Errorf("insert service: %w", err)
		}
		rec.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return store.ServiceRecord{}, store.Unavailable("CreateService", err)
	}
	if duplicate {
		return store.ServiceRecord{}, fmt.Errorf("CreateService %s: %w", rec.Name, store.ErrDuplicateService)
	}

	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	return rec, nil
}

func (s *ServiceStore) ListServices(ctx context.Context) ([]store.ServiceRecord, error) {
	out := make([]store.ServiceRecord, 0)
	err := withConn(ctx, s.db, "ListServices", func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `
SELECT id, name, url, created_at_ms, timeout_ms
FROM services
ORDER BY name ASC;
`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				rec       store.ServiceRecord
				url       sql.NullString
				createdMs int64
				timeoutMs sql.NullInt64
			)
			if err := rows.Scan(&rec.ID, &rec.Name, &url, &createdMs, &timeoutMs); err != nil {
				return err
			}
			rec.URL = strings.TrimSpace(url.String)
			rec.CreatedAt = time.UnixMilli(createdMs).UTC()
			if timeoutMs.Valid {
				rec.Timeout = time.Duration(timeoutMs.Int64) * time.Millisecond
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

func (s *ServiceStore) DeleteService(ctx context.Context, name string) (bool, error) {
	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM services WHERE name = ?;`, name)
		if err != nil {
			return err
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return false, store.Unavailable("DeleteService", err)
	}
	return deleted > 0, nil
}
