package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/store"
)

// withConn runs fn on a connection acquired for this call only. The
// connection goes back to the pool on every exit path, and any failure is
// reported as store.ErrStorageUnavailable.
func withConn(ctx context.Context, db *sql.DB, op string, fn func(conn *sql.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return store.Unavailable(op, err)
	}
	defer conn.Close()

	if err := fn(conn); err != nil {
		return store.Unavailable(op, err)
	}
	return nil
}

func encodeDetails(d map[string]string) (any, error) {
	if len(d) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode details: %w", err)
	}
	return string(b), nil
}

func decodeDetails(s sql.NullString) (map[string]string, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var d map[string]string
	if err := json.Unmarshal([]byte(s.String), &d); err != nil {
		return nil, fmt.Errorf("decode details: %w", err)
	}
	return d, nil
}
