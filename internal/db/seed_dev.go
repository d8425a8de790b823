package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type SeedDevOptions struct {
	// KnownServices are registered up front so the management listing is not
	// empty on a fresh dev database.
	KnownServices []string
}

// SeedDev registers the configured services. Existing rows are left alone.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) (int, error) {
	now := time.Now().UTC().UnixMilli()

	seeded := 0
	for _, name := range opt.KnownServices {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		res, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO services(name, url, created_at_ms)
VALUES (?, NULL, ?);
`, name, now)
		if err != nil {
			return seeded, fmt.Errorf("seed service %s: %w", name, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			seeded++
		}
	}

	return seeded, nil
}
