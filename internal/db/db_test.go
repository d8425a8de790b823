package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func openTempDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := Open(context.Background(), Config{
		Path: filepath.Join(t.TempDir(), "beacon.db"),
		Env:  "test",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// ═══════════════════════════════════════════════════════════════════════════
// Migrations
// ═══════════════════════════════════════════════════════════════════════════

func TestMigrate_Idempotent(t *testing.T) {
	conn := openTempDB(t)
	ctx := context.Background()

	// Open already migrated once; a second pass must be a no-op.
	if err := Migrate(ctx, conn, nil); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	var n int
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations;").Scan(&n); err != nil {
		t.Fatal(err)
	}
	ms, err := loadMigrations()
	if err != nil {
		t.Fatal(err)
	}
	if n != len(ms) {
		t.Errorf("expected %d recorded migrations, got %d", len(ms), n)
	}

	for _, table := range []string{"beats", "services"} {
		var name string
		err := conn.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?;", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("expected table %s: %v", table, err)
		}
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "0001_beats.sql", want: 1},
		{in: "0010_x.sql", want: 10},
		{in: "0000_init.sql", want: 0},
		{in: "beats.sql", wantErr: true},
		{in: "abc_beats.sql", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseVersion(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseVersion(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseVersion(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseVersion(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Seeding
// ═══════════════════════════════════════════════════════════════════════════

func TestSeedDev(t *testing.T) {
	conn := openTempDB(t)
	ctx := context.Background()

	n, err := SeedDev(ctx, conn, SeedDevOptions{KnownServices: []string{"api", " ", "worker", "api"}})
	if err != nil {
		t.Fatalf("SeedDev: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 seeded, got %d", n)
	}

	// Re-seeding leaves existing rows alone.
	n, err = SeedDev(ctx, conn, SeedDevOptions{KnownServices: []string{"api"}})
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected 0 seeded on rerun, got %d", n)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Worker
// ═══════════════════════════════════════════════════════════════════════════

func countBeats(t *testing.T, conn *sql.DB) int {
	t.Helper()
	var n int
	if err := conn.QueryRow("SELECT COUNT(*) FROM beats;").Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func insertBeat(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "INSERT INTO beats(service_id, beat_at_ns) VALUES('svc', 1);")
	return err
}

func TestWorker_CommitsJob(t *testing.T) {
	conn := openTempDB(t)
	w := NewWorker(conn)
	defer w.Close()

	if err := w.Do(context.Background(), insertBeat); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if n := countBeats(t, conn); n != 1 {
		t.Errorf("expected 1 beat, got %d", n)
	}
}

func TestWorker_RollsBackOnError(t *testing.T) {
	conn := openTempDB(t)
	w := NewWorker(conn)
	defer w.Close()

	boom := errors.New("boom")
	err := w.Do(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		if err := insertBeat(ctx, tx); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected job error, got %v", err)
	}
	if n := countBeats(t, conn); n != 0 {
		t.Errorf("expected rollback, found %d beats", n)
	}
}

func TestWorker_ClosedRejectsJobs(t *testing.T) {
	conn := openTempDB(t)
	w := NewWorker(conn)
	w.Close()
	w.Close() // second close is a no-op

	err := w.Do(context.Background(), insertBeat)
	if !errors.Is(err, ErrWorkerClosed) {
		t.Fatalf("expected ErrWorkerClosed, got %v", err)
	}
}

// blockingJob inserts a beat after signalling started and waiting on release.
func blockingJob(started chan<- struct{}, release <-chan struct{}) TxFn {
	return func(ctx context.Context, tx *sql.Tx) error {
		close(started)
		<-release
		return insertBeat(ctx, tx)
	}
}

func TestWorker_CancelWhileQueued_NeverRuns(t *testing.T) {
	conn := openTempDB(t)
	w := NewWorker(conn)
	defer w.Close()

	started, release := make(chan struct{}), make(chan struct{})
	firstDone := make(chan error, 1)
	go func() { firstDone <- w.Do(context.Background(), blockingJob(started, release)) }()
	<-started

	// The second job sits in the queue behind the blocked one.
	ctx, cancel := context.WithCancel(context.Background())
	secondDone := make(chan error, 1)
	go func() { secondDone <- w.Do(ctx, insertBeat) }()

	cancel()
	if err := <-secondDone; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled for the queued job, got %v", err)
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first job: %v", err)
	}

	// Flush the queue so the abandoned job would have run by now.
	if err := w.Do(context.Background(), func(context.Context, *sql.Tx) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if n := countBeats(t, conn); n != 1 {
		t.Errorf("expected only the first job's beat, found %d", n)
	}
}

func TestWorker_CancelWhileRunning_ReportsCommit(t *testing.T) {
	conn := openTempDB(t)
	w := NewWorker(conn)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	started, release := make(chan struct{}), make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- w.Do(ctx, blockingJob(started, release)) }()

	<-started
	cancel()
	close(release)

	// The job had started, so its commit is reported rather than ctx.Err().
	if err := <-done; err != nil {
		t.Fatalf("expected the committed result, got %v", err)
	}
	if n := countBeats(t, conn); n != 1 {
		t.Errorf("expected 1 beat, got %d", n)
	}
}
