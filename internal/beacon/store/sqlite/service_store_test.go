package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/store"
	sqlitestore "github.com/BrandonDHaskell/Beacon/server/internal/beacon/store/sqlite"
)

func TestServiceStore_CreateListDelete(t *testing.T) {
	conn := openTestDB(t)
	ss := sqlitestore.NewServiceStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	created, err := ss.CreateService(ctx, store.ServiceRecord{Name: "web", URL: "https://example.org"})
	if err != nil {
		t.Fatalf("CreateService: %v", err)
	}
	if created.ID == 0 {
		t.Error("expected an assigned id")
	}
	if created.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
	if _, err := ss.CreateService(ctx, store.ServiceRecord{Name: "api"}); err != nil {
		t.Fatalf("CreateService api: %v", err)
	}

	list, err := ss.ListServices(ctx)
	if err != nil {
		t.Fatalf("ListServices: %v", err)
	}
	if len(list) != 2 || list[0].Name != "api" || list[1].Name != "web" {
		t.Fatalf("unexpected listing: %+v", list)
	}
	if list[0].URL != "" || list[1].URL != "https://example.org" {
		t.Errorf("unexpected urls: %q %q", list[0].URL, list[1].URL)
	}

	deleted, err := ss.DeleteService(ctx, "web")
	if err != nil || !deleted {
		t.Fatalf("DeleteService: deleted=%v err=%v", deleted, err)
	}
	deleted, err = ss.DeleteService(ctx, "web")
	if err != nil {
		t.Fatalf("DeleteService again: %v", err)
	}
	if deleted {
		t.Error("expected second delete to report nothing removed")
	}
}

func TestServiceStore_TimeoutPersists(t *testing.T) {
	conn := openTestDB(t)
	ss := sqlitestore.NewServiceStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	if _, err := ss.CreateService(ctx, store.ServiceRecord{Name: "cron", Timeout: 90 * time.Minute}); err != nil {
		t.Fatalf("CreateService cron: %v", err)
	}
	if _, err := ss.CreateService(ctx, store.ServiceRecord{Name: "web"}); err != nil {
		t.Fatalf("CreateService web: %v", err)
	}

	list, err := ss.ListServices(ctx)
	if err != nil {
		t.Fatalf("ListServices: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 services, got %d", len(list))
	}
	if list[0].Name != "cron" || list[0].Timeout != 90*time.Minute {
		t.Errorf("expected cron with a 90m timeout, got %+v", list[0])
	}
	if list[1].Timeout != 0 {
		t.Errorf("expected no stored timeout for web, got %v", list[1].Timeout)
	}
}

func TestServiceStore_CreateService_Duplicate(t *testing.T) {
	conn := openTestDB(t)
	ss := sqlitestore.NewServiceStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	if _, err := ss.CreateService(ctx, store.ServiceRecord{Name: "web"}); err != nil {
		t.Fatalf("CreateService: %v", err)
	}
	_, err := ss.CreateService(ctx, store.ServiceRecord{Name: "web"})
	if !errors.Is(err, store.ErrDuplicateService) {
		t.Fatalf("expected ErrDuplicateService, got %v", err)
	}
}

func TestServiceStore_DeleteKeepsBeats(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	ss := sqlitestore.NewServiceStore(conn, w)
	bs := sqlitestore.NewBeatStore(conn, w)
	ctx := context.Background()

	if _, err := ss.CreateService(ctx, store.ServiceRecord{Name: "web"}); err != nil {
		t.Fatal(err)
	}
	if err := bs.RecordBeat(ctx, "web", store.BeatRecord{}); err != nil {
		t.Fatal(err)
	}
	if _, err := ss.DeleteService(ctx, "web"); err != nil {
		t.Fatal(err)
	}

	if _, ok, err := bs.LatestBeat(ctx, "web"); err != nil || !ok {
		t.Errorf("expected beats to survive deregistration: ok=%v err=%v", ok, err)
	}
}
