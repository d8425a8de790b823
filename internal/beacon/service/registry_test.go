package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/service"
	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/store/memory"
	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/timestamp"
	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/types"
)

func newTestRegistry(known ...string) (*service.ServiceRegistry, *service.HeartbeatService) {
	hb := newTestHeartbeatService(memory.New(), nil)
	return service.NewServiceRegistry(memory.NewServiceStore(known), hb), hb
}

func TestRegistry_RegisterAndList(t *testing.T) {
	reg, hb := newTestRegistry()
	ctx := context.Background()

	info, err := reg.Register(ctx, types.RegisterServiceRequest{Name: "  foobar ", URL: "https://foo.example"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if info.Name != "foobar" {
		t.Errorf("expected trimmed name, got %q", info.Name)
	}
	if info.Timestamp != types.NeverSeen {
		t.Errorf("expected never for a fresh registration, got %q", info.Timestamp)
	}

	beat, err := hb.Beat(ctx, "foobar", types.BeatRequest{})
	if err != nil {
		t.Fatal(err)
	}

	list, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 service, got %d", len(list))
	}
	if list[0].Timestamp != beat.Timestamp {
		t.Errorf("expected listing to carry the last beat %q, got %q", beat.Timestamp, list[0].Timestamp)
	}
}

func TestRegistry_Register_Errors(t *testing.T) {
	reg, _ := newTestRegistry("existing")
	ctx := context.Background()

	if _, err := reg.Register(ctx, types.RegisterServiceRequest{Name: "   "}); !errors.Is(err, service.ErrInvalidServiceName) {
		t.Errorf("expected ErrInvalidServiceName, got %v", err)
	}
	if _, err := reg.Register(ctx, types.RegisterServiceRequest{Name: "existing"}); !errors.Is(err, service.ErrServiceExists) {
		t.Errorf("expected ErrServiceExists, got %v", err)
	}
}

func TestRegistry_Delete(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()

	if err := reg.Delete(ctx, "foobar"); !errors.Is(err, service.ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
	if _, err := reg.Register(ctx, types.RegisterServiceRequest{Name: "foobar"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Delete(ctx, "foobar"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	list, err := reg.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty listing, got %d", len(list))
	}
}

// ── Health ──

func TestRegistry_Register_InvalidTimeout(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()

	for _, timeout := range []string{"soon", "-5m", "0s"} {
		_, err := reg.Register(ctx, types.RegisterServiceRequest{Name: "cron", Timeout: timeout})
		if !errors.Is(err, service.ErrInvalidTimeout) {
			t.Errorf("timeout %q: expected ErrInvalidTimeout, got %v", timeout, err)
		}
	}
}

func TestRegistry_Health(t *testing.T) {
	base := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	cases := []struct {
		name    string
		timeout string
		details map[string]string
		beat    bool
		age     time.Duration
		want    types.Health
	}{
		{name: "no beat", want: types.HealthFail},
		{name: "recent beat", beat: true, age: time.Hour, want: types.HealthOK},
		{name: "stale under default timeout", beat: true, age: 25 * time.Hour, want: types.HealthFail},
		{name: "own timeout exceeded", timeout: "30m", beat: true, age: time.Hour, want: types.HealthFail},
		{name: "own timeout kept", timeout: "48h", beat: true, age: 25 * time.Hour, want: types.HealthOK},
		{name: "error detail", beat: true, details: map[string]string{"error": "disk full"}, want: types.HealthFail},
		{name: "empty error detail", beat: true, details: map[string]string{"error": ""}, want: types.HealthOK},
		{name: "status not OK", beat: true, details: map[string]string{"status": "degraded"}, want: types.HealthFail},
		{name: "status OK", beat: true, details: map[string]string{"status": "OK"}, want: types.HealthOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			now := base
			clock := timestamp.NewWithClock(func() timestamp.Instant { return timestamp.Aware(now) })
			hb := newTestHeartbeatService(memory.New(), clock)
			reg := service.NewServiceRegistry(memory.NewServiceStore(nil), hb)
			ctx := context.Background()

			if _, err := reg.Register(ctx, types.RegisterServiceRequest{Name: "svc", Timeout: tc.timeout}); err != nil {
				t.Fatalf("Register: %v", err)
			}
			if tc.beat {
				if _, err := hb.Beat(ctx, "svc", types.BeatRequest{Details: tc.details}); err != nil {
					t.Fatal(err)
				}
			}
			now = base.Add(tc.age)

			list, err := reg.List(ctx)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(list) != 1 {
				t.Fatalf("expected 1 service, got %d", len(list))
			}
			if list[0].Health != tc.want {
				t.Errorf("expected health %q, got %q", tc.want, list[0].Health)
			}
			if tc.timeout == "" && list[0].Timeout != "24h0m0s" {
				t.Errorf("expected the default timeout, got %q", list[0].Timeout)
			}
		})
	}
}

func TestRegistry_HealthLeavesStatusUnchanged(t *testing.T) {
	base := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	now := base
	clock := timestamp.NewWithClock(func() timestamp.Instant { return timestamp.Aware(now) })
	hb := newTestHeartbeatService(memory.New(), clock)
	reg := service.NewServiceRegistry(memory.NewServiceStore([]string{"svc"}), hb)
	ctx := context.Background()

	if _, err := hb.Beat(ctx, "svc", types.BeatRequest{Details: map[string]string{"error": "boom"}}); err != nil {
		t.Fatal(err)
	}
	now = base.Add(48 * time.Hour)

	st, err := hb.Status(ctx, "svc")
	if err != nil {
		t.Fatal(err)
	}
	list, err := reg.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if list[0].Health != types.HealthFail {
		t.Fatalf("expected fail, got %q", list[0].Health)
	}
	if st.Timestamp != "2024-01-15T10:30:00Z" || list[0].Timestamp != st.Timestamp {
		t.Errorf("status must still report the last beat, got %q and %q", st.Timestamp, list[0].Timestamp)
	}
}
